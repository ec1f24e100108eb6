package detectors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/varalys/skillvet/internal/ctxparse"
	"github.com/varalys/skillvet/internal/types"
	"github.com/varalys/skillvet/internal/validate"
)

var (
	reHTMLComment = regexp.MustCompile(`<!--([\s\S]*?)-->`)
	reB64Span     = regexp.MustCompile(`[A-Za-z0-9+/]{20,}={0,2}`)
)

// Injection runs the instruction-injection families plus the hidden
// comment, base64 payload and unicode steganography detectors.
func (s *Suite) Injection(skill *types.ParsedSkill, cx *ctxparse.Context) (types.CategoryScore, error) {
	if err := s.check(); err != nil {
		return types.CategoryScore{}, err
	}
	content := cx.Content()
	defense := ctxparse.IsSecurityDefenseSkill(skill)
	var fs []types.Finding

	for _, r := range s.rules.Select("injection", "families") {
		for _, re := range r.Patterns {
			var adj ctxparse.Adjustment
			loc, ok := firstMatch(re, content, func(start, _ int) bool {
				adj = cx.Adjust(start)
				if adj.Multiplier == 0 {
					return false
				}
				// Only a security/defense skill may list threat patterns.
				return !defense || !cx.IsInThreatListingContext(start)
			})
			if !ok {
				continue
			}
			fs = append(fs, patternFinding(types.CatInjection, "INJ", len(fs)+1, r, cx, loc[0], loc[1], adj))
		}
	}

	if !defense {
		fs = s.hiddenComments(cx, fs)
	}
	fs = s.base64Payloads(cx, fs)
	fs = s.unicodeSteganography(cx, fs)

	return Rescore(types.CatInjection, fs), nil
}

func (s *Suite) hiddenComments(cx *ctxparse.Context, fs []types.Finding) []types.Finding {
	instr := s.rules.Select("injection", "html_comment")
	for _, m := range reHTMLComment.FindAllStringSubmatchIndex(cx.Content(), -1) {
		inner := strings.TrimSpace(cx.Content()[m[2]:m[3]])
		if len(inner) < 10 || !anyMatch(instr, inner) {
			continue
		}
		ev := truncate(inner, 200)
		if len([]rune(inner)) > 200 {
			ev += "..."
		}
		fs = append(fs, types.Finding{
			ID:             fmt.Sprintf("INJ-COMMENT-%d", len(fs)+1),
			Category:       types.CatInjection,
			Severity:       types.SevHigh,
			Title:          "Hidden instructions in HTML comment",
			Description:    "HTML comment contains instruction-like content that may be an attempt to inject hidden behavior.",
			Evidence:       "<!-- " + ev + " -->",
			LineNumber:     cx.LineNumber(m[0]),
			Deduction:      25,
			Recommendation: "Remove hidden instructions from HTML comments. All skill behavior should be visible.",
			OwaspCategory:  types.ASST01,
		})
	}
	return fs
}

func (s *Suite) base64Payloads(cx *ctxparse.Context, fs []types.Finding) []types.Finding {
	keywords := s.rules.Select("injection", "base64_keywords")
	for _, loc := range reB64Span.FindAllStringIndex(cx.Content(), -1) {
		enc := cx.Content()[loc[0]:loc[1]]
		if validate.IsHexDigits(enc) {
			continue
		}
		raw, ok := validate.DecodeBase64Lenient(enc)
		if !ok {
			continue
		}
		dec := string(raw)
		if len(dec) <= 10 || !anyMatch(keywords, dec) {
			continue
		}
		fs = append(fs, types.Finding{
			ID:             fmt.Sprintf("INJ-B64-%d", len(fs)+1),
			Category:       types.CatInjection,
			Severity:       types.SevHigh,
			Title:          "Suspicious base64-encoded content",
			Description:    "Base64-encoded string decodes to content containing suspicious keywords.",
			Evidence:       fmt.Sprintf("Encoded: %s... -> Decoded: %s...", truncate(enc, 60), truncate(dec, 100)),
			LineNumber:     cx.LineNumber(loc[0]),
			Deduction:      25,
			Recommendation: "Remove base64-encoded content or replace with plaintext. Obfuscation raises security concerns.",
			OwaspCategory:  types.ASST10,
		})
	}
	return fs
}
