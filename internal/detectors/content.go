package detectors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/varalys/skillvet/internal/ctxparse"
	"github.com/varalys/skillvet/internal/rules"
	"github.com/varalys/skillvet/internal/types"
	"github.com/varalys/skillvet/internal/validate"
)

const contentBase = 80

var (
	reB64Blob = regexp.MustCompile(`[A-Za-z0-9+/]{100,}={0,2}`)
	reHexBlob = regexp.MustCompile(`(?:\\x[0-9a-fA-F]{2}){20,}`)

	reHarmfulNegation   = regexp.MustCompile(`(?i)\b(?:do\s+not|don['’]?t|should\s+not|must\s+not|cannot|never|not\s+to|unable\s+to|limited\s+to|won['’]?t)\b`)
	reHarmfulDetection  = regexp.MustCompile(`(?i)\b(?:detect|scan|flag|block|reject|warn|alert|monitor|watch\s+for|look\s+for|check\s+for|patterns?\s+(?:to|we)\s+(?:detect|flag|block))\b`)
	reHarmfulAttempt    = regexp.MustCompile(`(?i)\b(?:requests?|attempts?)\s+to\s+`)
	reHarmfulAPIBypass  = regexp.MustCompile(`(?i)\b(?:methods?\s+bypass|calls?\s+bypass|queries?\s+bypass)\b`)
	reHarmfulTableRow   = regexp.MustCompile(`^\s*\|.*\|`)
	reHarmfulTableVocab = regexp.MustCompile(`(?i)\b(?:critical|high|dangerous|risk|attack|threat|pattern|injection|violation|abuse|manipulation)\b`)
	reHarmfulAllowlist  = regexp.MustCompile(`(?i)\b(?:allowlist|whitelist|exempt|trusted\s+items?)\b`)
	reHarmfulPreceding  = regexp.MustCompile(`(?i)\b(?:do\s+not\s+use\s+when|do\s+not\s+use\s+(?:this|if)|limitations?|restrictions?|prohibited|forbidden|what\s+(?:this\s+)?(?:skill\s+)?(?:does|should)\s+not|example\s+indicator|attempted\s+to|common\s+attack|malicious\s+(?:pattern|user)|dangerous\s+command|prompts?\s+that\s+attempt|why\s+it['’]?s\s+dangerous|any\s+attempt\s+to)\b`)
)

// secretValidators tighten a secret family beyond its regex.
var secretValidators = map[string]func(string) bool{
	"content-secret-github": validate.LooksLikeGitHubToken,
	"content-secret-aws":    validate.LooksLikeAWSAccessKey,
}

// Content scores the quality and safety of the skill text. It starts at 80,
// earns bonuses for safety, output and error-handling language and loses
// points for harmful instructions, obfuscation and embedded secrets.
func (s *Suite) Content(skill *types.ParsedSkill, cx *ctxparse.Context) (types.CategoryScore, error) {
	if err := s.check(); err != nil {
		return types.CategoryScore{}, err
	}
	content := cx.Content()
	var fs []types.Finding
	add := func(f types.Finding) {
		f.Category = types.CatContent
		fs = append(fs, f)
	}

	hasSafety := anyMatch(s.rules.Select("content", "safety"), content)
	if hasSafety {
		add(bonusFinding("CONT-SAFETY-GOOD", "Safety boundaries defined",
			"The skill includes explicit safety boundaries defining what it should NOT do.",
			"Safety boundary patterns detected in content",
			"Keep these safety boundaries. They improve trust."))
	}
	if anyMatch(s.rules.Select("content", "output"), content) {
		add(bonusFinding("CONT-OUTPUT-GOOD", "Output constraints defined",
			"The skill includes output format constraints (length limits, format specifications).",
			"Output constraint patterns detected",
			"Keep these output constraints."))
	}
	if anyMatch(s.rules.Select("content", "error_handling"), content) {
		add(bonusFinding("CONT-ERROR-GOOD", "Error handling instructions present",
			"The skill includes error handling instructions for graceful failure.",
			"Error handling patterns detected",
			"Keep these error handling instructions."))
	}

	for _, r := range s.rules.Select("content", "harmful") {
		for _, re := range r.Patterns {
			var adj ctxparse.Adjustment
			loc, ok := firstMatch(re, content, func(start, _ int) bool {
				adj = cx.Adjust(start)
				return adj.Multiplier != 0 && !isHarmfulMatchNegated(cx, start)
			})
			if !ok {
				continue
			}
			sev := r.Sev
			if adj.Multiplier < 1 {
				sev = sev.Downgrade()
			}
			add(types.Finding{
				ID:             fmt.Sprintf("CONT-HARMFUL-%d", len(fs)+1),
				Severity:       sev,
				Title:          r.Name,
				Description:    fmt.Sprintf("The skill contains instructions related to: %s.", strings.ToLower(r.Name)),
				Evidence:       truncate(content[loc[0]:loc[1]], 200),
				LineNumber:     cx.LineNumber(loc[0]),
				Deduction:      scaled(r.Deduction, adj.Multiplier),
				Recommendation: r.Recommendation,
				OwaspCategory:  r.Taxonomy,
			})
		}
	}

	for _, r := range s.rules.Select("content", "deception") {
		for _, re := range r.Patterns {
			if !re.MatchString(content) {
				continue
			}
			add(types.Finding{
				ID:             fmt.Sprintf("CONT-DECEPTION-%d", len(fs)+1),
				Severity:       r.Sev,
				Title:          r.Name,
				Description:    "The skill contains instructions that encourage deception or impersonation.",
				Evidence:       truncate(re.FindString(content), 200),
				Deduction:      r.Deduction,
				Recommendation: r.Recommendation,
				OwaspCategory:  r.Taxonomy,
			})
		}
	}

	if loc, ok := firstMatch(reB64Blob, content, func(start, end int) bool {
		return !validate.IsHexDigits(content[start:end])
	}); ok {
		add(types.Finding{
			ID:             fmt.Sprintf("CONT-B64-%d", len(fs)+1),
			Severity:       types.SevMed,
			Title:          "Large base64 encoded string (possible obfuscation)",
			Description:    "A large base64-encoded string was detected that may be used to hide malicious payloads.",
			Evidence:       truncate(content[loc[0]:loc[1]], 80) + "...",
			LineNumber:     cx.LineNumber(loc[0]),
			Deduction:      15,
			Recommendation: "Replace base64-encoded content with plaintext or explain its purpose. Obfuscation raises security concerns.",
			OwaspCategory:  types.ASST10,
		})
	}
	if loc := reHexBlob.FindStringIndex(content); loc != nil {
		add(types.Finding{
			ID:             fmt.Sprintf("CONT-HEX-%d", len(fs)+1),
			Severity:       types.SevMed,
			Title:          "Hex-encoded blob (possible obfuscation)",
			Description:    "A hex-encoded blob was detected that may be used to hide malicious payloads.",
			Evidence:       truncate(content[loc[0]:loc[1]], 80) + "...",
			LineNumber:     cx.LineNumber(loc[0]),
			Deduction:      15,
			Recommendation: "Replace hex-encoded content with plaintext or explain its purpose.",
			OwaspCategory:  types.ASST10,
		})
	}

	for _, r := range s.rules.Select("content", "secrets") {
		fs = s.secrets(cx, r, fs)
	}

	desc := strings.TrimSpace(skill.Description)
	if desc != "" {
		for _, r := range s.rules.Select("content", "generic_description") {
			if !r.MatchAny(desc) {
				continue
			}
			add(types.Finding{
				ID:             "CONT-GENERIC-DESC",
				Severity:       r.Sev,
				Title:          r.Name,
				Description:    "The skill description is very generic, which can cause the agent to activate it for unrelated requests (trigger hijacking).",
				Evidence:       fmt.Sprintf("Description: %q", truncate(desc, 120)),
				Deduction:      r.Deduction,
				Recommendation: r.Recommendation,
				OwaspCategory:  r.Taxonomy,
			})
			break
		}
	}

	if len(desc) < 10 {
		ev := "No description found"
		if desc != "" {
			ev = fmt.Sprintf("Description: %q", truncate(desc, 100))
		}
		add(types.Finding{
			ID:             "CONT-NO-DESC",
			Severity:       types.SevLow,
			Title:          "Missing or insufficient description",
			Description:    "The skill lacks a meaningful description, making it difficult to assess its purpose.",
			Evidence:       ev,
			Deduction:      5,
			Recommendation: "Add a clear, detailed description of what the skill does and what it needs access to.",
			OwaspCategory:  types.ASST09,
		})
	}

	if !hasSafety {
		add(types.Finding{
			ID:             "CONT-NO-SAFETY",
			Severity:       types.SevLow,
			Title:          "No explicit safety boundaries",
			Description:    "The skill does not include explicit safety boundaries defining what it should NOT do.",
			Evidence:       "No safety boundary patterns found",
			Deduction:      10,
			Recommendation: "Add a 'Safety Boundaries' section listing what the skill must NOT do (e.g., no file deletion, no network access beyond needed APIs).",
			OwaspCategory:  types.ASST09,
		})
	}

	return Rescore(types.CatContent, fs), nil
}

func bonusFinding(id, title, desc, evidence, rec string) types.Finding {
	return types.Finding{
		ID:             id,
		Severity:       types.SevInfo,
		Title:          title,
		Description:    desc,
		Evidence:       evidence,
		Recommendation: rec,
		OwaspCategory:  types.ASST09,
	}
}

func (s *Suite) secrets(cx *ctxparse.Context, r *rules.Compiled, fs []types.Finding) []types.Finding {
	content := cx.Content()
	valid := secretValidators[r.ID]
	for _, re := range r.Patterns {
		var adj ctxparse.Adjustment
		loc, ok := firstMatch(re, content, func(start, end int) bool {
			adj = cx.Adjust(start)
			if adj.Multiplier == 0 {
				return false
			}
			m := content[start:end]
			if validate.LooksLikePlaceholder(m) {
				return false
			}
			return valid == nil || valid(m)
		})
		if !ok {
			continue
		}
		m := content[loc[0]:loc[1]]
		sev := r.Sev
		if adj.Multiplier < 1 {
			sev = sev.Downgrade()
		}
		fs = append(fs, types.Finding{
			ID:             fmt.Sprintf("CONT-SECRET-%d", len(fs)+1),
			Category:       types.CatContent,
			Severity:       sev,
			Title:          "Hardcoded API key or secret detected",
			Description:    fmt.Sprintf("A hardcoded %s was found. Secrets must never be embedded in skill files.", r.Name),
			Evidence:       truncate(m, 20) + "..." + tail(m, 4),
			LineNumber:     cx.LineNumber(loc[0]),
			Deduction:      scaled(r.Deduction, adj.Multiplier),
			Recommendation: r.Recommendation,
			OwaspCategory:  r.Taxonomy,
		})
	}
	return fs
}

// isHarmfulMatchNegated reports whether the line holding a harmful match is
// prohibitive, detection-oriented or tabular threat documentation, or sits
// right after such vocabulary.
func isHarmfulMatchNegated(cx *ctxparse.Context, off int) bool {
	line := cx.Line(off)
	switch {
	case reHarmfulNegation.MatchString(line),
		reHarmfulDetection.MatchString(line),
		reHarmfulAttempt.MatchString(line),
		reHarmfulAPIBypass.MatchString(line),
		reHarmfulTableRow.MatchString(line) && reHarmfulTableVocab.MatchString(line),
		reHarmfulAllowlist.MatchString(line):
		return true
	}
	lineStart := off - len(lineBefore(cx, off))
	from := lineStart - 300
	if from < 0 {
		from = 0
	}
	return reHarmfulPreceding.MatchString(cx.Content()[from:lineStart])
}

// lineBefore returns the part of the line holding off that precedes it.
func lineBefore(cx *ctxparse.Context, off int) string {
	content := cx.Content()
	start := strings.LastIndexByte(content[:off], '\n') + 1
	return content[start:off]
}
