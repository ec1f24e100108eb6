package detectors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/varalys/skillvet/internal/ctxparse"
	"github.com/varalys/skillvet/internal/types"
)

var (
	reTagEscape     = regexp.MustCompile(`\\u(\{)?[Ee]00[0-7][0-9A-Fa-f](\})?`)
	reTagEscapeLong = regexp.MustCompile(`\\U000[Ee]00[0-7][0-9A-Fa-f]`)
)

type runeClass struct {
	count int
	first int // byte offset of the first occurrence
}

func (c *runeClass) add(off int) {
	if c.count == 0 {
		c.first = off
	}
	c.count++
}

func isZeroWidth(r rune) bool {
	return r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\ufeff'
}

func isBidiControl(r rune) bool {
	return (r >= '\u202a' && r <= '\u202e') || (r >= '\u2066' && r <= '\u2069')
}

func isTagChar(r rune) bool { return r >= 0xE0001 && r <= 0xE007F }

func isVariationSelectorSupplement(r rune) bool { return r >= 0xE0100 && r <= 0xE01EF }

func (s *Suite) unicodeSteganography(cx *ctxparse.Context, fs []types.Finding) []types.Finding {
	content := cx.Content()
	var zw, bidi, tags, vs runeClass
	for off, r := range content {
		switch {
		case isZeroWidth(r):
			zw.add(off)
		case isBidiControl(r):
			bidi.add(off)
		case isTagChar(r):
			tags.add(off)
		case isVariationSelectorSupplement(r):
			vs.add(off)
		}
	}
	decode := anyMatch(s.rules.Select("injection", "unicode_decode"), content)

	finding := func(id string, sev types.Severity, ded int, title, desc, ev, rec string, off int) types.Finding {
		return types.Finding{
			ID: id, Category: types.CatInjection, Severity: sev, Title: title, Description: desc,
			Evidence: ev, LineNumber: cx.LineNumber(off), Deduction: ded, Recommendation: rec,
			OwaspCategory: types.ASST10,
		}
	}
	decodeNote := ""
	if decode {
		decodeNote = "; paired with decode/exec patterns"
	}

	// a lone leading byte-order mark is an encoding artifact
	loneBOM := zw.count == 1 && strings.HasPrefix(content, "\ufeff")
	if n := zw.count; n > 0 && !loneBOM {
		var sev types.Severity
		var ded int
		switch {
		case n > 200:
			sev, ded = types.SevHigh, 30
		case n > 50 && decode:
			sev, ded = types.SevCritical, 40
		case n > 50:
			sev, ded = types.SevHigh, 25
		case n > 10:
			sev, ded = types.SevMed, 15
		case n > 3:
			sev, ded = types.SevMed, 10
		default:
			sev, ded = types.SevLow, 5
		}
		fs = append(fs, finding("INJ-UNICODE-ZW", sev, ded,
			fmt.Sprintf("Invisible zero-width characters detected (%d %s)", n, plural(n, "instance", "instances")),
			"The skill contains invisible unicode characters that can be used to hide or alter instructions (unicode steganography).",
			fmt.Sprintf("Found %d zero-width character(s): U+200B/U+200C/U+200D/U+FEFF%s", n, decodeNote),
			"Remove all zero-width characters. If present due to copy/paste, retype the affected section and re-save the file.",
			zw.first))
	}

	if n := bidi.count; n > 0 {
		sev, ded := types.SevMed, 10
		if n >= 3 {
			sev, ded = types.SevHigh, 25
		}
		fs = append(fs, finding("INJ-UNICODE-BIDI", sev, ded,
			"Bidirectional control characters detected",
			"The skill contains bidirectional control characters (RTL/LTR overrides or isolates) that can spoof visible text and hide malicious instructions.",
			fmt.Sprintf("Found %d bidirectional control character(s)", n),
			"Remove all bidirectional control characters. These are rarely needed in skill files and are commonly used for obfuscation.",
			bidi.first))
	}

	if n := tags.count; n > 0 {
		fs = append(fs, finding("INJ-UNICODE-TAGS", types.SevHigh, 30,
			"Unicode tag characters detected",
			"The skill contains Unicode Tag characters (invisible) which are a strong indicator of deliberate steganography.",
			fmt.Sprintf("Found %d Unicode tag character(s)%s", n, decodeNote),
			"Remove all Unicode Tag characters. Legitimate skills should not contain invisible tag codepoints.",
			tags.first))
	}

	if n := vs.count; n > 0 {
		sev, ded := types.SevMed, 10
		switch {
		case n > 5 && decode:
			sev, ded = types.SevCritical, 40
		case n > 5:
			sev, ded = types.SevHigh, 25
		}
		fs = append(fs, finding("INJ-UNICODE-VS", sev, ded,
			"Unicode variation selectors detected",
			"The skill contains Unicode Variation Selectors which can be used to hide instructions and evade review.",
			fmt.Sprintf("Found %d variation selector(s)%s", n, decodeNote),
			"Remove all variation selectors. If they are required for a specific text effect, document why and ensure no hidden instructions are present.",
			vs.first))
	}

	esc := append(reTagEscape.FindAllStringIndex(content, -1), reTagEscapeLong.FindAllStringIndex(content, -1)...)
	if n := len(esc); n > 0 {
		sev, ded := types.SevMed, 10
		if decode {
			sev, ded = types.SevHigh, 20
		}
		fs = append(fs, finding("INJ-UNICODE-ESCAPES", sev, ded,
			"Encoded unicode tag escape sequences detected",
			`The skill contains unicode tag escape sequences (e.g., \u{E0061}) which may indicate an attempt to smuggle invisible content.`,
			fmt.Sprintf("Found %d encoded tag escape(s)%s", n, decodeNote),
			"Remove encoded unicode escapes unless absolutely necessary. If present for documentation, avoid including decode/exec instructions that could reconstitute hidden payloads.",
			esc[0][0]))
	}
	return fs
}
