package detectors

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/varalys/skillvet/internal/ctxparse"
	"github.com/varalys/skillvet/internal/rules"
	"github.com/varalys/skillvet/internal/types"
)

var (
	reRawIPURL       = regexp.MustCompile(`https?://\d+\.\d+\.\d+\.\d+`)
	reKnownTLDPath   = regexp.MustCompile(`\.(?:com|org|io|dev|sh|rs|land|cloud|app|ai|so|net|co)/`)
	reSetupHeading   = regexp.MustCompile(`(?i)\b(?:prerequisit|install|setup|getting\s+started|requirements?|dependencies)\b`)
	reInstallYAMLKey = regexp.MustCompile(`(?i)\b(?:install|command|compatibility|setup)\s*:`)
	reNonAlnum       = regexp.MustCompile(`[^A-Z0-9]+`)
)

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func scaled(deduction int, mult float64) int {
	return int(math.Round(float64(deduction) * mult))
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// firstMatch returns the first match of re in content that keep accepts.
// Every call scans with a fresh FindAllStringIndex.
func firstMatch(re *regexp.Regexp, content string, keep func(start, end int) bool) ([]int, bool) {
	for _, loc := range re.FindAllStringIndex(content, -1) {
		if keep(loc[0], loc[1]) {
			return loc, true
		}
	}
	return nil, false
}

// familyID turns a family name into an ID segment: "Sub-agent spawning" ->
// "SUB-AGENT-SPAWNING".
func familyID(name string) string {
	return strings.Trim(reNonAlnum.ReplaceAllString(strings.ToUpper(name), "-"), "-")
}

// patternFinding builds the shared shape of a family match: title with the
// context reason, evidence from the matched line and a scaled deduction.
func patternFinding(cat types.Category, prefix string, n int, r *rules.Compiled, cx *ctxparse.Context, start, end int, adj ctxparse.Adjustment) types.Finding {
	sev := r.Sev
	if adj.Multiplier < 1 {
		sev = sev.Downgrade()
	}
	title := r.Name + " detected"
	if adj.Reason != "" {
		title += " (" + adj.Reason + ")"
	}
	match := cx.Content()[start:end]
	return types.Finding{
		ID:             fmt.Sprintf("%s-%s-%d", prefix, familyID(r.Name), n),
		Category:       cat,
		Severity:       sev,
		Title:          title,
		Description:    fmt.Sprintf(`Found %s pattern: "%s"`, strings.ToLower(r.Name), match),
		Evidence:       truncate(strings.TrimSpace(cx.Line(start)), 200),
		LineNumber:     cx.LineNumber(start),
		Deduction:      scaled(r.Deduction, adj.Multiplier),
		Recommendation: r.Recommendation,
		OwaspCategory:  r.Taxonomy,
	}
}

// inSetupSection reports whether an install command at off reads as a
// documented setup step: an https URL on a well-known TLD, no raw IP, under
// a setup-style heading or right after an install/command metadata key.
func inSetupSection(cx *ctxparse.Context, off int, match string) bool {
	if reRawIPURL.MatchString(match) || !strings.Contains(match, "https://") || !reKnownTLDPath.MatchString(match) {
		return false
	}
	if h := cx.LastHeadingBefore(off, 1000); h != "" && reSetupHeading.MatchString(h) {
		return true
	}
	return reInstallYAMLKey.MatchString(cx.PrecedingLines(off, off, 10))
}

func hasSeverity(fs []types.Finding, sev types.Severity) bool {
	for _, f := range fs {
		if f.Severity == sev {
			return true
		}
	}
	return false
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func anyMatch(rs []*rules.Compiled, s string) bool {
	for _, r := range rs {
		if r.MatchAny(s) {
			return true
		}
	}
	return false
}
