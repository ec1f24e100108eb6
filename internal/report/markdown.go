package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/varalys/skillvet/internal/types"
)

// Markdown renders one report as a standalone trust report document.
func Markdown(r types.TrustReport, source string, now time.Time) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	line("# SkillVet Trust Report")
	line("")
	line("**Source:** %s", source)
	line("**Scanner:** v%s", r.Metadata.ScannerVersion)
	line("**Scanned:** %s", now.UTC().Format(time.RFC3339))
	line("**Format:** %s", r.Metadata.SkillFormat)
	line("**Duration:** %dms", r.Metadata.DurationMs)
	line("")
	line("## Result")
	line("")
	line("| Metric | Value |")
	line("|--------|-------|")
	line("| **Score** | %d/100 |", r.Overall)
	line("| **Badge** | %s |", strings.ToUpper(string(r.Badge)))
	line("")
	line("## Category Scores")
	line("")
	line("| Category | Score | Weight |")
	line("|----------|-------|--------|")
	for _, cat := range types.Categories {
		if cs, ok := r.Categories[cat]; ok {
			line("| %s | %d/100 | %d%% |", cat, cs.Score, int(cs.Weight*100+0.5))
		}
	}
	line("")
	if len(r.Findings) == 0 {
		line("## Findings")
		line("")
		line("No security findings detected.")
		line("")
	} else {
		line("## Findings (%d)", len(r.Findings))
		line("")
		for _, g := range groupBySeverity(r.Findings) {
			line("### %s (%d)", strings.ToUpper(string(g.sev)), len(g.findings))
			line("")
			for _, f := range g.findings {
				line("- **%s** `%s`", f.Title, f.OwaspCategory)
				if f.Evidence != "" {
					ev := f.Evidence
					if len(ev) > 200 {
						ev = ev[:200]
					}
					line("  - Evidence: `%s`", strings.ReplaceAll(ev, "`", "'"))
				}
				line("  - %s", f.Recommendation)
				line("")
			}
		}
	}
	b.WriteString("---\n*Generated by SkillVet*")
	return b.String()
}

// ReportPath is the default --report destination for a target.
func ReportPath(target string) string {
	name := "skill"
	if !strings.Contains(target, "://") && !strings.HasPrefix(target, "data:") {
		base := target[strings.LastIndexAny(target, `/\`)+1:]
		if n := strings.TrimSuffix(base, ".md"); n != "" {
			name = n
		}
	}
	return name + "-trust-report.md"
}

// StepSummary renders the markdown appended to a GitHub job summary.
func StepSummary(reports []types.TargetReport, failures []types.ScanFailure, sarifPath string) string {
	c := SeverityCounts(reports)
	var b strings.Builder
	b.WriteString("## SkillVet Skill Scan\n\n")
	fmt.Fprintf(&b, "- Targets scanned: **%d**\n", len(reports))
	fmt.Fprintf(&b, "- Failures: **%d**\n", len(failures))
	fmt.Fprintf(&b, "- Findings: critical **%d**, high **%d**, medium **%d**, low **%d**, info **%d**\n",
		c[types.SevCritical], c[types.SevHigh], c[types.SevMed], c[types.SevLow], c[types.SevInfo])
	if sarifPath != "" {
		fmt.Fprintf(&b, "- SARIF: `%s`\n", sarifPath)
	}
	if len(reports) > 0 {
		b.WriteString("\n| Target | Score | Badge | Findings |\n|--------|-------|-------|----------|\n")
		for _, tr := range reports {
			fmt.Fprintf(&b, "| `%s` | %d/100 | %s | %d |\n", tr.Target, tr.Report.Overall, strings.ToUpper(string(tr.Report.Badge)), len(tr.Report.Findings))
		}
	}
	return b.String()
}

// GitHubOutputs lists the key=value pairs written to $GITHUB_OUTPUT.
func GitHubOutputs(reports []types.TargetReport, failures []types.ScanFailure, sarifPath string) [][2]string {
	return [][2]string{
		{"sarif_path", sarifPath},
		{"targets_scanned", fmt.Sprint(len(reports))},
		{"failures", fmt.Sprint(len(failures))},
	}
}

// AppendFile appends text plus a newline to path, creating it if needed.
// An empty path is a no-op.
func AppendFile(path, text string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(text + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
