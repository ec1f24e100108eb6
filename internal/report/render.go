package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/varalys/skillvet/internal/types"
)

type PrintOptions struct {
	NoColor  bool
	Duration time.Duration
	// Baselined is the number of findings hidden by the baseline.
	Baselined int
}

type palette struct {
	noColor bool
}

func (p palette) paint(s string, attrs ...color.Attribute) string {
	if p.noColor {
		return s
	}
	return color.New(attrs...).Sprint(s)
}

func (p palette) badge(b types.Badge) string {
	label := strings.ToUpper(string(b))
	switch b {
	case types.BadgeCertified:
		return p.paint(label, color.FgGreen, color.Bold)
	case types.BadgeConditional, types.BadgeSuspicious:
		return p.paint(label, color.FgYellow, color.Bold)
	case types.BadgeRejected:
		return p.paint(label, color.FgRed, color.Bold)
	}
	return label
}

func (p palette) severity(s types.Severity) string {
	switch s {
	case types.SevCritical:
		return p.paint(string(s), color.FgRed, color.Bold)
	case types.SevHigh:
		return p.paint(string(s), color.FgMagenta)
	case types.SevMed:
		return p.paint(string(s), color.FgYellow)
	case types.SevLow:
		return p.paint(string(s), color.FgBlue)
	}
	return p.paint(string(s), color.FgHiBlack)
}

func (p palette) score(n int) string {
	s := fmt.Sprintf("%d/100", n)
	switch {
	case n >= 90:
		return p.paint(s, color.FgGreen)
	case n >= 50:
		return p.paint(s, color.FgYellow)
	}
	return p.paint(s, color.FgRed)
}

// sortedFindings orders by severity, then line, then ID.
func sortedFindings(fs []types.Finding) []types.Finding {
	out := append([]types.Finding(nil), fs...)
	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank(); ri != rj {
			return ri < rj
		}
		if out[i].LineNumber != out[j].LineNumber {
			return out[i].LineNumber < out[j].LineNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func bar(score int) string {
	n := min(50, max(0, (score+1)/2))
	return strings.Repeat("█", n) + strings.Repeat("░", 50-n)
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

// PrintTable writes one block per target: score, badge, category bars and
// a findings table.
func PrintTable(w io.Writer, reports []types.TargetReport, failures []types.ScanFailure, opts PrintOptions) {
	p := palette{noColor: opts.NoColor}
	for i, tr := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		r := tr.Report
		fmt.Fprintf(w, "%s  %s  %s  (%s, %s)\n", p.paint(tr.Target, color.Bold), p.score(r.Overall), p.badge(r.Badge),
			r.Metadata.SkillName, r.Metadata.SkillFormat)
		for _, cat := range types.Categories {
			cs, ok := r.Categories[cat]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "  %-13s %s %3d  (weight %d%%)\n", cat, p.paint(bar(cs.Score), scoreAttr(cs.Score)), cs.Score, int(cs.Weight*100+0.5))
		}
		if len(r.Findings) == 0 {
			fmt.Fprintln(w, "No security findings detected.")
			continue
		}
		table := tablewriter.NewWriter(w)
		table.Header("SEVERITY", "ID", "CATEGORY", "LINE", "TITLE", "EVIDENCE")
		for _, f := range sortedFindings(r.Findings) {
			line := ""
			if f.LineNumber > 0 {
				line = strconv.Itoa(f.LineNumber)
			}
			_ = table.Append([]string{p.severity(f.Severity), f.ID, string(f.Category), line, clip(f.Title, 50), clip(f.Evidence, 60)})
		}
		_ = table.Render()
	}
	printFailures(w, p, failures)
	printFooter(w, reports, failures, opts)
}

func scoreAttr(n int) color.Attribute {
	switch {
	case n >= 90:
		return color.FgGreen
	case n >= 50:
		return color.FgYellow
	}
	return color.FgRed
}

// PrintText is the long-form report: findings grouped by severity with
// evidence, line and recommendation.
func PrintText(w io.Writer, reports []types.TargetReport, failures []types.ScanFailure, opts PrintOptions) {
	p := palette{noColor: opts.NoColor}
	rule := strings.Repeat("─", 60)
	for _, tr := range reports {
		r := tr.Report
		fmt.Fprintln(w)
		fmt.Fprintln(w, p.paint("SkillVet v"+r.Metadata.ScannerVersion, color.Bold))
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Target:        %s\n", tr.Target)
		fmt.Fprintf(w, "Overall Score: %s\n", p.score(r.Overall))
		fmt.Fprintf(w, "Badge:         %s\n", p.badge(r.Badge))
		fmt.Fprintf(w, "Format:        %s\n", r.Metadata.SkillFormat)
		fmt.Fprintf(w, "Duration:      %dms\n", r.Metadata.DurationMs)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Category Scores:")
		for _, cat := range types.Categories {
			if cs, ok := r.Categories[cat]; ok {
				fmt.Fprintf(w, "  %-15s %s %d/100 (weight: %d%%)\n", cat, p.paint(bar(cs.Score), scoreAttr(cs.Score)), cs.Score, int(cs.Weight*100+0.5))
			}
		}
		if len(r.Findings) == 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "No security findings detected.")
		} else {
			fmt.Fprintf(w, "\nFindings (%d):\n", len(r.Findings))
			for _, group := range groupBySeverity(r.Findings) {
				fmt.Fprintf(w, "\n  %s (%d)\n", p.severity(group.sev), len(group.findings))
				for _, f := range group.findings {
					fmt.Fprintf(w, "    ● %s\n", f.Title)
					if f.Evidence != "" {
						fmt.Fprintf(w, "      Evidence: %s\n", clip(f.Evidence, 120))
					}
					if f.LineNumber > 0 {
						fmt.Fprintf(w, "      Line: %d\n", f.LineNumber)
					}
					fmt.Fprintf(w, "      [%s] %s\n", f.OwaspCategory, clip(f.Recommendation, 120))
				}
			}
		}
		fmt.Fprintln(w, rule)
	}
	printFailures(w, p, failures)
	printFooter(w, reports, failures, opts)
}

type severityGroup struct {
	sev      types.Severity
	findings []types.Finding
}

func groupBySeverity(fs []types.Finding) []severityGroup {
	var out []severityGroup
	for _, sev := range []types.Severity{types.SevCritical, types.SevHigh, types.SevMed, types.SevLow, types.SevInfo} {
		var g []types.Finding
		for _, f := range fs {
			if f.Severity == sev {
				g = append(g, f)
			}
		}
		if len(g) > 0 {
			out = append(out, severityGroup{sev: sev, findings: g})
		}
	}
	return out
}

func printFailures(w io.Writer, p palette, failures []types.ScanFailure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, p.paint(fmt.Sprintf("Failed targets (%d):", len(failures)), color.FgRed, color.Bold))
	for _, f := range failures {
		fmt.Fprintf(w, "  %s: %s\n", f.Target, f.Error)
	}
}

func printFooter(w io.Writer, reports []types.TargetReport, failures []types.ScanFailure, opts PrintOptions) {
	if opts.Duration <= 0 && len(reports)+len(failures) <= 1 {
		return
	}
	c := SeverityCounts(reports)
	total := 0
	for _, n := range c {
		total += n
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Findings: %d (critical: %d, high: %d, medium: %d, low: %d, info: %d)\n",
		total, c[types.SevCritical], c[types.SevHigh], c[types.SevMed], c[types.SevLow], c[types.SevInfo])
	if opts.Baselined > 0 {
		fmt.Fprintf(w, "Baselined: %d\n", opts.Baselined)
	}
	fmt.Fprintf(w, "Targets scanned: %d, failures: %d\n", len(reports), len(failures))
	if opts.Duration > 0 {
		fmt.Fprintf(w, "Scan duration: %.2fs\n", opts.Duration.Seconds())
	}
}

// WriteJSON writes a single report as a bare TrustReport, and anything else
// as {"reports": [...], "failures": [...]}.
func WriteJSON(w io.Writer, reports []types.TargetReport, failures []types.ScanFailure) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(reports) == 1 && len(failures) == 0 {
		return enc.Encode(reports[0].Report)
	}
	if reports == nil {
		reports = []types.TargetReport{}
	}
	if failures == nil {
		failures = []types.ScanFailure{}
	}
	return enc.Encode(struct {
		Reports  []types.TargetReport `json:"reports"`
		Failures []types.ScanFailure  `json:"failures"`
	}{reports, failures})
}
