package report

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/varalys/skillvet/internal/types"
)

// DefaultBaselineFile is read by scan and written by `baseline update`.
const DefaultBaselineFile = "skillvet.baseline.json"

type Baseline struct {
	Items map[string]bool `json:"items"`
}

func LoadBaseline(path string) (Baseline, error) {
	b := Baseline{Items: map[string]bool{}}
	f, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(f, &b); err != nil {
		return Baseline{Items: map[string]bool{}}, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	if b.Items == nil {
		b.Items = map[string]bool{}
	}
	return b, nil
}

func SaveBaseline(path string, findings []types.TargetFinding) error {
	b := Baseline{Items: map[string]bool{}}
	for _, f := range findings {
		b.Add(f)
	}
	return b.Save(path)
}

// Flatten lists every finding of every report, tagged with its target.
func Flatten(reports []types.TargetReport) []types.TargetFinding {
	var out []types.TargetFinding
	for _, r := range reports {
		for _, f := range r.Report.Findings {
			out = append(out, types.TargetFinding{Target: r.Target, Finding: f})
		}
	}
	return out
}

// Has reports whether f is suppressed by the baseline.
func (b Baseline) Has(f types.TargetFinding) bool { return b.Items[key(f)] }

// Add suppresses f.
func (b Baseline) Add(f types.TargetFinding) { b.Items[key(f)] = true }

// Remove stops suppressing f.
func (b Baseline) Remove(f types.TargetFinding) { delete(b.Items, key(f)) }

// Save writes the baseline as JSON.
func (b Baseline) Save(path string) error {
	buf, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}

func FilterNewFindings(findings []types.TargetFinding, base Baseline) []types.TargetFinding {
	var out []types.TargetFinding
	for _, f := range findings {
		if !base.Items[key(f)] {
			out = append(out, f)
		}
	}
	return out
}

var reOrdinal = regexp.MustCompile(`-\d+$`)

// key drops the per-report ordinal from the finding ID so that a finding
// keeps its baseline entry when an unrelated finding is added before it.
func key(f types.TargetFinding) string {
	return f.Target + "|" + reOrdinal.ReplaceAllString(f.Finding.ID, "") + "|" + f.Finding.Evidence
}

// FailOnLevels lists the accepted --fail-on values.
var FailOnLevels = []string{"none", "critical", "high", "medium", "low", "info"}

// ParseFailOn validates a --fail-on value. Empty means high.
func ParseFailOn(s string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return "high", nil
	}
	for _, l := range FailOnLevels {
		if v == l {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid fail-on %q (want one of %s)", s, strings.Join(FailOnLevels, ", "))
}

// ShouldFail reports whether any finding is at or above the threshold
// severity. "none" never fails.
func ShouldFail(findings []types.TargetFinding, failOn string) bool {
	if failOn == "none" {
		return false
	}
	th, ok := types.ParseSeverity(failOn)
	if !ok {
		th = types.SevHigh
	}
	for _, f := range findings {
		if f.Finding.Severity.Rank() <= th.Rank() {
			return true
		}
	}
	return false
}

// SeverityCounts tallies findings per severity, with every level present.
func SeverityCounts(reports []types.TargetReport) map[types.Severity]int {
	counts := map[types.Severity]int{
		types.SevCritical: 0, types.SevHigh: 0, types.SevMed: 0, types.SevLow: 0, types.SevInfo: 0,
	}
	for _, r := range reports {
		for _, f := range r.Report.Findings {
			counts[f.Severity]++
		}
	}
	return counts
}
