package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/varalys/skillvet/internal/types"
)

func TestBaselineRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultBaselineFile)
	known := types.TargetFinding{Target: "a/SKILL.md", Finding: types.Finding{ID: "DEP-URL-3", Evidence: "https://x.io", Severity: types.SevLow}}
	if err := SaveBaseline(path, []types.TargetFinding{known}); err != nil {
		t.Fatalf("SaveBaseline: %v", err)
	}
	base, err := LoadBaseline(path)
	if err != nil {
		t.Fatalf("LoadBaseline: %v", err)
	}
	renumbered := known
	renumbered.Finding.ID = "DEP-URL-7"
	fresh := types.TargetFinding{Target: "a/SKILL.md", Finding: types.Finding{ID: "DEP-URL-8", Evidence: "https://y.io"}}
	otherTarget := types.TargetFinding{Target: "b/SKILL.md", Finding: known.Finding}
	got := FilterNewFindings([]types.TargetFinding{renumbered, fresh, otherTarget}, base)
	if len(got) != 2 || got[0].Finding.ID != "DEP-URL-8" || got[1].Target != "b/SKILL.md" {
		t.Fatalf("unexpected new findings: %+v", got)
	}
}

func TestLoadBaseline_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadBaseline(filepath.Join(dir, "nope.json")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	b, err := LoadBaseline(bad)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if b.Items == nil {
		t.Fatalf("expected usable empty baseline")
	}
}

func TestShouldFail(t *testing.T) {
	findings := []types.TargetFinding{{Finding: types.Finding{Severity: types.SevMed}}}
	cases := []struct {
		failOn string
		want   bool
	}{
		{"none", false},
		{"critical", false},
		{"high", false},
		{"medium", true},
		{"low", true},
		{"info", true},
	}
	for _, c := range cases {
		t.Run(c.failOn, func(t *testing.T) {
			if got := ShouldFail(findings, c.failOn); got != c.want {
				t.Fatalf("ShouldFail(%s) = %v, want %v", c.failOn, got, c.want)
			}
		})
	}
	if ShouldFail(nil, "info") {
		t.Fatalf("no findings must not fail")
	}
}

func TestParseFailOn(t *testing.T) {
	if v, err := ParseFailOn(""); err != nil || v != "high" {
		t.Fatalf("default: %q %v", v, err)
	}
	if v, err := ParseFailOn(" Critical "); err != nil || v != "critical" {
		t.Fatalf("case: %q %v", v, err)
	}
	if _, err := ParseFailOn("severe"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestBaselineAddRemove(t *testing.T) {
	b := Baseline{Items: map[string]bool{}}
	f := types.TargetFinding{Target: "x", Finding: types.Finding{ID: "BEH-EXEC-1", Evidence: "rm -rf"}}
	if b.Has(f) {
		t.Fatalf("empty baseline must not contain finding")
	}
	b.Add(f)
	if !b.Has(f) {
		t.Fatalf("expected finding after Add")
	}
	b.Remove(f)
	if b.Has(f) {
		t.Fatalf("expected finding gone after Remove")
	}
}
