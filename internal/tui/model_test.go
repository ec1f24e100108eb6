package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/varalys/skillvet/internal/report"
	"github.com/varalys/skillvet/internal/types"
)

func sampleReports() []types.TargetReport {
	return []types.TargetReport{
		{Target: "skills/deploy/SKILL.md", Report: types.TrustReport{
			Overall: 42,
			Badge:   types.BadgeRejected,
			Metadata: types.ScanMetadata{SkillName: "deploy", SkillFormat: types.FormatClaude},
			Findings: []types.Finding{
				{ID: "INJ-1", Category: types.CatInjection, Severity: types.SevCritical, Title: "Instruction override", Evidence: "ignore all previous instructions", OwaspCategory: "ASST-01"},
				{ID: "CONT-2", Category: types.CatContent, Severity: types.SevInfo, Title: "Safety boundaries present", OwaspCategory: "ASST-09"},
			},
		}},
		{Target: "skills/notes/SKILL.md", Report: types.TrustReport{
			Overall: 88,
			Badge:   types.BadgeConditional,
			Metadata: types.ScanMetadata{SkillName: "notes", SkillFormat: types.FormatGeneric},
			Findings: []types.Finding{
				{ID: "DEP-1", Category: types.CatDependencies, Severity: types.SevMed, Title: "Unknown external URL", Evidence: "https://example.org/notes", OwaspCategory: "ASST-04"},
				{ID: "PERM-3", Category: types.CatPermissions, Severity: types.SevHigh, Title: "Shell access", Evidence: "shell", OwaspCategory: "ASST-03"},
			},
		}},
	}
}

func withTempPrefs(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.json")
	orig := prefsPath
	prefsPath = func() (string, error) { return path, nil }
	t.Cleanup(func() { prefsPath = orig })
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	dir := t.TempDir()
	return NewModel(sampleReports(), nil, Options{
		Root:         dir,
		BaselinePath: filepath.Join(dir, "skillvet.baseline.json"),
	})
}

func TestNewModel_SortsBySeverity(t *testing.T) {
	m := newTestModel(t)
	if len(m.display) != 4 {
		t.Fatalf("expected 4 findings, got %d", len(m.display))
	}
	want := []string{"INJ-1", "PERM-3", "DEP-1", "CONT-2"}
	for i, f := range m.visibleFindings() {
		if f.Finding.ID != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], f.Finding.ID)
		}
	}
}

func TestApplyFilters_SearchQuery(t *testing.T) {
	m := newTestModel(t)

	m.searchQuery = "notes"
	m.applyFilters()
	if len(m.display) != 2 {
		t.Errorf("expected 2 findings matching target 'notes', got %d", len(m.display))
	}

	m.searchQuery = "IGNORE ALL"
	m.applyFilters()
	if len(m.display) != 1 {
		t.Errorf("expected 1 finding matching evidence, got %d", len(m.display))
	}

	m.searchQuery = "asst-03"
	m.applyFilters()
	if len(m.display) != 1 {
		t.Errorf("expected 1 finding matching taxonomy code, got %d", len(m.display))
	}
}

func TestApplyFilters_SeverityFilter(t *testing.T) {
	m := newTestModel(t)
	m.severityFilter = types.SevHigh
	m.applyFilters()
	if len(m.display) != 1 {
		t.Fatalf("expected 1 HIGH finding, got %d", len(m.display))
	}

	m.clearFilters()
	if len(m.display) != 4 {
		t.Errorf("expected clearFilters to show all 4 findings, got %d", len(m.display))
	}
}

func TestHideInfo(t *testing.T) {
	withTempPrefs(t)
	m := newTestModel(t)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'H'}})
	m = updated.(Model)
	if len(m.display) != 3 {
		t.Errorf("expected info finding hidden, got %d rows", len(m.display))
	}
	if !LoadPrefs().HideInfo {
		t.Error("expected HideInfo to be persisted")
	}
}

func TestCycleSortColumn(t *testing.T) {
	m := newTestModel(t)
	m.cycleSortColumn()
	if m.sortColumn != SortSeverity {
		t.Fatalf("expected severity sort, got %q", m.sortColumn)
	}
	m.cycleSortColumn()
	if m.sortColumn != SortTarget {
		t.Fatalf("expected target sort, got %q", m.sortColumn)
	}
	if got := m.visibleFindings()[0].Target; got != "skills/deploy/SKILL.md" {
		t.Errorf("expected deploy first, got %s", got)
	}
	m.sortReverse = true
	m.applyFilters()
	if got := m.visibleFindings()[0].Target; got != "skills/notes/SKILL.md" {
		t.Errorf("expected notes first when reversed, got %s", got)
	}
	m.cycleSortColumn()
	if m.sortColumn != SortScore {
		t.Fatalf("expected score sort, got %q", m.sortColumn)
	}
	if got := m.visibleFindings()[0].Target; got != "skills/deploy/SKILL.md" {
		t.Errorf("expected lowest score first, got %s", got)
	}
	m.cycleSortColumn()
	if m.sortColumn != SortDefault {
		t.Errorf("expected cycle back to default, got %q", m.sortColumn)
	}
}

func TestJumpToSevere(t *testing.T) {
	m := newTestModel(t)
	if !m.jumpToSevere(1) {
		t.Fatal("expected a HIGH finding after the first row")
	}
	if m.table.Cursor() != 1 {
		t.Errorf("expected cursor on row 1, got %d", m.table.Cursor())
	}
	if m.jumpToSevere(1) {
		t.Error("expected no further HIGH or CRITICAL findings")
	}
	if !m.jumpToSevere(-1) || m.table.Cursor() != 0 {
		t.Errorf("expected to jump back to row 0, got %d", m.table.Cursor())
	}
}

func TestToggleBaseline(t *testing.T) {
	m := newTestModel(t)
	m.toggleBaseline()

	tf := m.visibleFindings()[0]
	if !m.baseline.Has(tf) {
		t.Fatal("expected selected finding to be baselined")
	}
	if got := m.table.Rows()[0][0]; !strings.HasPrefix(got, "(b) ") {
		t.Errorf("expected baselined marker, got %q", got)
	}
	saved, err := report.LoadBaseline(m.opts.BaselinePath)
	if err != nil {
		t.Fatalf("load baseline: %v", err)
	}
	if !saved.Has(tf) {
		t.Error("expected baseline file to contain the finding")
	}

	m.toggleBaseline()
	saved, _ = report.LoadBaseline(m.opts.BaselinePath)
	if saved.Has(tf) {
		t.Error("expected finding removed from baseline file")
	}
}

func TestIgnorePattern(t *testing.T) {
	root := t.TempDir()
	skill := filepath.Join(root, "skills", "deploy", "SKILL.md")
	if err := os.MkdirAll(filepath.Dir(skill), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(skill, []byte("# deploy\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m := NewModel(nil, nil, Options{Root: root})

	got, err := m.ignorePattern(skill)
	if err != nil {
		t.Fatalf("ignorePattern: %v", err)
	}
	if got != "skills/deploy/" {
		t.Errorf("expected skills/deploy/, got %q", got)
	}
	if _, err := m.ignorePattern("https://example.com/SKILL.md"); err == nil {
		t.Error("expected URL targets to be rejected")
	}
}

func TestRescanReplacesFindings(t *testing.T) {
	m := newTestModel(t)
	m.scanning = true
	updated, _ := m.Update(reportsMsg{reports: sampleReports()[:1]})
	m = updated.(Model)
	if m.scanning {
		t.Error("expected scanning to stop")
	}
	if len(m.display) != 2 {
		t.Errorf("expected 2 findings after rescan, got %d", len(m.display))
	}
	if !strings.Contains(m.statusMessage, "Rescan complete") {
		t.Errorf("unexpected status %q", m.statusMessage)
	}
}

func TestRescanUnavailable(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = updated.(Model)
	if m.scanning {
		t.Error("expected no scan without a rescan function")
	}
	if m.statusMessage != "Rescan not available" {
		t.Errorf("unexpected status %q", m.statusMessage)
	}
}

func TestEditorArgs(t *testing.T) {
	tests := []struct {
		editor string
		want   []string
	}{
		{"vim", []string{"+12", "a.md"}},
		{"/usr/bin/nvim", []string{"+12", "a.md"}},
		{"code", []string{"-g", "a.md:12"}},
		{"subl", []string{"a.md:12"}},
	}
	for _, tt := range tests {
		t.Run(tt.editor, func(t *testing.T) {
			got := editorArgs(tt.editor, "a.md", 12)
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("editorArgs(%q) = %v, want %v", tt.editor, got, tt.want)
			}
		})
	}
	if got := editorArgs("vim", "a.md", 0); len(got) != 1 {
		t.Errorf("expected no line argument without a line, got %v", got)
	}
}

func TestFindingsToCSV(t *testing.T) {
	m := newTestModel(t)
	data, err := findingsToCSV(m.visibleFindings())
	if err != nil {
		t.Fatalf("findingsToCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Target,ID,Severity") {
		t.Errorf("unexpected header %q", lines[0])
	}
}

func TestVisibleReportsKeepsScores(t *testing.T) {
	m := newTestModel(t)
	m.severityFilter = types.SevHigh
	m.applyFilters()
	reports := m.visibleReports()
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	if reports[0].Report.Overall != 88 || len(reports[0].Report.Findings) != 1 {
		t.Errorf("unexpected report %+v", reports[0].Report)
	}
}
