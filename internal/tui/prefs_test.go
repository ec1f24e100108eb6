package tui

import (
	"os"
	"strings"
	"testing"
)

func TestLoadPrefsDefaults(t *testing.T) {
	withTempPrefs(t)
	if got := LoadPrefs(); got != DefaultPrefs() {
		t.Errorf("expected defaults, got %+v", got)
	}
}

func TestSaveLoadPrefs(t *testing.T) {
	withTempPrefs(t)
	want := Prefs{ContextLines: 7, HideInfo: true}
	if err := SavePrefs(want); err != nil {
		t.Fatalf("SavePrefs: %v", err)
	}
	if got := LoadPrefs(); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestLoadPrefsClampsContext(t *testing.T) {
	withTempPrefs(t)
	path, _ := prefsPath()
	if err := os.WriteFile(path, []byte(`{"context_lines": 99}`), 0600); err != nil {
		t.Fatal(err)
	}
	if got := LoadPrefs().ContextLines; got != DefaultPrefs().ContextLines {
		t.Errorf("expected out-of-range value replaced by default, got %d", got)
	}
}

func TestReadFileContext(t *testing.T) {
	path := t.TempDir() + "/SKILL.md"
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, "line")
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		t.Fatal(err)
	}
	got, start, err := readFileContext(path, 2, 3)
	if err != nil {
		t.Fatalf("readFileContext: %v", err)
	}
	if start != 1 || len(got) != 5 {
		t.Errorf("expected lines 1-5, got start %d and %d lines", start, len(got))
	}
	if _, _, err := readFileContext(path, 0, 3); err == nil {
		t.Error("expected an error without a line number")
	}
}

func TestHighlightFallsBackToInput(t *testing.T) {
	out := Highlight("# Title", "SKILL")
	if !strings.Contains(out, "Title") {
		t.Errorf("expected highlighted output to keep the text, got %q", out)
	}
}
