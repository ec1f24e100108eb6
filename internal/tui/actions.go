package tui

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/varalys/skillvet/internal/files"
	"github.com/varalys/skillvet/internal/report"
	"github.com/varalys/skillvet/internal/types"
)

func status(format string, args ...any) tea.Cmd {
	msg := statusMsg(fmt.Sprintf(format, args...))
	return func() tea.Msg { return msg }
}

// isLocal reports whether target names a file on disk rather than a URL or
// registry reference.
func isLocal(target string) bool {
	if strings.Contains(target, "://") || strings.HasPrefix(target, "data:") {
		return false
	}
	st, err := os.Stat(target)
	return err == nil && !st.IsDir()
}

// editorArgs builds the argument list that opens path at line for the
// editors that spell "go to line" differently.
func editorArgs(editor, path string, line int) []string {
	base := filepath.Base(editor)
	if line <= 0 {
		return []string{path}
	}
	switch base {
	case "code", "code-insiders":
		return []string{"-g", fmt.Sprintf("%s:%d", path, line)}
	case "subl", "sublime", "sublime_text", "atom", "zed":
		return []string{fmt.Sprintf("%s:%d", path, line)}
	default:
		// vi, vim, nvim, nano, emacs and most others accept +line
		return []string{fmt.Sprintf("+%d", line), path}
	}
}

func (m Model) openEditor() tea.Cmd {
	tf := m.selected()
	if tf == nil {
		return nil
	}
	if !isLocal(tf.Target) {
		return status("%s is not a local file", tf.Target)
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vim"
	}
	c := exec.Command(editor, editorArgs(editor, tf.Target, tf.Finding.LineNumber)...)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		if err != nil {
			return statusMsg(fmt.Sprintf("Error opening editor: %v", err))
		}
		return statusMsg("Editor closed")
	})
}

// toggleBaseline adds the selected finding to the baseline or removes it,
// then writes the baseline file.
func (m *Model) toggleBaseline() tea.Cmd {
	tf := m.selected()
	if tf == nil {
		return nil
	}
	added := !m.baseline.Has(*tf)
	if added {
		m.baseline.Add(*tf)
	} else {
		m.baseline.Remove(*tf)
	}
	if err := m.baseline.Save(m.opts.BaselinePath); err != nil {
		return status("Error writing baseline: %v", err)
	}
	cursor := m.table.Cursor()
	m.rebuildTableRows()
	m.table.SetCursor(cursor)
	if added {
		return status("Added %s to %s", tf.Finding.ID, m.opts.BaselinePath)
	}
	return status("Removed %s from %s", tf.Finding.ID, m.opts.BaselinePath)
}

// ignorePattern is the .skillvetignore entry covering the directory of the
// selected skill.
func (m *Model) ignorePattern(target string) (string, error) {
	if !isLocal(target) {
		return "", fmt.Errorf("%s is not a local file", target)
	}
	root, err := filepath.Abs(m.opts.Root)
	if err != nil {
		return "", err
	}
	dir, err := filepath.Abs(filepath.Dir(target))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", target, m.opts.Root)
	}
	return filepath.ToSlash(rel) + "/", nil
}

func (m *Model) ignoreTarget() tea.Cmd {
	tf := m.selected()
	if tf == nil {
		return nil
	}
	pattern, err := m.ignorePattern(tf.Target)
	if err != nil {
		return status("Cannot ignore: %v", err)
	}
	if err := files.AppendIgnore(m.opts.Root, pattern); err != nil {
		return status("Error writing .skillvetignore: %v", err)
	}
	return status("Added %s to .skillvetignore", pattern)
}

func (m *Model) unignoreTarget() tea.Cmd {
	tf := m.selected()
	if tf == nil {
		return nil
	}
	pattern, err := m.ignorePattern(tf.Target)
	if err != nil {
		return status("Cannot unignore: %v", err)
	}
	if err := files.RemoveIgnore(m.opts.Root, pattern); err != nil {
		return status("Error writing .skillvetignore: %v", err)
	}
	return status("Removed %s from .skillvetignore", pattern)
}

func (m Model) copyEvidence() tea.Cmd {
	tf := m.selected()
	if tf == nil {
		return nil
	}
	if err := clipboard.WriteAll(tf.Finding.Evidence); err != nil {
		return status("Clipboard error: %v", err)
	}
	return status("Copied evidence to clipboard")
}

func formatFinding(tf types.TargetFinding) string {
	f := tf.Finding
	var sb strings.Builder
	fmt.Fprintf(&sb, "Target: %s\n", tf.Target)
	if f.LineNumber > 0 {
		fmt.Fprintf(&sb, "Line: %d\n", f.LineNumber)
	}
	fmt.Fprintf(&sb, "ID: %s\n", f.ID)
	fmt.Fprintf(&sb, "Severity: %s\n", f.Severity)
	fmt.Fprintf(&sb, "Category: %s (%s)\n", f.Category, f.OwaspCategory)
	fmt.Fprintf(&sb, "Title: %s\n", f.Title)
	fmt.Fprintf(&sb, "Evidence: %s\n", f.Evidence)
	fmt.Fprintf(&sb, "Recommendation: %s\n", f.Recommendation)
	return sb.String()
}

func (m Model) copyFinding() tea.Cmd {
	tf := m.selected()
	if tf == nil {
		return nil
	}
	if err := clipboard.WriteAll(formatFinding(*tf)); err != nil {
		return status("Clipboard error: %v", err)
	}
	return status("Copied finding details to clipboard")
}

// visibleReports regroups the visible findings by target, keeping each
// target's scores.
func (m *Model) visibleReports() []types.TargetReport {
	var out []types.TargetReport
	index := map[string]int{}
	for _, tf := range m.visibleFindings() {
		i, ok := index[tf.Target]
		if !ok {
			r := m.reports[tf.Target]
			r.Findings = nil
			i = len(out)
			index[tf.Target] = i
			out = append(out, types.TargetReport{Target: tf.Target, Report: r})
		}
		out[i].Report.Findings = append(out[i].Report.Findings, tf.Finding)
	}
	return out
}

func (m *Model) exportFindings(format string) tea.Cmd {
	visible := m.visibleFindings()
	if len(visible) == 0 {
		return status("No findings to export")
	}

	timestamp := time.Now().Format("20060102-150405")
	var filename string
	var data []byte
	var err error
	switch format {
	case "json":
		filename = fmt.Sprintf("skillvet-export-%s.json", timestamp)
		data, err = json.MarshalIndent(visible, "", "  ")
	case "csv":
		filename = fmt.Sprintf("skillvet-export-%s.csv", timestamp)
		data, err = findingsToCSV(visible)
	case "sarif":
		filename = fmt.Sprintf("skillvet-export-%s.sarif", timestamp)
		var sb strings.Builder
		err = report.WriteSARIF(&sb, m.visibleReports(), nil)
		data = []byte(sb.String())
	default:
		return status("Unknown format: %s", format)
	}
	if err != nil {
		return status("Export error: %v", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return status("Write error: %v", err)
	}
	absPath, _ := filepath.Abs(filename)
	return status("Exported %d findings to %s", len(visible), absPath)
}

func findingsToCSV(findings []types.TargetFinding) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"Target", "ID", "Severity", "Category", "Taxonomy", "Line", "Title", "Evidence", "Deduction"}); err != nil {
		return nil, err
	}
	for _, tf := range findings {
		f := tf.Finding
		line := ""
		if f.LineNumber > 0 {
			line = strconv.Itoa(f.LineNumber)
		}
		if err := w.Write([]string{
			tf.Target, f.ID, string(f.Severity), string(f.Category), f.OwaspCategory,
			line, f.Title, f.Evidence, strconv.Itoa(f.Deduction),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return []byte(sb.String()), w.Error()
}
