package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/varalys/skillvet/internal/types"
)

// Run starts the viewer over a fresh scan.
func Run(reports []types.TargetReport, failures []types.ScanFailure, opts Options) error {
	return run(NewModel(reports, failures, opts))
}

// RunCached starts the viewer over results loaded from the scan cache.
func RunCached(reports []types.TargetReport, failures []types.ScanFailure, opts Options, timestamp time.Time) error {
	m := NewModel(reports, failures, opts)
	m.viewingCached = true
	m.lastScanTime = timestamp
	return run(m)
}

func run(m Model) error {
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
