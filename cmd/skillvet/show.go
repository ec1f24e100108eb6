package skillvet

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/varalys/skillvet/internal/tui"
	"github.com/varalys/skillvet/internal/types"
)

var showOpts scanFlags

func init() {
	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "Print a skill file with syntax highlighting and its findings inline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			path := args[0]
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			ws := loadWorkspace()
			s, err := showOpts.scanner(ctx, cmd, ws)
			if err != nil {
				return err
			}
			tr, err := s.ScanTarget(ctx, path)
			if err != nil {
				return err
			}
			printAnnotated(cmd.OutOrStdout(), path, string(src), tr.Report)
			return nil
		},
	}
	showOpts.register(cmd)
	rootCmd.AddCommand(cmd)
}

// printAnnotated writes src with line numbers, marking each line that has
// findings and listing them under it. Findings without a line follow the
// source.
func printAnnotated(w io.Writer, path, src string, r types.TrustReport) {
	byLine := map[int][]types.Finding{}
	var unplaced []types.Finding
	for _, f := range r.Findings {
		if f.LineNumber > 0 {
			byLine[f.LineNumber] = append(byLine[f.LineNumber], f)
		} else {
			unplaced = append(unplaced, f)
		}
	}

	highlighted := src
	if !color.NoColor {
		highlighted = tui.Highlight(src, path)
	}
	lines := strings.Split(strings.TrimSuffix(highlighted, "\n"), "\n")
	mark := color.New(color.FgRed, color.Bold)
	dim := color.New(color.FgHiBlack)
	for i, line := range lines {
		n := i + 1
		fs := byLine[n]
		gutter := "  "
		if len(fs) > 0 {
			gutter = mark.Sprint("▶ ")
		}
		fmt.Fprintf(w, "%s%s %s\n", gutter, dim.Sprintf("%4d", n), line)
		for _, f := range fs {
			fmt.Fprintf(w, "       %s %s [%s] %s\n", mark.Sprint("└"), severityLabel(f.Severity), f.ID, f.Title)
		}
	}

	fmt.Fprintln(w)
	if len(unplaced) > 0 {
		sort.SliceStable(unplaced, func(i, j int) bool { return unplaced[i].Severity.Rank() < unplaced[j].Severity.Rank() })
		fmt.Fprintln(w, "Findings without a source line:")
		for _, f := range unplaced {
			fmt.Fprintf(w, "  %s [%s] %s\n", severityLabel(f.Severity), f.ID, f.Title)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%s  %d/100  %s\n", path, r.Overall, strings.ToUpper(string(r.Badge)))
}

func severityLabel(s types.Severity) string {
	label := fmt.Sprintf("%-8s", strings.ToUpper(string(s)))
	switch s {
	case types.SevCritical:
		return color.New(color.FgRed, color.Bold).Sprint(label)
	case types.SevHigh:
		return color.New(color.FgMagenta).Sprint(label)
	case types.SevMed:
		return color.New(color.FgYellow).Sprint(label)
	case types.SevLow:
		return color.New(color.FgBlue).Sprint(label)
	}
	return label
}
