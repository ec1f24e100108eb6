package skillvet

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/varalys/skillvet/internal/audit"
	"github.com/varalys/skillvet/internal/types"
)

var (
	historyLimit int
	historyJSON  bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "history [scan-id]",
		Short: "List past scans from the audit log, or show one by ID prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := audit.NewAuditLog(loadWorkspace().root)
			if len(args) == 1 {
				rec, err := log.Find(args[0])
				if err != nil {
					return err
				}
				if historyJSON {
					return writeIndented(cmd.OutOrStdout(), rec)
				}
				printRecord(cmd.OutOrStdout(), rec)
				return nil
			}
			records, err := log.LoadHistory()
			if err != nil {
				return err
			}
			if historyLimit > 0 && len(records) > historyLimit {
				records = records[:historyLimit]
			}
			if historyJSON {
				return writeIndented(cmd.OutOrStdout(), records)
			}
			return printHistory(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "show at most this many scans (0 = all)")
	cmd.Flags().BoolVar(&historyJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(cmd)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printHistory(w io.Writer, records []audit.ScanRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No scan history found.")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("ID", "TIME", "TARGETS", "FINDINGS", "NEW", "FAILURES", "DURATION")
	for _, r := range records {
		_ = table.Append([]string{
			shortID(r.ScanID),
			r.Timestamp.Format("2006-01-02 15:04:05"),
			strconv.Itoa(r.Targets),
			strconv.Itoa(r.TotalFindings),
			strconv.Itoa(r.NewFindings),
			strconv.Itoa(r.Failures),
			r.Duration,
		})
	}
	return table.Render()
}

func printRecord(w io.Writer, r audit.ScanRecord) {
	fmt.Fprintf(w, "Scan %s at %s\n", r.ScanID, r.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Root: %s\n", r.Root)
	fmt.Fprintf(w, "Targets: %d, failures: %d, duration: %s\n", r.Targets, r.Failures, r.Duration)
	fmt.Fprintf(w, "Findings: %d (%d new, %d baselined)\n", r.TotalFindings, r.NewFindings, r.BaselinedCount)
	for _, sev := range []types.Severity{types.SevCritical, types.SevHigh, types.SevMed, types.SevLow, types.SevInfo} {
		if n := r.SeverityCounts[string(sev)]; n > 0 {
			fmt.Fprintf(w, "  %-8s %d\n", sev, n)
		}
	}
	if len(r.Skills) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.Header("TARGET", "NAME", "SCORE", "BADGE", "FINDINGS")
		for _, s := range r.Skills {
			_ = table.Append([]string{s.Target, s.Name, strconv.Itoa(s.Score), string(s.Badge), strconv.Itoa(s.Findings)})
		}
		_ = table.Render()
	}
	if len(r.FailedTargets) > 0 {
		fmt.Fprintf(w, "\nFailed targets (%d):\n", len(r.FailedTargets))
		for _, f := range r.FailedTargets {
			fmt.Fprintf(w, "  %s: %s\n", f.Target, f.Error)
		}
	}
	if r.BaselineFile != "" {
		fmt.Fprintf(w, "\nBaseline: %s\n", r.BaselineFile)
	}
}
