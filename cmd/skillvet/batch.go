package skillvet

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/varalys/skillvet/internal/artifacts"
	"github.com/varalys/skillvet/internal/engine"
	"github.com/varalys/skillvet/internal/types"
)

var (
	batchOpts scanFlags
	batchOut  string
)

func init() {
	cmd := &cobra.Command{
		Use:   "batch <list-file | targets...>",
		Short: "Scan many skills and write registry results",
		Long: "Batch scans every target (or every line of a list file) and writes results.json, " +
			"results.csv, summary.json and errors.json to --out. Failed targets are recorded, " +
			"never fatal.",
		Example: `  skillvet batch skills.txt --out results/
  skillvet batch https://clawhub.ai/acme/notes https://clawhub.ai/acme/deploy --concurrency 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBatch,
	}
	rootCmd.AddCommand(cmd)
	batchOpts.register(cmd)
	cmd.Flags().StringVar(&batchOut, "out", "skillvet-batch", "output directory")
}

// readTargetList reads one target per line, skipping blanks and # comments.
func readTargetList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// batchTargets treats a single regular non-skill file argument as a list
// file; anything else is expanded like scan targets.
func batchTargets(args []string, globs engine.Globs) ([]string, error) {
	if len(args) == 1 && engine.IsLocal(args[0]) && !artifacts.IsSkillFile(args[0]) {
		if st, err := os.Stat(args[0]); err == nil && st.Mode().IsRegular() {
			return readTargetList(args[0])
		}
	}
	return engine.ExpandTargets(args, globs)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ws := loadWorkspace()
	targets, err := batchTargets(args, batchOpts.globs(ws))
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets to scan")
	}
	s, err := batchOpts.scanner(ctx, cmd, ws)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Scanning %d skill(s)...\n", len(targets))
	b := s.ScanTargets(ctx, targets, batchOpts.options(cmd, ws))
	summary := engine.Summarize(b, time.Now())
	if err := engine.WriteBatch(batchOut, b, summary); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned %d of %d skills in %.1fs (concurrency %d)\n", summary.Scanned, summary.TotalSkills,
		b.Duration.Seconds(), b.Concurrency)
	fmt.Fprintf(out, "Average score %.1f, median %.1f\n", summary.AverageScore, summary.MedianScore)
	for _, badge := range []types.Badge{types.BadgeCertified, types.BadgeConditional, types.BadgeSuspicious, types.BadgeRejected} {
		fmt.Fprintf(out, "  %-12s %d\n", badge, summary.Badges[badge])
	}
	if summary.Failed > 0 {
		fmt.Fprintf(out, "Failed: %d (see %s/errors.json)\n", summary.Failed, batchOut)
	}
	fmt.Fprintln(out, "Wrote", batchOut)
	return nil
}
