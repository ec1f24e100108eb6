package skillvet

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/varalys/skillvet/internal/report"
)

var baselineOpts scanFlags

func init() {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage baselines",
	}

	update := &cobra.Command{
		Use:   "update [targets...]",
		Short: "Accept every current finding so later scans only report new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ws := loadWorkspace()
			targets, err := resolveTargets(ws, args, baselineOpts.globs(ws))
			if err != nil {
				return err
			}
			s, err := baselineOpts.scanner(ctx, cmd, ws)
			if err != nil {
				return err
			}
			b := s.ScanTargets(ctx, targets, baselineOpts.options(cmd, ws))
			for _, f := range b.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s\n", f.Target, f.Error)
			}
			findings := report.Flatten(b.Reports)
			path := filepath.Join(ws.root, flagBaseline)
			if filepath.IsAbs(flagBaseline) {
				path = flagBaseline
			}
			if err := report.SaveBaseline(path, findings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Baseline updated: %d findings in %d skills.\n", len(findings), len(b.Reports))
			return nil
		},
	}
	baselineOpts.register(update)
	update.Flags().StringVar(&flagBaseline, "baseline", report.DefaultBaselineFile, "baseline file to write")

	rootCmd.AddCommand(cmd)
	cmd.AddCommand(update)
}
