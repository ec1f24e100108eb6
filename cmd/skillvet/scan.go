package skillvet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/varalys/skillvet/internal/audit"
	"github.com/varalys/skillvet/internal/cache"
	"github.com/varalys/skillvet/internal/engine"
	"github.com/varalys/skillvet/internal/git"
	"github.com/varalys/skillvet/internal/report"
	"github.com/varalys/skillvet/internal/tui"
	"github.com/varalys/skillvet/internal/types"
	"github.com/varalys/skillvet/internal/update"
)

// Exit codes of scan.
const (
	exitOK      = 0
	exitFailOn  = 1
	exitFailure = 2
)

var (
	scanOpts scanFlags

	flagJSON         bool
	flagSARIF        bool
	flagText         bool
	flagOut          string
	flagReport       string
	flagFailOn       string
	flagBase         string
	flagStaged       bool
	flagBaseline     string
	flagGitHubOutput bool
	flagUploadURL    string
	flagUploadToken  string
	flagNoUploadMeta bool
	flagTUI          bool
	flagCached       bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "scan [targets...]",
		Short: "Scan skill files, directories, URLs or oci:// bundles",
		Long: "Scan scores each target and prints a trust report. Directories are searched for SKILL.md and " +
			"skills.md files. Exit status is 2 when a target could not be scanned, 1 when a finding reaches " +
			"--fail-on, and 0 otherwise.",
		Example: `  skillvet scan .
  skillvet scan skills/deploy/SKILL.md --fail-on critical
  skillvet scan https://clawhub.ai/acme/notes --json
  skillvet scan --base main --sarif --out skillvet.sarif`,
		RunE: runScan,
	}
	rootCmd.AddCommand(cmd)

	scanOpts.register(cmd)
	cmd.Flags().BoolVar(&flagJSON, "json", false, "emit JSON")
	cmd.Flags().BoolVar(&flagSARIF, "sarif", false, "emit SARIF 2.1.0")
	cmd.Flags().BoolVar(&flagText, "text", false, "emit the long-form text report")
	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "write output to this file instead of stdout")
	cmd.Flags().StringVar(&flagReport, "report", "", "also write a markdown trust report (file, or directory for several targets)")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "exit 1 at or above this severity: "+strings.Join(report.FailOnLevels, "|")+" (default high)")
	completeValues(cmd, "fail-on", report.FailOnLevels...)
	cmd.Flags().StringVar(&flagBase, "base", "", "only scan skills changed against this git ref (e.g. main)")
	cmd.Flags().BoolVar(&flagStaged, "staged", false, "only scan skills with staged changes")
	cmd.Flags().StringVar(&flagBaseline, "baseline", report.DefaultBaselineFile, "baseline file of accepted findings")
	cmd.Flags().BoolVar(&flagGitHubOutput, "github-output", false, "write GitHub Actions outputs, job summary and SARIF file")
	cmd.Flags().StringVar(&flagUploadURL, "upload", "", "POST the reports (JSON) to this URL after the scan")
	cmd.Flags().StringVar(&flagUploadToken, "upload-token", "", "bearer token for --upload (default $SKILLVET_UPLOAD_TOKEN)")
	cmd.Flags().BoolVar(&flagNoUploadMeta, "no-upload-metadata", false, "do not include repo/commit/branch in the upload envelope")
	cmd.Flags().BoolVar(&flagTUI, "tui", false, "browse the results in an interactive viewer")
	cmd.Flags().BoolVar(&flagCached, "cached", false, "with --tui, open the last scan without rescanning")
}

func machineOutput() bool { return flagJSON || flagSARIF }

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ws := loadWorkspace()

	failOn, err := report.ParseFailOn(pickString(flagFailOn, ws.local.FailOn, ws.global.FailOn))
	if err != nil {
		return err
	}
	baselinePath := flagBaseline
	if !filepath.IsAbs(baselinePath) {
		baselinePath = filepath.Join(ws.root, baselinePath)
	}
	baseline := loadBaseline(baselinePath)

	if flagTUI && flagCached {
		res, err := cache.LoadResults(ws.root)
		if err != nil {
			return fmt.Errorf("no cached scan to open (run skillvet scan first): %w", err)
		}
		return tui.RunCached(res.Reports, res.Failures, tuiOptions(ctx, cmd, ws, args, baseline, baselinePath), res.Timestamp)
	}

	if !machineOutput() && !flagNoUpdateCheck {
		if latest, newer, _ := update.Check(version, false); newer && latest != "" {
			fmt.Fprintf(os.Stderr, "(new version available: v%s)  run 'skillvet --self-update' to upgrade\n", latest)
		}
	}

	batch, err := scanWorkspace(ctx, cmd, ws, args)
	if err != nil {
		return err
	}

	all := report.Flatten(batch.Reports)
	newFindings := report.FilterNewFindings(all, baseline)
	visible := batch.Reports
	if len(newFindings) != len(all) {
		visible = withoutBaselined(batch.Reports, baseline)
	}

	if err := writeOutput(visible, batch, len(all)-len(newFindings)); err != nil {
		return err
	}
	if flagReport != "" {
		if err := writeMarkdownReports(flagReport, visible); err != nil {
			return err
		}
	}
	if flagGitHubOutput {
		if err := writeGitHubOutputs(ws, visible, batch.Failures); err != nil {
			return err
		}
	}
	if flagUploadURL != "" {
		token := flagUploadToken
		if token == "" {
			token = ws.env.UploadToken
		}
		// do not fail the scan on upload errors
		if err := uploadReports(ws.root, flagUploadURL, token, flagNoUploadMeta, batch); err != nil {
			fmt.Fprintln(os.Stderr, "upload warning:", err)
		}
	}

	record := audit.CreateScanRecord(ws.root, batch.Reports, batch.Failures, len(newFindings), batch.Duration, flagBaseline)
	if _, err := audit.NewAuditLog(ws.root).LogScan(record); err != nil {
		slog.Warn("audit log not written", "err", err)
	}
	if err := cache.SaveResults(ws.root, batch.Reports, batch.Failures); err != nil {
		slog.Warn("scan results not cached", "err", err)
	}

	if flagTUI {
		return tui.Run(batch.Reports, batch.Failures, tuiOptions(ctx, cmd, ws, args, baseline, baselinePath))
	}
	if code := exitCode(batch.Failures, newFindings, failOn); code != exitOK {
		os.Exit(code)
	}
	return nil
}

// exitCode is 2 when any target failed, 1 when a finding meets the fail-on
// threshold, 0 otherwise.
func exitCode(failures []types.ScanFailure, findings []types.TargetFinding, failOn string) int {
	if len(failures) > 0 {
		return exitFailure
	}
	if report.ShouldFail(findings, failOn) {
		return exitFailOn
	}
	return exitOK
}

func loadBaseline(path string) report.Baseline {
	b, err := report.LoadBaseline(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring baseline", "path", path, "err", err)
	}
	return b
}

// resolveTargets applies --base / --staged and expands directories. No
// arguments means the working directory.
func resolveTargets(ws workspace, args []string, globs engine.Globs) ([]string, error) {
	targets := args
	if len(targets) == 0 {
		targets = []string{"."}
	}
	if flagBase != "" || flagStaged {
		var changed []string
		var err error
		if flagStaged {
			changed, err = git.StagedFiles(ws.root)
		} else {
			changed, err = git.ChangedFiles(ws.root, flagBase)
		}
		if err != nil {
			return nil, err
		}
		targets = git.SkillsFor(ws.root, changed)
		slog.Debug("changed skills", "count", len(targets))
		if len(targets) == 0 {
			return nil, nil
		}
	}
	return engine.ExpandTargets(targets, globs)
}

func scanWorkspace(ctx context.Context, cmd *cobra.Command, ws workspace, args []string) (engine.Batch, error) {
	targets, err := resolveTargets(ws, args, scanOpts.globs(ws))
	if err != nil {
		return engine.Batch{}, err
	}
	if len(targets) == 0 {
		if !machineOutput() {
			fmt.Fprintln(os.Stderr, "No skill files to scan.")
		}
		return engine.Batch{Reports: []types.TargetReport{}, Failures: []types.ScanFailure{}}, nil
	}
	s, err := scanOpts.scanner(ctx, cmd, ws)
	if err != nil {
		return engine.Batch{}, err
	}
	if !machineOutput() {
		fmt.Fprintf(os.Stderr, "Scanning %d skill(s)...\n", len(targets))
	}
	opts := scanOpts.options(cmd, ws)
	if machineOutput() {
		opts.Progress = nil
	}
	return s.ScanTargets(ctx, targets, opts), nil
}

// withoutBaselined copies reports with baselined findings removed from the
// finding list. Scores are left as computed.
func withoutBaselined(reports []types.TargetReport, b report.Baseline) []types.TargetReport {
	out := make([]types.TargetReport, len(reports))
	for i, tr := range reports {
		kept := []types.Finding{}
		for _, f := range tr.Report.Findings {
			if !b.Has(types.TargetFinding{Target: tr.Target, Finding: f}) {
				kept = append(kept, f)
			}
		}
		tr.Report.Findings = kept
		out[i] = tr
	}
	return out
}

func writeOutput(reports []types.TargetReport, batch engine.Batch, baselined int) (err error) {
	var w io.Writer = os.Stdout
	if flagOut != "" {
		f, ferr := os.Create(flagOut)
		if ferr != nil {
			return fmt.Errorf("create %s: %w", flagOut, ferr)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	opts := report.PrintOptions{NoColor: flagNoColor || flagOut != "", Duration: batch.Duration, Baselined: baselined}
	switch {
	case flagSARIF:
		if err := report.WriteSARIF(w, reports, batch.Failures); err != nil {
			return fmt.Errorf("sarif error: %w", err)
		}
	case flagJSON:
		return report.WriteJSON(w, reports, batch.Failures)
	case flagText:
		report.PrintText(w, reports, batch.Failures, opts)
	default:
		report.PrintTable(w, reports, batch.Failures, opts)
	}
	return nil
}

// writeMarkdownReports writes one markdown report per target. With a single
// target dest is the file; otherwise, or when dest is a directory, each
// report is named after its target inside dest.
func writeMarkdownReports(dest string, reports []types.TargetReport) error {
	asDir := len(reports) > 1 || strings.HasSuffix(dest, "/")
	if st, err := os.Stat(dest); err == nil && st.IsDir() {
		asDir = true
	}
	if asDir {
		if err := os.MkdirAll(dest, 0755); err != nil {
			return err
		}
	}
	for _, tr := range reports {
		p := dest
		if asDir {
			p = filepath.Join(dest, report.ReportPath(tr.Target))
		}
		md := report.Markdown(tr.Report, tr.Target, tr.Report.Metadata.ScannedAt)
		if err := os.WriteFile(p, []byte(md+"\n"), 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if !machineOutput() {
			fmt.Fprintln(os.Stderr, "Wrote", p)
		}
	}
	return nil
}

// writeGitHubOutputs writes the SARIF file code scanning uploads, the step
// outputs and the job summary. Outside Actions the env files are unset and
// only the SARIF file is written.
func writeGitHubOutputs(ws workspace, reports []types.TargetReport, failures []types.ScanFailure) error {
	sarifPath := flagOut
	if !flagSARIF || sarifPath == "" {
		sarifPath = filepath.Join(ws.root, "skillvet-results.sarif")
		f, err := os.Create(sarifPath)
		if err != nil {
			return err
		}
		if err := report.WriteSARIF(f, reports, failures); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	var lines []string
	for _, kv := range report.GitHubOutputs(reports, failures, sarifPath) {
		lines = append(lines, kv[0]+"="+kv[1])
	}
	if err := report.AppendFile(os.Getenv("GITHUB_OUTPUT"), strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("write GITHUB_OUTPUT: %w", err)
	}
	if err := report.AppendFile(os.Getenv("GITHUB_STEP_SUMMARY"), report.StepSummary(reports, failures, sarifPath)); err != nil {
		return fmt.Errorf("write GITHUB_STEP_SUMMARY: %w", err)
	}
	return nil
}

func tuiOptions(ctx context.Context, cmd *cobra.Command, ws workspace, args []string, b report.Baseline, baselinePath string) tui.Options {
	return tui.Options{
		Root:         ws.root,
		BaselinePath: baselinePath,
		Baseline:     b,
		Prefs:        tui.LoadPrefs(),
		Rescan: func() ([]types.TargetReport, []types.ScanFailure, error) {
			// the viewer owns the terminal
			opts := scanOpts.options(cmd, ws)
			opts.Progress = nil
			targets, err := resolveTargets(ws, args, scanOpts.globs(ws))
			if err != nil {
				return nil, nil, err
			}
			s, err := scanOpts.scanner(ctx, cmd, ws)
			if err != nil {
				return nil, nil, err
			}
			batch := s.ScanTargets(ctx, targets, opts)
			if err := cache.SaveResults(ws.root, batch.Reports, batch.Failures); err != nil {
				slog.Debug("scan results not cached", "err", err)
			}
			return batch.Reports, batch.Failures, nil
		},
	}
}
