package skillvet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/varalys/skillvet/internal/config"
	"github.com/varalys/skillvet/internal/files"
	"github.com/varalys/skillvet/internal/report"
)

var (
	cfgOutput      string
	cfgFailOn      string
	cfgInclude     string
	cfgExclude     string
	cfgConcurrency int
	cfgTimeout     string
	cfgSemantic    bool
	cfgModel       string
	cfgIgnore      bool
	cfgForce       bool
)

func init() {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	rootCmd.AddCommand(cfgCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a .skillvet.yml (and optionally a .skillvetignore)",
		RunE:  runConfigInit,
	}
	cfgCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&cfgOutput, "output", ".skillvet.yml", "output file path")
	initCmd.Flags().StringVar(&cfgFailOn, "fail-on", "high", "severity that fails CI: "+strings.Join(report.FailOnLevels, "|"))
	completeValues(initCmd, "fail-on", report.FailOnLevels...)
	initCmd.Flags().StringVar(&cfgInclude, "include", "", "comma-separated include globs")
	initCmd.Flags().StringVar(&cfgExclude, "exclude", "", "comma-separated exclude globs")
	initCmd.Flags().IntVar(&cfgConcurrency, "concurrency", 0, "targets scanned at once (0 = default)")
	initCmd.Flags().StringVar(&cfgTimeout, "timeout", "", "per-attempt fetch timeout, e.g. 30s")
	initCmd.Flags().BoolVar(&cfgSemantic, "semantic", false, "enable LLM semantic analysis by default")
	initCmd.Flags().StringVar(&cfgModel, "model", "", "LLM model for semantic analysis")
	initCmd.Flags().BoolVar(&cfgIgnore, "ignore", false, "also write a .skillvetignore with common vendored directories")
	initCmd.Flags().BoolVar(&cfgForce, "force", false, "overwrite an existing config file")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the global config file location",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := config.GlobalPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cfgCmd.AddCommand(pathCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	failOn, err := report.ParseFailOn(cfgFailOn)
	if err != nil {
		return err
	}
	if cfgTimeout != "" {
		if _, err := config.Duration(&cfgTimeout, 0); err != nil {
			return err
		}
	}
	if _, err := os.Stat(cfgOutput); err == nil && !cfgForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgOutput)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	fc := config.FileConfig{
		Include:     optStrPtr(cfgInclude),
		Exclude:     optStrPtr(cfgExclude),
		FailOn:      strPtr(failOn),
		Concurrency: intPtr(cfgConcurrency),
		Timeout:     optStrPtr(cfgTimeout),
		Semantic:    boolPtr(cfgSemantic),
	}
	if cfgModel != "" {
		fc.LLM = &config.LLMConfig{Model: strPtr(cfgModel)}
	}

	b, err := yaml.Marshal(&fc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgOutput, b, 0644); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Wrote", cfgOutput)

	if cfgIgnore {
		dir := filepath.Dir(cfgOutput)
		for _, p := range files.DefaultIgnores() {
			if err := files.AppendIgnore(dir, p); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Wrote", filepath.Join(dir, ".skillvetignore"))
	}
	return nil
}

func strPtr(s string) *string { return &s }
func optStrPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
func intPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
func boolPtr(v bool) *bool { return &v }
