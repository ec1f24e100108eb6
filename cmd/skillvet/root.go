package skillvet

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/varalys/skillvet/internal/config"
	"github.com/varalys/skillvet/internal/types"
)

var (
	flagNoColor       bool
	flagVerbose       bool
	flagNoUpdateCheck bool
	flagSelfUpdate    bool

	version = types.ScannerVersion
)

// rootCmd is the base Cobra command for the SkillVet CLI.
var rootCmd = &cobra.Command{
	Use:   "skillvet",
	Short: "Security scanner for AI agent skills",
	Long: "SkillVet statically analyzes agent skill documents (SKILL.md) for permission abuse, " +
		"prompt injection, risky dependencies, behavioral red flags and content issues, " +
		"and reports a 0-100 trust score with a badge.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		setupLogging()
		if flagNoColor || !term.IsTerminal(int(os.Stdout.Fd())) {
			color.NoColor = true
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if flagSelfUpdate {
			if err := selfUpdate(); err != nil {
				return fmt.Errorf("self-update: %w", err)
			}
			fmt.Fprintln(os.Stderr, "updated to latest; re-run command")
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the SkillVet CLI. It should be called by the main package.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colorized output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging on stderr")
	rootCmd.PersistentFlags().BoolVar(&flagNoUpdateCheck, "no-update-check", false, "disable update check")
	rootCmd.Flags().BoolVar(&flagSelfUpdate, "self-update", false, "update skillvet to the latest release")
}

// setupLogging installs the default slog handler. SKILLVET_LOG_LEVEL picks
// the level; --verbose forces debug.
func setupLogging() {
	level := slog.LevelWarn
	if env, err := config.LoadEnv("."); err == nil {
		_ = level.UnmarshalText([]byte(env.LogLevel))
	}
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
