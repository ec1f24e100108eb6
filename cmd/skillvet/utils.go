package skillvet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	semver3 "github.com/blang/semver"
	semver "github.com/blang/semver/v4"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/varalys/skillvet/internal/artifacts"
	"github.com/varalys/skillvet/internal/config"
	"github.com/varalys/skillvet/internal/engine"
	"github.com/varalys/skillvet/internal/git"
	"github.com/varalys/skillvet/internal/rules"
	"github.com/varalys/skillvet/internal/semantic"
	"github.com/varalys/skillvet/internal/types"
)

func selfUpdate() error {
	v := version
	// Use build info if tag overridden at build-time
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(v) == 0 {
				v = s.Value
			}
		}
	}
	ver, err := semver.ParseTolerant(v)
	if err != nil {
		ver = semver.MustParse("0.0.0")
	}
	latest, err := selfupdate.UpdateSelf(semver3.MustParse(ver.String()), "varalys/skillvet")
	if err != nil {
		return err
	}
	slog.Debug("self-update finished", "version", latest.Version.String())
	return nil
}

// workspace is where scan state lives: the enclosing git work tree when
// there is one, the working directory otherwise. Configs are read from it.
type workspace struct {
	root   string
	local  config.FileConfig
	global config.FileConfig
	env    config.Env
}

func loadWorkspace() workspace {
	cwd, _ := os.Getwd()
	ws := workspace{root: cwd}
	if top, err := git.TopLevel(cwd); err == nil {
		ws.root = top
	}
	if c, err := config.LoadGlobal(); err == nil {
		ws.global = c
	} else if !errors.Is(err, config.ErrNoConfig) {
		slog.Warn("ignoring global config", "err", err)
	}
	if c, err := config.LoadLocal(ws.root); err == nil {
		ws.local = c
	} else if !errors.Is(err, config.ErrNoConfig) {
		slog.Warn("ignoring local config", "err", err)
	}
	env, err := config.LoadEnv(ws.root)
	if err != nil {
		slog.Warn("ignoring environment", "err", err)
	}
	ws.env = env
	return ws
}

func (ws workspace) llm() (local, global config.LLMConfig) {
	if ws.local.LLM != nil {
		local = *ws.local.LLM
	}
	if ws.global.LLM != nil {
		global = *ws.global.LLM
	}
	return local, global
}

// scanFlags are the flags shared by every command that runs scans.
type scanFlags struct {
	include         string
	exclude         string
	concurrency     int
	timeout         time.Duration
	retries         int
	noCache         bool
	semantic        bool
	rules           []string
	maxArchiveBytes int64
	maxEntries      int
	maxFileBytes    int64
	maxTotalBytes   int64
}

func (f *scanFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.include, "include", "", "comma-separated include globs for directory targets")
	fs.StringVar(&f.exclude, "exclude", "", "comma-separated exclude globs for directory targets")
	fs.IntVar(&f.concurrency, "concurrency", 0, fmt.Sprintf("targets scanned at once (default %d)", engine.DefaultConcurrency))
	fs.DurationVar(&f.timeout, "timeout", 0, "per-attempt fetch timeout for URL targets (default 30s)")
	fs.IntVar(&f.retries, "retries", 2, "retries for transient fetch failures")
	fs.BoolVar(&f.noCache, "no-cache", false, "disable the report cache for local files")
	fs.BoolVar(&f.semantic, "semantic", false, "add LLM semantic analysis (needs SKILLVET_LLM_API_KEY)")
	fs.StringSliceVar(&f.rules, "rules", nil, "YAML rule files merged over the built-in rules")
	fs.Int64Var(&f.maxArchiveBytes, "max-archive-bytes", 0, "max bytes of a downloaded zip or image layer")
	fs.IntVar(&f.maxEntries, "max-entries", 0, "max entries read from one archive")
	fs.Int64Var(&f.maxFileBytes, "max-file-bytes", 0, "max bytes of one skill file inside an archive")
	fs.Int64Var(&f.maxTotalBytes, "max-total-bytes", 0, "max bytes of skill candidates read from one archive")
}

func (f *scanFlags) globs(ws workspace) engine.Globs {
	return engine.Globs{
		Include: pickString(f.include, ws.local.Include, ws.global.Include),
		Exclude: pickString(f.exclude, ws.local.Exclude, ws.global.Exclude),
	}
}

func (f *scanFlags) limits(ws workspace) artifacts.Limits {
	lim := artifacts.DefaultLimits()
	if v := pickInt64(f.maxArchiveBytes, int64Of(ws.local.MaxArchiveBytes), int64Of(ws.global.MaxArchiveBytes)); v > 0 {
		lim.MaxArchiveBytes = v
	}
	if v := pickInt(f.maxEntries, ws.local.MaxEntries, ws.global.MaxEntries); v > 0 {
		lim.MaxEntries = v
	}
	if v := pickInt64(f.maxFileBytes, ws.local.MaxFileBytes, ws.global.MaxFileBytes); v > 0 {
		lim.MaxFileBytes = v
	}
	if v := pickInt64(f.maxTotalBytes, ws.local.MaxTotalBytes, ws.global.MaxTotalBytes); v > 0 {
		lim.MaxTotalBytes = v
	}
	return lim
}

func int64Of(p *int) *int64 {
	if p == nil {
		return nil
	}
	v := int64(*p)
	return &v
}

// options resolves the batch options; root is where the report cache lives.
func (f *scanFlags) options(cmd *cobra.Command, ws workspace) engine.Options {
	opts := engine.Options{Concurrency: pickInt(f.concurrency, ws.local.Concurrency, ws.global.Concurrency)}
	if !pickBool(f.noCache, ws.local.NoCache, ws.global.NoCache) {
		opts.CacheRoot = ws.root
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		opts.Progress = func(done, total int, _ string, _ types.Badge) {
			fmt.Fprintf(cmd.ErrOrStderr(), "\r[%d/%d] scanned", done, total)
			if done == total {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
		}
	}
	return opts
}

// scanner builds the pipeline and retriever from flags, config and
// environment, in that order of precedence.
func (f *scanFlags) scanner(ctx context.Context, cmd *cobra.Command, ws workspace) (*engine.Scanner, error) {
	paths := f.rules
	if len(paths) == 0 {
		paths = ws.local.Rules
	}
	if len(paths) == 0 {
		paths = ws.global.Rules
	}
	rs, err := rules.WithOverrides(paths...)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	sem, err := f.semanticAnalyzer(ctx, cmd, ws)
	if err != nil {
		return nil, err
	}
	p, err := engine.NewPipeline(rs, sem)
	if err != nil {
		return nil, err
	}

	s := engine.NewScanner(p)
	s.Limits = f.limits(ws)
	s.Fetcher.Limits = s.Limits
	timeout := f.timeout
	if timeout == 0 {
		timeout = ws.env.FetchTimeout
	}
	if timeout == 0 {
		cfgTimeout := ws.local.Timeout
		if cfgTimeout == nil {
			cfgTimeout = ws.global.Timeout
		}
		if timeout, err = config.Duration(cfgTimeout, 0); err != nil {
			return nil, err
		}
	}
	s.Fetcher.Timeout = timeout
	if cmd.Flags().Changed("retries") {
		s.Fetcher.Retries = f.retries
	} else if r := pickInt(0, ws.local.Retries, ws.global.Retries); r > 0 {
		s.Fetcher.Retries = r
	}
	if s.Fetcher.Retries < 0 {
		return nil, errors.New("--retries must not be negative")
	}
	return s, nil
}

// semanticAnalyzer returns nil when semantic analysis is off. It is on when
// requested or when an API key is present in the environment.
func (f *scanFlags) semanticAnalyzer(ctx context.Context, cmd *cobra.Command, ws workspace) (*semantic.Analyzer, error) {
	requested := pickBool(f.semantic, ws.local.Semantic, ws.global.Semantic)
	if cmd.Flags().Changed("semantic") && !f.semantic {
		return nil, nil
	}
	if ws.env.LLMAPIKey == "" {
		if requested {
			return nil, errors.New("semantic analysis needs SKILLVET_LLM_API_KEY")
		}
		return nil, nil
	}
	local, global := ws.llm()
	timeout := ws.env.LLMTimeout
	if timeout == 0 {
		t := local.Timeout
		if t == nil {
			t = global.Timeout
		}
		var err error
		if timeout, err = config.Duration(t, 0); err != nil {
			return nil, err
		}
	}
	sem, err := semantic.New(ctx, semantic.Config{
		APIKey:  ws.env.LLMAPIKey,
		APIBase: pickString(ws.env.LLMAPIBase, local.APIBase, global.APIBase),
		Model:   pickString(ws.env.LLMModel, local.Model, global.Model),
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic analysis: %w", err)
	}
	slog.Debug("semantic analysis enabled")
	return sem, nil
}

func pickString(cli string, local, global *string) string {
	if cli != "" {
		return cli
	}
	if local != nil && *local != "" {
		return *local
	}
	if global != nil && *global != "" {
		return *global
	}
	return ""
}

func pickInt(cli int, local, global *int) int {
	if cli != 0 {
		return cli
	}
	if local != nil && *local != 0 {
		return *local
	}
	if global != nil && *global != 0 {
		return *global
	}
	return 0
}

func pickInt64(cli int64, local, global *int64) int64 {
	if cli != 0 {
		return cli
	}
	if local != nil && *local != 0 {
		return *local
	}
	if global != nil && *global != 0 {
		return *global
	}
	return 0
}

func pickBool(cli bool, local, global *bool) bool {
	if cli {
		return true
	}
	if local != nil {
		return *local
	}
	if global != nil {
		return *global
	}
	return false
}
