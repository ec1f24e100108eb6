package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk YAML configuration shape for SkillVet.
type FileConfig struct {
	Include     *string  `yaml:"include"`
	Exclude     *string  `yaml:"exclude"`
	FailOn      *string  `yaml:"fail_on"`
	Concurrency *int     `yaml:"concurrency"`
	Timeout     *string  `yaml:"timeout"`
	Retries     *int     `yaml:"retries"`
	NoColor     *bool    `yaml:"no_color"`
	NoCache     *bool    `yaml:"no_cache"`
	Semantic    *bool    `yaml:"semantic"`
	Rules       []string `yaml:"rules"`

	// Bounded extraction of zip and image bundles mirrors CLI flags
	MaxArchiveBytes *int   `yaml:"max_archive_bytes"`
	MaxEntries      *int   `yaml:"max_entries"`
	MaxFileBytes    *int64 `yaml:"max_file_bytes"`
	MaxTotalBytes   *int64 `yaml:"max_total_bytes"`

	LLM *LLMConfig `yaml:"llm"`
}

// LLMConfig selects the endpoint used by semantic analysis. The API key is
// never read from files; set SKILLVET_LLM_API_KEY instead.
type LLMConfig struct {
	APIBase *string `yaml:"api_base"`
	Model   *string `yaml:"model"`
	Timeout *string `yaml:"timeout"`
}

// ErrNoConfig is returned when no config file exists at the searched
// locations.
var ErrNoConfig = errors.New("no config file")

// LocalNames lists the repo-local config file names in search order.
var LocalNames = []string{".skillvet.yml", ".skillvet.yaml", "skillvet.yml", "skillvet.yaml"}

// LoadFile reads a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// LoadLocal searches for a repo-local config file in the given root.
func LoadLocal(repoRoot string) (FileConfig, error) {
	var cfg FileConfig
	for _, name := range LocalNames {
		p := filepath.Join(repoRoot, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return cfg, fmt.Errorf("%w in %s", ErrNoConfig, repoRoot)
}

// GlobalPath returns ~/.config/skillvet/config.yml, honoring XDG_CONFIG_HOME.
func GlobalPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		return "", fmt.Errorf("%w: no config dir", ErrNoConfig)
	}
	return filepath.Join(base, "skillvet", "config.yml"), nil
}

// LoadGlobal loads the global config file from XDG base directory or ~/.config.
func LoadGlobal() (FileConfig, error) {
	var cfg FileConfig
	p, err := GlobalPath()
	if err != nil {
		return cfg, err
	}
	if _, err := os.Stat(p); err == nil {
		return LoadFile(p)
	}
	return cfg, fmt.Errorf("%w at %s", ErrNoConfig, p)
}

// Duration parses an optional duration field; nil or empty yields def.
func Duration(s *string, def time.Duration) (time.Duration, error) {
	if s == nil || *s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def, fmt.Errorf("invalid duration %q: %w", *s, err)
	}
	return d, nil
}

// Env is the SKILLVET_* environment layer.
type Env struct {
	LLMAPIKey    string        `envconfig:"LLM_API_KEY"`
	LLMAPIBase   string        `envconfig:"LLM_API_BASE"`
	LLMModel     string        `envconfig:"LLM_MODEL"`
	LLMTimeout   time.Duration `envconfig:"LLM_TIMEOUT"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"warn"`
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT"`
	UploadToken  string        `envconfig:"UPLOAD_TOKEN"`
}

// LoadEnv loads dir/.env when present (without overriding variables that
// are already set) and then decodes the SKILLVET_* variables.
func LoadEnv(dir string) (Env, error) {
	var env Env
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return env, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process("SKILLVET", &env); err != nil {
		return env, fmt.Errorf("read environment: %w", err)
	}
	return env, nil
}
