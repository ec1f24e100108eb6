package rules

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	xxhash "github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/varalys/skillvet/internal/types"
)

//go:embed data/*.yml
var builtin embed.FS

// Rule is one pattern family. Patterns are compiled case-insensitively unless
// CaseSensitive is set.
type Rule struct {
	ID             string   `yaml:"id"`
	Analyzer       string   `yaml:"analyzer"`
	Group          string   `yaml:"group"`
	Name           string   `yaml:"name,omitempty"`
	Severity       string   `yaml:"severity,omitempty"`
	Deduction      int      `yaml:"deduction,omitempty"`
	Taxonomy       string   `yaml:"taxonomy,omitempty"`
	Recommendation string   `yaml:"recommendation,omitempty"`
	CaseSensitive  bool     `yaml:"case_sensitive,omitempty"`
	Patterns       []string `yaml:"patterns"`
}

type file struct {
	Rules []Rule `yaml:"rules"`
}

// Compiled is a validated Rule with its regexes ready for matching.
type Compiled struct {
	Rule
	Sev      types.Severity
	Patterns []*regexp.Regexp
}

// MatchAny reports whether any pattern matches s.
func (c *Compiled) MatchAny(s string) bool {
	for _, re := range c.Patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Set is an ordered, compiled rule table. It is read-only after construction
// and safe for concurrent use.
type Set struct {
	rules  []*Compiled
	digest string
}

// ErrInvalidRule marks a rule that failed validation.
var ErrInvalidRule = errors.New("invalid rule")

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// Default returns the built-in rule set, compiled once.
func Default() (*Set, error) {
	defaultOnce.Do(func() {
		rs, err := readBuiltin()
		if err != nil {
			defaultErr = err
			return
		}
		defaultSet, defaultErr = Compile(rs)
	})
	return defaultSet, defaultErr
}

// MustDefault is Default for callers that treat a broken built-in table as a
// programming error.
func MustDefault() *Set {
	s, err := Default()
	if err != nil {
		panic(err)
	}
	return s
}

// Builtin returns the raw built-in rules in load order.
func Builtin() ([]Rule, error) { return readBuiltin() }

func readBuiltin() ([]Rule, error) {
	names, err := fs.Glob(builtin, "data/*.yml")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	var out []Rule
	for _, n := range names {
		b, err := builtin.ReadFile(n)
		if err != nil {
			return nil, err
		}
		rs, err := Parse(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(n), err)
		}
		out = append(out, rs...)
	}
	return out, nil
}

// Parse decodes a rules YAML document.
func Parse(b []byte) ([]Rule, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return f.Rules, nil
}

// LoadFile reads an external rules file.
func LoadFile(p string) ([]Rule, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	rs, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return rs, nil
}

// Merge overlays extra onto base. A rule whose ID already exists replaces the
// base rule in place; new IDs are appended.
func Merge(base, extra []Rule) []Rule {
	out := append([]Rule(nil), base...)
	idx := make(map[string]int, len(out))
	for i, r := range out {
		idx[r.ID] = i
	}
	for _, r := range extra {
		if i, ok := idx[r.ID]; ok {
			out[i] = r
			continue
		}
		idx[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// WithOverrides returns the built-in set merged with the rules in each path.
func WithOverrides(paths ...string) (*Set, error) {
	if len(paths) == 0 {
		return Default()
	}
	rs, err := readBuiltin()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		extra, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		rs = Merge(rs, extra)
	}
	return Compile(rs)
}

// Compile validates and compiles rs.
func Compile(rs []Rule) (*Set, error) {
	s := &Set{}
	seen := map[string]bool{}
	h := xxhash.New()
	for _, r := range rs {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: missing id", ErrInvalidRule)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = true
		if r.Analyzer == "" || r.Group == "" {
			return nil, fmt.Errorf("%w: %s: analyzer and group are required", ErrInvalidRule, r.ID)
		}
		c := &Compiled{Rule: r}
		if r.Severity != "" {
			sev, ok := types.ParseSeverity(r.Severity)
			if !ok {
				return nil, fmt.Errorf("%w: %s: unknown severity %q", ErrInvalidRule, r.ID, r.Severity)
			}
			c.Sev = sev
		}
		if r.Taxonomy != "" && !types.IsTaxonomyCode(r.Taxonomy) {
			return nil, fmt.Errorf("%w: %s: unknown taxonomy %q", ErrInvalidRule, r.ID, r.Taxonomy)
		}
		if r.Deduction < 0 {
			return nil, fmt.Errorf("%w: %s: negative deduction", ErrInvalidRule, r.ID)
		}
		if len(r.Patterns) == 0 {
			return nil, fmt.Errorf("%w: %s: no patterns", ErrInvalidRule, r.ID)
		}
		for _, p := range r.Patterns {
			expr := p
			if !r.CaseSensitive {
				expr = "(?i)" + p
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, r.ID, err)
			}
			c.Patterns = append(c.Patterns, re)
		}
		s.rules = append(s.rules, c)

		_, _ = h.WriteString(r.ID + "\x00" + r.Analyzer + "\x00" + r.Group + "\x00" + r.Name + "\x00" + r.Severity + "\x00" +
			strconv.Itoa(r.Deduction) + "\x00" + r.Taxonomy + "\x00" + r.Recommendation + "\x00" +
			strconv.FormatBool(r.CaseSensitive) + "\x00" + strings.Join(r.Patterns, "\x01") + "\n")
	}
	s.digest = fmt.Sprintf("%016x", h.Sum64())
	return s, nil
}

// Select returns the rules for analyzer and group in table order.
func (s *Set) Select(analyzer, group string) []*Compiled {
	var out []*Compiled
	for _, c := range s.rules {
		if c.Analyzer == analyzer && c.Group == group {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the rule with id, or nil.
func (s *Set) Get(id string) *Compiled {
	for _, c := range s.rules {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// All returns every compiled rule in table order.
func (s *Set) All() []*Compiled { return s.rules }

// Rules returns the source rules in table order.
func (s *Set) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, c := range s.rules {
		out[i] = c.Rule
	}
	return out
}

// Digest identifies the rule table contents. It changes whenever any rule
// field changes and keys the report cache.
func (s *Set) Digest() string { return s.digest }

// Export renders rs as a rules YAML document.
func Export(rs []Rule) ([]byte, error) {
	return yaml.Marshal(file{Rules: rs})
}
