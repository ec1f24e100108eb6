package detectors

import (
	"errors"
	"fmt"

	"github.com/varalys/skillvet/internal/ctxparse"
	"github.com/varalys/skillvet/internal/rules"
	"github.com/varalys/skillvet/internal/types"
)

// Analyzer scores one category of a parsed skill. Analyzers are pure: they
// read the skill and its context and never mutate either.
type Analyzer func(skill *types.ParsedSkill, cx *ctxparse.Context) (types.CategoryScore, error)

// ErrNoRules is returned when a Suite was built without a rule set.
var ErrNoRules = errors.New("detectors: no rule set")

// Suite binds the analyzers to one compiled rule set.
type Suite struct {
	rules *rules.Set
}

// New returns a Suite using rs. A nil rs falls back to the built-in rules.
func New(rs *rules.Set) (*Suite, error) {
	if rs == nil {
		var err error
		if rs, err = rules.Default(); err != nil {
			return nil, fmt.Errorf("load built-in rules: %w", err)
		}
	}
	return &Suite{rules: rs}, nil
}

// Rules returns the rule set the suite matches with.
func (s *Suite) Rules() *rules.Set { return s.rules }

// Analyzer returns the analyzer for cat, or nil for an unknown category.
func (s *Suite) Analyzer(cat types.Category) Analyzer {
	switch cat {
	case types.CatPermissions:
		return s.Permissions
	case types.CatInjection:
		return s.Injection
	case types.CatDependencies:
		return s.Dependencies
	case types.CatBehavioral:
		return s.Behavioral
	case types.CatContent:
		return s.Content
	}
	return nil
}

// IDs lists the finding ID prefixes each category can emit.
func IDs() map[types.Category][]string {
	return map[types.Category][]string{
		types.CatPermissions:  {"PERM-", "PERM-UNKNOWN-", "PERM-MISMATCH-", "PERM-EXCESSIVE"},
		types.CatInjection:    {"INJ-", "INJ-COMMENT-", "INJ-B64-", "INJ-UNICODE-ZW", "INJ-UNICODE-BIDI", "INJ-UNICODE-TAGS", "INJ-UNICODE-VS", "INJ-UNICODE-ESCAPES"},
		types.CatDependencies: {"DEP-URL-", "DEP-DL-EXEC-", "DEP-MANY-URLS", "DEP-BINARY-"},
		types.CatBehavioral:   {"BEH-", "BEH-PREREQ-TRAP-", "BEH-EXFIL-FLOW-"},
		types.CatContent:      {"CONT-HARMFUL-", "CONT-DECEPTION-", "CONT-B64-", "CONT-HEX-", "CONT-SECRET-", "CONT-GENERIC-DESC", "CONT-NO-DESC", "CONT-NO-SAFETY", "CONT-SAFETY-GOOD", "CONT-OUTPUT-GOOD", "CONT-ERROR-GOOD"},
	}
}

func (s *Suite) check() error {
	if s == nil || s.rules == nil {
		return ErrNoRules
	}
	return nil
}
