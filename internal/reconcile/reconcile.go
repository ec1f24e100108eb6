// Package reconcile annotates findings that an author has explicitly
// declared and justified in the skill's front matter. Annotation is
// presentation only: severity and deduction are never touched.
package reconcile

import (
	"strings"

	"github.com/varalys/skillvet/internal/types"
)

type matcher struct {
	kinds    []string // substrings of the declared kind
	keywords []string // substrings of the finding text
}

var matchers = []matcher{
	{
		kinds: []string{"credential_access", "credential"},
		keywords: []string{"credential", "api_key", "api-key", "secret_key", "secret-key", "access_token", "access-token",
			"private_key", "private-key", "password", "env_access", ".env", ".ssh", "id_rsa", "id_ed25519"},
	},
	{
		kinds:    []string{"network"},
		keywords: []string{"network", "url", "http", "https", "fetch", "download", "external", "domain", "endpoint"},
	},
	{
		kinds:    []string{"file_write", "file_modify"},
		keywords: []string{"file_write", "file-write", "file_modify", "file-modify", "write", "state persistence", "save", "store", "persist"},
	},
	{
		kinds:    []string{"system_modification", "system"},
		keywords: []string{"system modification", "system_modification", "install", "modify system", "config", "chmod", "chown"},
	},
	{
		kinds:    []string{"exec", "shell"},
		keywords: []string{"exec", "shell", "execute", "run", "spawn", "process", "command"},
	},
}

// Match returns the first declaration whose kind covers the finding.
func Match(f types.Finding, declared []types.DeclaredPermission) (types.DeclaredPermission, bool) {
	if len(declared) == 0 {
		return types.DeclaredPermission{}, false
	}
	text := strings.ToLower(f.Title + " " + f.Evidence + " " + f.Description)
	for _, d := range declared {
		kind := strings.ToLower(d.Kind)
		for _, m := range matchers {
			if containsAny(kind, m.kinds) && containsAny(text, m.keywords) {
				return d, true
			}
		}
	}
	return types.DeclaredPermission{}, false
}

// Apply returns a copy of fs with declared findings annotated.
func Apply(fs []types.Finding, declared []types.DeclaredPermission) []types.Finding {
	if fs == nil {
		return nil
	}
	out := make([]types.Finding, len(fs))
	copy(out, fs)
	if len(declared) == 0 {
		return out
	}
	for i, f := range out {
		d, ok := Match(f, declared)
		if !ok {
			continue
		}
		out[i].Title = f.Title + " (declared: " + d.Kind + ")"
		out[i].Description = f.Description + "\n\nDeclared permission: " + d.Kind + " - " + d.Justification
	}
	return out
}

// Categories applies Apply to every category. The caller re-derives scores.
func Categories(cats map[types.Category]types.CategoryScore, declared []types.DeclaredPermission) map[types.Category]types.CategoryScore {
	out := make(map[types.Category]types.CategoryScore, len(cats))
	for c, cs := range cats {
		cs.Findings = Apply(cs.Findings, declared)
		out[c] = cs
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
