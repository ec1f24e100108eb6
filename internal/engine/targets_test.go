package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestExpandTargets_WalksDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "deploy/SKILL.md", "# Deploy")
	writeFile(t, root, "notes/skills.md", "# Notes")
	writeFile(t, root, "mixed/Skill.MD", "# Mixed")
	writeFile(t, root, "deploy/README.md", "readme")
	writeFile(t, root, "node_modules/pkg/SKILL.md", "# vendored")
	writeFile(t, root, ".git/SKILL.md", "# git")
	writeFile(t, root, "drafts/wip/SKILL.md", "# wip")
	writeFile(t, root, ".skillvetignore", "drafts/\n")

	got, err := ExpandTargets([]string{root}, Globs{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "deploy", "SKILL.md"),
		filepath.Join(root, "mixed", "Skill.MD"),
		filepath.Join(root, "notes", "skills.md"),
	}, got)
}

func TestExpandTargets_Globs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "prod/a/SKILL.md", "# a")
	writeFile(t, root, "prod/b/SKILL.md", "# b")
	writeFile(t, root, "test/c/SKILL.md", "# c")

	got, err := ExpandTargets([]string{root}, Globs{Include: "prod/**", Exclude: "**/b/**"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "prod", "a", "SKILL.md")}, got)
}

func TestExpandTargets_PassThroughAndDedupe(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "one/SKILL.md", "# one")

	got, err := ExpandTargets([]string{
		"https://example.com/skill/SKILL.md",
		"oci://ghcr.io/acme/skill:1.0",
		file,
		root,
		"  ",
		"https://example.com/skill/SKILL.md",
	}, Globs{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		file,
		"https://example.com/skill/SKILL.md",
		"oci://ghcr.io/acme/skill:1.0",
	}, got)
}

func TestExpandTargets_ExplicitFileIgnoresGlobs(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "custom-name.md", "# custom")
	got, err := ExpandTargets([]string{file}, Globs{Exclude: "*.md"})
	require.NoError(t, err)
	assert.Equal(t, []string{file}, got)
}

func TestExpandTargets_NotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	_, err := ExpandTargets([]string{missing}, Globs{})
	require.Error(t, err)
	assert.Equal(t, "Target not found: "+missing, err.Error())
}

func TestGlobsAllowed(t *testing.T) {
	tests := []struct {
		name string
		g    Globs
		path string
		want bool
	}{
		{"no globs", Globs{}, "a/SKILL.md", true},
		{"include match", Globs{Include: "skills/**"}, "skills/x/SKILL.md", true},
		{"include miss", Globs{Include: "skills/**"}, "other/SKILL.md", false},
		{"exclude wins", Globs{Include: "**/*.md", Exclude: "legacy/**"}, "legacy/SKILL.md", false},
		{"leading ./ trimmed", Globs{Include: "./skills/**"}, "skills/x/SKILL.md", true},
		{"base name match", Globs{Exclude: "skills.md"}, "deep/dir/skills.md", false},
		{"windows separators", Globs{Include: "skills/**"}, `skills\x\SKILL.md`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.g.Allowed(tt.path))
		})
	}
}
