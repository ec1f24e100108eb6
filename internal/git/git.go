// Package git shells out to the git CLI to find skills touched by a change
// and to describe the repository a scan ran in.
package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/varalys/skillvet/internal/artifacts"
)

// validateRoot validates and normalizes a git repository root path.
// Returns the cleaned absolute path or an error if invalid.
func validateRoot(root string) (string, error) {
	// Check for null bytes (potential injection)
	if strings.ContainsRune(root, 0) {
		return "", fmt.Errorf("invalid path: contains null byte")
	}
	cleaned := filepath.Clean(root)
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot access path %q: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", root)
	}
	return abs, nil
}

// TopLevel returns the absolute path of the work tree containing dir.
func TopLevel(dir string) (string, error) {
	validRoot, err := validateRoot(dir)
	if err != nil {
		return "", err
	}
	out, err := exec.Command("git", "-C", validRoot, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("not a git work tree: %s", dir)
	}
	return strings.TrimSpace(string(out)), nil
}

// RepoMetadata returns (repo, commit, branch) best-effort for the given root.
// Empty strings are returned on failure. It avoids heavy git calls and uses
// simple plumbing to remain fast in CI.
func RepoMetadata(root string) (string, string, string) {
	validRoot, err := validateRoot(root)
	if err != nil {
		return "", "", ""
	}

	// repo (remote origin URL short)
	repo := ""
	if out, err := exec.Command("git", "-C", validRoot, "config", "--get", "remote.origin.url").Output(); err == nil {
		s := strings.TrimSuffix(strings.TrimSpace(string(out)), ".git")
		// keep owner/name when possible
		if i := strings.LastIndex(s, ":"); i >= 0 {
			s = s[i+1:]
		}
		if i := strings.Index(s, "github.com/"); i >= 0 {
			s = s[i+len("github.com/"):]
		}
		repo = strings.TrimPrefix(s, "//")
	}
	commit := ""
	if out, err := exec.Command("git", "-C", validRoot, "rev-parse", "HEAD").Output(); err == nil {
		commit = strings.TrimSpace(string(out))
	}
	branch := ""
	if out, err := exec.Command("git", "-C", validRoot, "rev-parse", "--abbrev-ref", "HEAD").Output(); err == nil {
		branch = strings.TrimSpace(string(out))
	}
	return repo, commit, branch
}

// ChangedFiles lists paths (relative to root) that differ between base and
// the working tree, including uncommitted changes. Deleted files are left
// out.
func ChangedFiles(root, base string) ([]string, error) {
	validRoot, err := validateRoot(root)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(base, "-") {
		return nil, fmt.Errorf("invalid base ref: %s", base)
	}
	out, err := exec.Command("git", "-C", validRoot, "diff", "--name-only", "--diff-filter=d", "--relative", base, "--").Output()
	if err != nil {
		return nil, fmt.Errorf("git diff against %s: %w", base, err)
	}
	return strings.Fields(string(out)), nil
}

// StagedFiles lists paths (relative to root) staged for commit, excluding
// deletions.
func StagedFiles(root string) ([]string, error) {
	validRoot, err := validateRoot(root)
	if err != nil {
		return nil, err
	}
	out, err := exec.Command("git", "-C", validRoot, "diff", "--name-only", "--cached", "--diff-filter=d", "--relative").Output()
	if err != nil {
		return nil, fmt.Errorf("git diff --cached: %w", err)
	}
	return strings.Fields(string(out)), nil
}

// SkillsFor maps changed files to the skill documents they belong to: a
// changed SKILL.md stands for itself, and any other changed file selects the
// nearest SKILL.md / skills.md in its directory or a parent up to root.
// Returned paths are joined to root, sorted and unique.
func SkillsFor(root string, changed []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, rel := range changed {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if artifacts.IsSkillFile(p) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
			continue
		}
		if skill, ok := nearestSkill(root, filepath.Dir(p)); ok && !seen[skill] {
			seen[skill] = true
			out = append(out, skill)
		}
	}
	sort.Strings(out)
	return out
}

func nearestSkill(root, dir string) (string, bool) {
	root = filepath.Clean(root)
	for {
		entries, err := os.ReadDir(dir)
		if err == nil {
			var names []string
			for _, e := range entries {
				if !e.IsDir() && artifacts.IsSkillFile(e.Name()) {
					names = append(names, e.Name())
				}
			}
			if best, ok := artifacts.PickSkillPath(names); ok {
				return filepath.Join(dir, best), true
			}
		}
		if filepath.Clean(dir) == root {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir || !strings.HasPrefix(parent, root) {
			return "", false
		}
		dir = parent
	}
}
