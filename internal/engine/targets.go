package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/varalys/skillvet/internal/artifacts"
	"github.com/varalys/skillvet/internal/ignore"
	"github.com/varalys/skillvet/internal/source"
)

// IsLocal reports whether target names a file on disk rather than a URL or
// an image reference.
func IsLocal(target string) bool {
	return !source.IsRemote(target) && !artifacts.IsOCIRef(target) && !strings.HasPrefix(target, "data:")
}

// ExpandTargets resolves CLI targets into scannable units. URLs and oci://
// references pass through unchanged, files are kept as given, and
// directories are walked for SKILL.md / skills.md files (any case) that pass
// globs and the directory's .skillvetignore. The result is sorted and free
// of duplicates.
func ExpandTargets(targets []string, globs Globs) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !IsLocal(t) {
			add(t)
			continue
		}
		info, err := os.Stat(t)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("Target not found: %s", t)
			}
			return nil, fmt.Errorf("stat %s: %w", t, err)
		}
		switch {
		case info.Mode().IsRegular():
			add(filepath.Clean(t))
		case info.IsDir():
			found, err := walkSkills(t, globs)
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				add(f)
			}
		default:
			return nil, fmt.Errorf("Unsupported target type: %s", t)
		}
	}
	sort.Strings(out)
	return out, nil
}

func walkSkills(root string, globs Globs) ([]string, error) {
	ign, err := ignore.Load(filepath.Join(root, ignore.FileName))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ignore.FileName, err)
	}
	var out []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		if d.IsDir() {
			if p != root && (artifacts.IsIgnoredDir(d.Name()) || ign.Match(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !artifacts.IsSkillFile(d.Name()) {
			return nil
		}
		if !globs.Allowed(rel) || ign.Match(rel) {
			return nil
		}
		out = append(out, filepath.Clean(p))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return out, nil
}
