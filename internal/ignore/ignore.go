// Package ignore reads .skillvetignore files: one glob per line, blank lines
// and # comments skipped, a trailing slash marking a directory.
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	doublestar "github.com/bmatcuk/doublestar/v4"
)

// FileName is the ignore file looked up at the root of each scanned directory.
const FileName = ".skillvetignore"

// Matcher holds the patterns of one ignore file. The zero value matches
// nothing.
type Matcher struct {
	patterns []string
}

// Load reads patterns from p. A missing file yields an empty matcher.
func Load(p string) (Matcher, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Matcher{}, nil
		}
		return Matcher{}, err
	}
	defer f.Close()

	var m Matcher
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, strings.TrimPrefix(line, "./"))
	}
	return m, sc.Err()
}

// Patterns returns the loaded patterns in file order.
func (m Matcher) Patterns() []string { return append([]string(nil), m.patterns...) }

// Match reports whether rel (relative to the ignore file's directory) is
// ignored.
func (m Matcher) Match(rel string) bool {
	p := strings.TrimPrefix(filepath.ToSlash(rel), "./")
	for _, pat := range m.patterns {
		if dir, ok := strings.CutSuffix(pat, "/"); ok {
			if p == dir || strings.HasPrefix(p, dir+"/") || strings.Contains(p, "/"+dir+"/") {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(pat, p); ok {
			return true
		}
		// a pattern with no slash applies at any depth
		if !strings.Contains(pat, "/") {
			if ok, _ := doublestar.Match(pat, path.Base(p)); ok {
				return true
			}
		}
		if ok, _ := doublestar.Match(pat+"/**", p); ok {
			return true
		}
	}
	return false
}
