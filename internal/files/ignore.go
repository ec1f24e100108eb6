package files

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/varalys/skillvet/internal/ignore"
)

// AppendIgnore ensures the given pattern is present in .skillvetignore at
// repoRoot. It creates the file if missing. Idempotent.
func AppendIgnore(repoRoot, pattern string) error {
	path := filepath.Join(repoRoot, ignore.FileName)
	existing := map[string]bool{}
	endsWithNewline := true
	if b, err := os.ReadFile(path); err == nil {
		sc := bufio.NewScanner(strings.NewReader(string(b)))
		for sc.Scan() {
			existing[strings.TrimSpace(sc.Text())] = true
		}
		endsWithNewline = len(b) == 0 || b[len(b)-1] == '\n'
	}
	if existing[pattern] {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if !endsWithNewline {
		pattern = "\n" + pattern
	}
	_, err = f.WriteString(pattern + "\n")
	return err
}

// RemoveIgnore drops every line equal to pattern from .skillvetignore.
// A missing file is not an error.
func RemoveIgnore(repoRoot, pattern string) error {
	path := filepath.Join(repoRoot, ignore.FileName)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var kept []string
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		if strings.TrimSpace(line) != pattern {
			kept = append(kept, line)
		}
	}
	out := strings.Join(kept, "\n")
	if out != "" {
		out += "\n"
	}
	return os.WriteFile(path, []byte(out), 0644)
}

// DefaultIgnores returns directories that hold vendored or generated copies
// of skills rather than skills maintained in the repo.
func DefaultIgnores() []string {
	return []string{
		"node_modules/",
		"vendor/",
		"dist/",
		"**/fixtures/**",
	}
}
