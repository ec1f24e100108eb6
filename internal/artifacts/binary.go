package artifacts

import (
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

var ignoredBinaryDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"coverage":     true,
	".next":        true,
	".turbo":       true,
}

// IsIgnoredDir reports whether a directory name is skipped when walking a
// skill tree.
func IsIgnoredDir(name string) bool { return ignoredBinaryDirs[name] }

var executableExts = map[string]bool{
	".exe":   true,
	".dll":   true,
	".so":    true,
	".dylib": true,
	".bin":   true,
}

var machOMagics = map[uint32]bool{
	0xFEEDFACE: true,
	0xFEEDFACF: true,
	0xCEFAEDFE: true,
	0xCFFAEDFE: true,
	0xCAFEBABE: true,
	0xBEBAFECA: true,
}

// hasExecutableMagic recognizes ELF, PE and Mach-O (thin or fat) headers.
func hasExecutableMagic(head []byte) bool {
	if len(head) < 4 {
		return false
	}
	if head[0] == 0x7F && head[1] == 'E' && head[2] == 'L' && head[3] == 'F' {
		return true
	}
	if head[0] == 'M' && head[1] == 'Z' {
		return true
	}
	return machOMagics[binary.BigEndian.Uint32(head)] || machOMagics[binary.LittleEndian.Uint32(head)]
}

func isExecutableFile(p string) (bool, error) {
	f, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	if n == 4 && hasExecutableMagic(head) {
		return true, nil
	}
	return executableExts[strings.ToLower(filepath.Ext(p))], nil
}

// FindExecutableBinaries walks dir and returns up to maxResults regular files
// that carry an executable header or a typical executable extension.
// Unreadable files are skipped.
func FindExecutableBinaries(dir string, maxResults int) ([]string, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p != dir && IsIgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ok, rerr := isExecutableFile(p)
		if rerr != nil || !ok {
			return nil
		}
		out = append(out, p)
		if len(out) >= maxResults {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BinaryCache memoizes FindExecutableBinaries per directory. Concurrent
// lookups of the same directory share one walk.
type BinaryCache struct {
	MaxResults int

	mu    sync.Mutex
	dirs  map[string][]string
	group singleflight.Group
}

// NewBinaryCache returns an empty cache that reports up to five binaries
// per directory.
func NewBinaryCache() *BinaryCache {
	return &BinaryCache{MaxResults: 5, dirs: map[string][]string{}}
}

// Lookup returns the cached result for dir, walking it on first use.
func (c *BinaryCache) Lookup(dir string) ([]string, error) {
	c.mu.Lock()
	if c.dirs == nil {
		c.dirs = map[string][]string{}
	}
	if hit, ok := c.dirs[dir]; ok {
		c.mu.Unlock()
		return hit, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(dir, func() (any, error) {
		found, err := FindExecutableBinaries(dir, c.MaxResults)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.dirs[dir] = found
		c.mu.Unlock()
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
