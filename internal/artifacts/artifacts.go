package artifacts

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"unicode/utf8"
)

// Limits bounds skill extraction from archives and image layers.
type Limits struct {
	MaxArchiveBytes int64
	MaxEntries      int
	MaxCandidates   int
	MaxFileBytes    int64
	MaxTotalBytes   int64
}

// DefaultLimits returns the limits used for downloaded bundles.
func DefaultLimits() Limits {
	return Limits{
		MaxArchiveBytes: 25_000_000,
		MaxEntries:      2000,
		MaxCandidates:   10,
		MaxFileBytes:    2_000_000,
		MaxTotalBytes:   5_000_000,
	}
}

// ErrZipBounds matches every error raised because an archive exceeded a limit.
var ErrZipBounds = errors.New("archive exceeds extraction limits")

type boundsError struct{ msg string }

func (e *boundsError) Error() string        { return e.msg }
func (e *boundsError) Is(target error) bool { return target == ErrZipBounds }

func boundsErrorf(format string, args ...any) error {
	return &boundsError{msg: fmt.Sprintf(format, args...)}
}

// Skill is the skill document picked out of an archive.
type Skill struct {
	Path    string
	Content string
}

// IsSkillFile reports whether the base name of p is SKILL.md or skills.md,
// ignoring case.
func IsSkillFile(p string) bool {
	base := strings.ToLower(path.Base(strings.ReplaceAll(p, "\\", "/")))
	return base == "skill.md" || base == "skills.md"
}

// PickSkillPath chooses the best skill document among paths. A root-level
// SKILL.md beats a nested one, which beats skills.md at the root, which beats
// a nested skills.md. Ties prefer the canonical upper-case spelling, then the
// shorter path, then lexicographic order.
func PickSkillPath(paths []string) (string, bool) {
	var candidates []string
	for _, p := range paths {
		if IsSkillFile(p) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ra, rb := pathRank(a), pathRank(b); ra != rb {
			return ra < rb
		}
		if ca, cb := canonicalCase(a), canonicalCase(b); ca != cb {
			return ca
		}
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return candidates[0], true
}

func pathRank(p string) int {
	lower := strings.ToLower(p)
	base := path.Base(lower)
	switch {
	case lower == "skill.md":
		return 0
	case base == "skill.md":
		return 1
	case lower == "skills.md":
		return 2
	case base == "skills.md":
		return 3
	}
	return 4
}

func canonicalCase(p string) bool {
	base := path.Base(p)
	return base == "SKILL.md" || base == "SKILLS.md"
}

// collector tracks the bounds shared by every entry of one archive, or every
// layer of one image.
type collector struct {
	lim        Limits
	entries    int
	candidates int
	declared   int64
	read       int64
	seen       []string
	files      map[string][]byte
}

func newCollector(lim Limits) *collector {
	return &collector{lim: lim, files: map[string][]byte{}}
}

// observe counts one entry and checks it against the limits using its
// declared size. It reports whether the entry is a skill candidate.
func (c *collector) observe(name string, size int64) (bool, error) {
	c.entries++
	if len(c.seen) < 20 {
		c.seen = append(c.seen, name)
	}
	if c.lim.MaxEntries > 0 && c.entries > c.lim.MaxEntries {
		return false, boundsErrorf("Zip contains too many entries (> %d).", c.lim.MaxEntries)
	}
	if strings.HasSuffix(name, "/") || !IsSkillFile(name) {
		return false, nil
	}
	c.candidates++
	if c.lim.MaxCandidates > 0 && c.candidates > c.lim.MaxCandidates {
		return false, boundsErrorf("Zip contains too many SKILL.md candidates (> %d).", c.lim.MaxCandidates)
	}
	if c.lim.MaxFileBytes > 0 && size > c.lim.MaxFileBytes {
		return false, boundsErrorf("SKILL.md is too large (%d bytes > %d bytes).", size, c.lim.MaxFileBytes)
	}
	c.declared += size
	if c.lim.MaxTotalBytes > 0 && c.declared > c.lim.MaxTotalBytes {
		return false, boundsErrorf("Zip expands too large (> %d bytes across candidates).", c.lim.MaxTotalBytes)
	}
	return true, nil
}

// take reads a candidate body, enforcing the per-file and total limits on the
// bytes actually produced rather than the declared size.
func (c *collector) take(name string, r io.Reader) error {
	max := c.lim.MaxFileBytes
	if max <= 0 {
		max = 1 << 40
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, max+1))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if n > max {
		return boundsErrorf("SKILL.md is too large (> %d bytes).", max)
	}
	c.read += n
	if c.lim.MaxTotalBytes > 0 && c.read > c.lim.MaxTotalBytes {
		return boundsErrorf("Zip expands too large (> %d bytes across candidates).", c.lim.MaxTotalBytes)
	}
	c.files[name] = buf.Bytes()
	return nil
}

func (c *collector) pick() (Skill, error) {
	paths := make([]string, 0, len(c.files))
	for p := range c.files {
		paths = append(paths, p)
	}
	best, ok := PickSkillPath(paths)
	if !ok {
		seen := append([]string(nil), c.seen...)
		sort.Strings(seen)
		return Skill{}, fmt.Errorf("Zip did not contain SKILL.md (found %d entries). First entries: %s", c.entries, strings.Join(seen, ", "))
	}
	data := c.files[best]
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	return Skill{Path: best, Content: string(data)}, nil
}

// ExtractSkillFromZip returns the best skill document inside a zip archive.
// Only candidate entries are decompressed.
func ExtractSkillFromZip(data []byte, lim Limits) (Skill, error) {
	if lim.MaxArchiveBytes > 0 && int64(len(data)) > lim.MaxArchiveBytes {
		return Skill{}, boundsErrorf("Zip archive too large (%d bytes > %d bytes).", len(data), lim.MaxArchiveBytes)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Skill{}, fmt.Errorf("invalid zip archive: %w", err)
	}
	c := newCollector(lim)
	for _, f := range zr.File {
		size := int64(f.UncompressedSize64)
		if f.UncompressedSize64 > 1<<62 {
			size = 1 << 62
		}
		ok, err := c.observe(f.Name, size)
		if err != nil {
			return Skill{}, err
		}
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Skill{}, fmt.Errorf("open %s: %w", f.Name, err)
		}
		err = c.take(f.Name, rc)
		_ = rc.Close()
		if err != nil {
			return Skill{}, err
		}
	}
	return c.pick()
}

// ExtractSkillFromTar is the tar counterpart of ExtractSkillFromZip.
func ExtractSkillFromTar(r io.Reader, lim Limits) (Skill, error) {
	c := newCollector(lim)
	if err := c.scanTar(r); err != nil {
		return Skill{}, err
	}
	return c.pick()
}

func (c *collector) scanTar(r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if hdr.Typeflag == tar.TypeDir {
			name = strings.TrimSuffix(name, "/") + "/"
		}
		ok, err := c.observe(name, hdr.Size)
		if err != nil {
			return err
		}
		if !ok || hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := c.take(name, tr); err != nil {
			return err
		}
	}
}
