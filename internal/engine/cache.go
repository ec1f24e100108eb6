package engine

import (
	"log/slog"
	"path/filepath"
	"sync"

	xxhash "github.com/cespare/xxhash/v2"

	"github.com/varalys/skillvet/internal/cache"
	"github.com/varalys/skillvet/internal/types"
)

func fastHash(b []byte) string {
	if len(b) == 0 {
		return "0000000000000000"
	}
	sum := xxhash.Sum64(b)
	var buf [16]byte
	const hex = "0123456789abcdef"
	for i := 15; i >= 0; i-- {
		buf[i] = hex[sum&0xF]
		sum >>= 4
	}
	return string(buf[:])
}

// contentKey changes whenever the content, the scanner or the rules change.
func contentKey(content, rulesDigest string) string {
	return fastHash([]byte(types.ScannerVersion + "\x00" + rulesDigest + "\x00" + content))
}

// reportCache is the on-disk report cache for local skill files, shared by
// the workers of one batch.
type reportCache struct {
	root string

	mu      sync.Mutex
	db      cache.DB
	updated int
}

func openReportCache(root string) *reportCache {
	db, err := cache.Load(root)
	if err != nil {
		slog.Debug("starting with empty report cache", "root", root, "err", err)
	}
	return &reportCache{root: root, db: db}
}

func (c *reportCache) key(target string) string {
	abs, err := filepath.Abs(target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	if rel, err := filepath.Rel(c.root, abs); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(abs)
}

func (c *reportCache) get(target, hash string) (types.TrustReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Lookup(c.key(target), hash)
}

func (c *reportCache) put(target, hash string, r types.TrustReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db.Entries[c.key(target)] = cache.Entry{Hash: hash, Report: r}
	c.updated++
}

func (c *reportCache) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updated == 0 {
		return
	}
	if err := cache.Save(c.root, c.db); err != nil {
		slog.Warn("failed to save report cache", "root", c.root, "err", err)
	}
	c.updated = 0
}
