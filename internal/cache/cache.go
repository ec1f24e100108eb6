package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/varalys/skillvet/internal/types"
)

// Entry is a cached report keyed by the content hash it was computed from.
type Entry struct {
	Hash   string            `json:"hash"`
	Report types.TrustReport `json:"report"`
}

type DB struct {
	// Local skill path -> hash of content, scanner version and rules digest
	Entries map[string]Entry `json:"entries"`
}

// Lookup returns the cached report for key when its hash still matches.
func (db DB) Lookup(key, hash string) (types.TrustReport, bool) {
	e, ok := db.Entries[key]
	if !ok || e.Hash != hash {
		return types.TrustReport{}, false
	}
	return e.Report, true
}

func defaultPath(root string) string {
	// Prefer storing cache under .git to avoid accidental commits
	gitDir := filepath.Join(root, ".git")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		return filepath.Join(gitDir, "skillvetcache.json")
	}
	return filepath.Join(root, ".skillvetcache.json")
}

func Load(root string) (DB, error) {
	var db DB
	f, err := os.ReadFile(defaultPath(root))
	if err != nil {
		return DB{Entries: map[string]Entry{}}, err
	}
	if err := json.Unmarshal(f, &db); err != nil {
		return DB{Entries: map[string]Entry{}}, err
	}
	if db.Entries == nil {
		db.Entries = map[string]Entry{}
	}
	return db, nil
}

func Save(root string, db DB) error {
	if db.Entries == nil {
		return errors.New("empty cache")
	}
	b, err := json.Marshal(db)
	if err != nil {
		return err
	}
	return os.WriteFile(defaultPath(root), b, 0644)
}
