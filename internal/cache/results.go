package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/varalys/skillvet/internal/types"
)

// ScanResults is the last scan, kept so the viewer and `show` can reopen it
// without rescanning.
type ScanResults struct {
	Reports   []types.TargetReport `json:"reports"`
	Failures  []types.ScanFailure  `json:"failures,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Root      string               `json:"root"`
	Count     int                  `json:"count"`
}

func resultsPath(root string) string {
	gitDir := filepath.Join(root, ".git")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		return filepath.Join(gitDir, "skillvet_last_scan.json")
	}
	return filepath.Join(root, ".skillvet_last_scan.json")
}

// SaveResults saves scan results to cache
func SaveResults(root string, reports []types.TargetReport, failures []types.ScanFailure) error {
	results := ScanResults{
		Reports:   reports,
		Failures:  failures,
		Timestamp: time.Now(),
		Root:      root,
		Count:     len(reports),
	}
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(resultsPath(root), b, 0644)
}

// LoadResults loads the last scan results from cache
func LoadResults(root string) (ScanResults, error) {
	var results ScanResults
	f, err := os.ReadFile(resultsPath(root))
	if err != nil {
		return results, err
	}
	if err := json.Unmarshal(f, &results); err != nil {
		return results, err
	}
	return results, nil
}
