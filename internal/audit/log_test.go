package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varalys/skillvet/internal/types"
)

func sampleReports() []types.TargetReport {
	return []types.TargetReport{
		{Target: "a/SKILL.md", Report: types.TrustReport{Overall: 42, Badge: types.BadgeRejected, Metadata: types.ScanMetadata{SkillName: "A"},
			Findings: []types.Finding{
				{ID: "CONT-SECRET-1", Severity: types.SevCritical, Evidence: "ghp_realtokenvalue"},
				{ID: "INJ-2", Severity: types.SevHigh, Evidence: "ignore previous instructions"},
			}}},
		{Target: "b/SKILL.md", Report: types.TrustReport{Overall: 95, Badge: types.BadgeCertified, Metadata: types.ScanMetadata{SkillName: "B"}}},
	}
}

func TestCreateScanRecord(t *testing.T) {
	failures := []types.ScanFailure{{Target: "c", Error: "Target not found: c"}}
	rec := CreateScanRecord("/repo", sampleReports(), failures, 1, 2*time.Second, ".skillvet-baseline.json")

	assert.Equal(t, 3, rec.Targets)
	assert.Equal(t, 1, rec.Failures)
	assert.Equal(t, 2, rec.TotalFindings)
	assert.Equal(t, 1, rec.BaselinedCount)
	assert.Equal(t, map[string]int{"critical": 1, "high": 1}, rec.SeverityCounts)
	assert.Equal(t, map[string]int{"rejected": 1, "certified": 1}, rec.Badges)
	assert.Equal(t, "2s", rec.Duration)
	require.Len(t, rec.Skills, 2)
	assert.Equal(t, SkillSummary{Target: "a/SKILL.md", Name: "A", Score: 42, Badge: types.BadgeRejected, Findings: 2}, rec.Skills[0])
	assert.Equal(t, "[REDACTED]", rec.AllFindings[0].Finding.Evidence)
	assert.Equal(t, "ignore previous instructions", rec.AllFindings[1].Finding.Evidence)
}

func TestLogAndLoadHistory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0755))
	log := NewAuditLog(dir)

	first, err := log.LogScan(CreateScanRecord(dir, sampleReports(), nil, 2, time.Second, ""))
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	require.NoError(t, err)
	second, err := log.LogScan(ScanRecord{ScanID: "fixed-id", Root: dir})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", second)

	st, err := os.Stat(filepath.Join(dir, ".git", "skillvet_audit.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), st.Mode().Perm())

	records, err := log.LoadHistory()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "fixed-id", records[0].ScanID, "newest first")

	got, err := log.Find(first[:8])
	require.NoError(t, err)
	assert.Equal(t, first, got.ScanID)
	_, err = log.Find("nope")
	assert.Error(t, err)

	require.NoError(t, log.DeleteRecord(0))
	records, err = log.LoadHistory()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, first, records[0].ScanID)
	assert.Error(t, log.DeleteRecord(5))
}

func TestLoadHistory_Missing(t *testing.T) {
	_, err := NewAuditLog(t.TempDir()).LoadHistory()
	assert.Error(t, err)
}
