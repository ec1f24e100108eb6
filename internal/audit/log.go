// Package audit keeps an append-only JSONL history of scans under the
// repository's .git directory.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/varalys/skillvet/internal/types"
)

type ScanRecord struct {
	Timestamp      time.Time             `json:"timestamp"`
	ScanID         string                `json:"scan_id"`
	Root           string                `json:"root"`
	Targets        int                   `json:"targets"`
	Failures       int                   `json:"failures"`
	TotalFindings  int                   `json:"total_findings"`
	NewFindings    int                   `json:"new_findings"`
	BaselinedCount int                   `json:"baselined_count"`
	SeverityCounts map[string]int        `json:"severity_counts"`
	Badges         map[string]int        `json:"badges"`
	Duration       string                `json:"duration"`
	BaselineFile   string                `json:"baseline_file,omitempty"`
	Skills         []SkillSummary        `json:"skills,omitempty"`
	FailedTargets  []types.ScanFailure   `json:"failed_targets,omitempty"`
	AllFindings    []types.TargetFinding `json:"all_findings,omitempty"`
}

type SkillSummary struct {
	Target   string      `json:"target"`
	Name     string      `json:"name"`
	Score    int         `json:"score"`
	Badge    types.Badge `json:"badge"`
	Findings int         `json:"findings"`
}

type AuditLog struct {
	logPath string
}

func NewAuditLog(root string) *AuditLog {
	gitDir := filepath.Join(root, ".git")
	logPath := filepath.Join(root, ".skillvet_audit.jsonl")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		logPath = filepath.Join(gitDir, "skillvet_audit.jsonl")
	}
	return &AuditLog{logPath: logPath}
}

// LoadHistory returns the recorded scans, newest first.
func (a *AuditLog) LoadHistory() ([]ScanRecord, error) {
	f, err := os.Open(a.logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var records []ScanRecord
	decoder := json.NewDecoder(f)
	for decoder.More() {
		var record ScanRecord
		if err := decoder.Decode(&record); err != nil {
			break
		}
		records = append(records, record)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Find returns the record whose scan ID starts with prefix.
func (a *AuditLog) Find(prefix string) (ScanRecord, error) {
	records, err := a.LoadHistory()
	if err != nil {
		return ScanRecord{}, err
	}
	var match []ScanRecord
	for _, r := range records {
		if strings.HasPrefix(r.ScanID, prefix) {
			match = append(match, r)
		}
	}
	switch len(match) {
	case 0:
		return ScanRecord{}, fmt.Errorf("no scan with id %q", prefix)
	case 1:
		return match[0], nil
	}
	return ScanRecord{}, fmt.Errorf("scan id %q is ambiguous (%d matches)", prefix, len(match))
}

func (a *AuditLog) LogScan(record ScanRecord) (string, error) {
	if record.ScanID == "" {
		record.ScanID = uuid.NewString()
	}

	// Restrict permissions to owner-only for audit log containing finding metadata
	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	if err := encoder.Encode(record); err != nil {
		return "", fmt.Errorf("failed to write audit record: %w", err)
	}
	return record.ScanID, nil
}

func (a *AuditLog) DeleteRecord(index int) error {
	records, err := a.LoadHistory()
	if err != nil {
		return err
	}

	if index < 0 || index >= len(records) {
		return fmt.Errorf("invalid index: %d", index)
	}

	records = append(records[:index], records[index+1:]...)

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to write audit record: %w", err)
		}
	}
	return nil
}

func CreateScanRecord(
	root string,
	reports []types.TargetReport,
	failures []types.ScanFailure,
	newFindings int,
	duration time.Duration,
	baselineFile string,
) ScanRecord {
	severityCounts := make(map[string]int)
	badges := make(map[string]int)
	skills := make([]SkillSummary, 0, len(reports))
	var all []types.TargetFinding
	for _, tr := range reports {
		badges[string(tr.Report.Badge)]++
		skills = append(skills, SkillSummary{
			Target:   tr.Target,
			Name:     tr.Report.Metadata.SkillName,
			Score:    tr.Report.Overall,
			Badge:    tr.Report.Badge,
			Findings: len(tr.Report.Findings),
		})
		for _, f := range tr.Report.Findings {
			severityCounts[string(f.Severity)]++
			all = append(all, types.TargetFinding{Target: tr.Target, Finding: f})
		}
	}

	return ScanRecord{
		Timestamp:      time.Now(),
		Root:           root,
		Targets:        len(reports) + len(failures),
		Failures:       len(failures),
		TotalFindings:  len(all),
		NewFindings:    newFindings,
		BaselinedCount: len(all) - newFindings,
		SeverityCounts: severityCounts,
		Badges:         badges,
		Duration:       duration.String(),
		BaselineFile:   baselineFile,
		Skills:         skills,
		FailedTargets:  failures,
		AllFindings:    redactSecrets(all),
	}
}

// redactSecrets returns a copy of findings with the evidence of credential
// findings masked. This prevents secret values from being written to the
// audit log.
func redactSecrets(findings []types.TargetFinding) []types.TargetFinding {
	redacted := make([]types.TargetFinding, len(findings))
	for i, f := range findings {
		redacted[i] = f
		if strings.HasPrefix(f.Finding.ID, "CONT-SECRET-") && f.Finding.Evidence != "" {
			redacted[i].Finding.Evidence = "[REDACTED]"
		}
	}
	return redacted
}
