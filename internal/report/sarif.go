package report

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/varalys/skillvet/internal/types"
)

const (
	sarifSchema = "https://json.schemastore.org/sarif-2.1.0.json"

	// ScanErrorRule is the rule ID attached to targets that could not be
	// read or fetched.
	ScanErrorRule = "SKILLVET-SCAN-ERROR"
	unknownRule   = "ASST-UNKNOWN"
)

type sarif struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri"`
	Version        string      `json:"version"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	ShortDescription     sarifMessage      `json:"shortDescription"`
	Help                 sarifMessage      `json:"help"`
	DefaultConfiguration sarifRuleConfig   `json:"defaultConfiguration"`
	Properties           map[string]string `json:"properties"`
}

type sarifRuleConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID     string         `json:"ruleId"`
	RuleIndex  int            `json:"ruleIndex"`
	Level      string         `json:"level"`
	Message    sarifMessage   `json:"message"`
	Locations  []sarifLoc     `json:"locations"`
	Properties map[string]any `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLoc struct {
	PhysicalLocation sarifPhys `json:"physicalLocation"`
}

type sarifPhys struct {
	ArtifactLocation sarifArt     `json:"artifactLocation"`
	Region           *sarifRegion `json:"region,omitempty"`
}

type sarifArt struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

func sevToLevel(s types.Severity) string {
	switch s {
	case types.SevCritical, types.SevHigh:
		return "error"
	case types.SevMed:
		return "warning"
	default:
		return "note"
	}
}

func ruleID(f types.Finding) string {
	if f.OwaspCategory == "" {
		return unknownRule
	}
	return f.OwaspCategory
}

func findingMessage(f types.Finding) string {
	parts := []string{f.Title, "", f.Description}
	if f.Evidence != "" {
		parts = append(parts, "", "Evidence: "+f.Evidence)
	}
	parts = append(parts, "", "Recommendation: "+f.Recommendation)
	return strings.Join(parts, "\n")
}

// BuildSARIF groups findings into one rule per taxonomy code. The rule level
// is the level of its most severe finding.
func BuildSARIF(reports []types.TargetReport, failures []types.ScanFailure) any {
	worst := map[string]types.Severity{}
	for _, tr := range reports {
		for _, f := range tr.Report.Findings {
			id := ruleID(f)
			cur, ok := worst[id]
			if !ok || f.Severity.Rank() < cur.Rank() {
				worst[id] = f.Severity
			}
		}
	}
	ids := make([]string, 0, len(worst))
	for id := range worst {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rules := []sarifRule{}
	index := map[string]int{}
	for _, id := range ids {
		title := "Agent skill security finding"
		if types.IsTaxonomyCode(id) {
			title = types.TaxonomyTitle(id)
		}
		index[id] = len(rules)
		rules = append(rules, sarifRule{
			ID:                   id,
			Name:                 title,
			ShortDescription:     sarifMessage{Text: title},
			Help:                 sarifMessage{Text: "Category " + id + ": " + title + ". See the finding message for context and recommended mitigation."},
			DefaultConfiguration: sarifRuleConfig{Level: sevToLevel(worst[id])},
			Properties:           map[string]string{"kind": "agent-skill-security"},
		})
	}

	results := []sarifResult{}
	for _, tr := range reports {
		r := tr.Report
		for _, f := range r.Findings {
			id := ruleID(f)
			phys := sarifPhys{ArtifactLocation: sarifArt{URI: tr.Target}}
			if f.LineNumber > 0 {
				phys.Region = &sarifRegion{StartLine: f.LineNumber}
			}
			results = append(results, sarifResult{
				RuleID:    id,
				RuleIndex: index[id],
				Level:     sevToLevel(f.Severity),
				Message:   sarifMessage{Text: findingMessage(f)},
				Locations: []sarifLoc{{PhysicalLocation: phys}},
				Properties: map[string]any{
					"findingId":   f.ID,
					"category":    f.Category,
					"severity":    f.Severity,
					"deduction":   f.Deduction,
					"badge":       r.Badge,
					"overall":     r.Overall,
					"skillName":   r.Metadata.SkillName,
					"skillFormat": r.Metadata.SkillFormat,
				},
			})
		}
	}

	if len(failures) > 0 {
		idx := len(rules)
		rules = append(rules, sarifRule{
			ID:                   ScanErrorRule,
			Name:                 "Skill scan failed",
			ShortDescription:     sarifMessage{Text: "Failed to fetch or read a target for scanning."},
			Help:                 sarifMessage{Text: "The scanner could not read a file or fetch a URL. Fix the error and re-run the scan to avoid missing results."},
			DefaultConfiguration: sarifRuleConfig{Level: "error"},
			Properties:           map[string]string{"kind": "scan-error"},
		})
		for _, f := range failures {
			results = append(results, sarifResult{
				RuleID:    ScanErrorRule,
				RuleIndex: idx,
				Level:     "error",
				Message:   sarifMessage{Text: "Failed to scan target: " + f.Target + "\n\n" + f.Error},
				Locations: []sarifLoc{{PhysicalLocation: sarifPhys{ArtifactLocation: sarifArt{URI: f.Target}}}},
			})
		}
	}

	return sarif{
		Schema:  sarifSchema,
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "SkillVet",
				InformationURI: "https://github.com/varalys/skillvet",
				Version:        types.ScannerVersion,
				Rules:          rules,
			}},
			Results: results,
		}},
	}
}

// WriteSARIF writes reports and failures as SARIF 2.1.0.
func WriteSARIF(w io.Writer, reports []types.TargetReport, failures []types.ScanFailure) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildSARIF(reports, failures))
}
