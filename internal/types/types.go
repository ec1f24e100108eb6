package types

import (
	"strings"
	"time"
)

// ScannerVersion is stamped into every report.
const ScannerVersion = "0.4.0"

// Severity is a coarse-grained risk level for a finding.
type Severity string

const (
	SevCritical Severity = "critical"
	SevHigh     Severity = "high"
	SevMed      Severity = "medium"
	SevLow      Severity = "low"
	SevInfo     Severity = "info"
)

// Rank orders severities for presentation; critical is 0.
func (s Severity) Rank() int {
	switch s {
	case SevCritical:
		return 0
	case SevHigh:
		return 1
	case SevMed:
		return 2
	case SevLow:
		return 3
	default:
		return 4
	}
}

// Downgrade returns the next lower severity. Info stays info.
func (s Severity) Downgrade() Severity {
	switch s {
	case SevCritical:
		return SevHigh
	case SevHigh:
		return SevMed
	case SevMed:
		return SevLow
	default:
		return SevInfo
	}
}

// ParseSeverity maps a case-insensitive name to a Severity.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	switch sev {
	case SevCritical, SevHigh, SevMed, SevLow, SevInfo:
		return sev, true
	}
	return "", false
}

// Category is one of the five weighted analysis areas.
type Category string

const (
	CatPermissions  Category = "permissions"
	CatInjection    Category = "injection"
	CatDependencies Category = "dependencies"
	CatBehavioral   Category = "behavioral"
	CatContent      Category = "content"
)

// Categories lists every category in report order.
var Categories = []Category{CatPermissions, CatInjection, CatDependencies, CatBehavioral, CatContent}

// Weight returns the fixed scoring weight for c.
func (c Category) Weight() float64 {
	switch c {
	case CatPermissions:
		return 0.25
	case CatInjection:
		return 0.30
	case CatDependencies:
		return 0.20
	case CatBehavioral:
		return 0.15
	case CatContent:
		return 0.10
	}
	return 0
}

// Badge is the discrete trust tier of a report.
type Badge string

const (
	BadgeCertified   Badge = "certified"
	BadgeConditional Badge = "conditional"
	BadgeSuspicious  Badge = "suspicious"
	BadgeRejected    Badge = "rejected"
)

// Format is the detected skill dialect.
type Format string

const (
	FormatOpenClaw Format = "openclaw"
	FormatClaude   Format = "claude"
	FormatGeneric  Format = "generic"
)

// Finding describes one detected issue with its score deduction and the
// taxonomy code downstream systems key off of.
type Finding struct {
	ID             string   `json:"id"`
	Category       Category `json:"category"`
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Evidence       string   `json:"evidence"`
	LineNumber     int      `json:"lineNumber,omitempty"`
	Deduction      int      `json:"deduction"`
	Recommendation string   `json:"recommendation"`
	OwaspCategory  string   `json:"owaspCategory"`
}

// CategoryScore is the result of one analyzer.
type CategoryScore struct {
	Score    int       `json:"score"`
	Weight   float64   `json:"weight"`
	Findings []Finding `json:"findings"`
	Summary  string    `json:"summary"`
}

// ScanMetadata carries the non-scoring facts about a scan.
type ScanMetadata struct {
	ScannedAt        time.Time `json:"scannedAt"`
	ScannerVersion   string    `json:"scannerVersion"`
	DurationMs       int64     `json:"durationMs"`
	SkillFormat      Format    `json:"skillFormat"`
	SkillName        string    `json:"skillName"`
	SkillDescription string    `json:"skillDescription"`
}

// TrustReport is the terminal value of the pipeline.
type TrustReport struct {
	Overall    int                        `json:"overall"`
	Badge      Badge                      `json:"badge"`
	Categories map[Category]CategoryScore `json:"categories"`
	Findings   []Finding                  `json:"findings"`
	Metadata   ScanMetadata               `json:"metadata"`
}

// DeclaredPermission is an author-asserted capability with its justification.
type DeclaredPermission struct {
	Kind          string `json:"kind"`
	Justification string `json:"justification"`
}

// Section is one markdown heading and the body under it.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// ParsedSkill is built once by the parser and never mutated afterwards.
type ParsedSkill struct {
	Name                string               `json:"name"`
	Description         string               `json:"description"`
	Instructions        string               `json:"instructions"`
	Tools               []string             `json:"tools"`
	Permissions         []string             `json:"permissions"`
	DeclaredPermissions []DeclaredPermission `json:"declaredPermissions"`
	Dependencies        []string             `json:"dependencies"`
	URLs                []string             `json:"urls"`
	RawContent          string               `json:"rawContent"`
	Sections            []Section            `json:"sections"`
	Format              Format               `json:"format"`
	Warnings            []string             `json:"warnings"`
}

// Section returns the body of the first section whose heading equals name
// case-insensitively.
func (p *ParsedSkill) Section(name string) (string, bool) {
	for _, s := range p.Sections {
		if strings.EqualFold(s.Heading, name) {
			return s.Body, true
		}
	}
	return "", false
}

// TargetReport pairs a scanned target (path, URL or image reference) with
// its report.
type TargetReport struct {
	Target string      `json:"target"`
	Report TrustReport `json:"report"`
}

// ScanFailure records a target that could not be read or fetched.
type ScanFailure struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

// TargetFinding is a finding tagged with the target it was found in, for
// flat listings across a multi-target scan.
type TargetFinding struct {
	Target  string  `json:"target"`
	Finding Finding `json:"finding"`
}
