package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/varalys/skillvet/internal/scoring"
	"github.com/varalys/skillvet/internal/types"
)

const binaryDeduction = 25

// ApplyBinaryArtifacts adds one dependency finding for executables packaged
// next to a local skill file and re-aggregates the report. binaries are
// absolute paths; evidence lists them relative to the skill's directory.
func ApplyBinaryArtifacts(report types.TrustReport, target string, binaries []string) types.TrustReport {
	if len(binaries) == 0 {
		return report
	}
	baseDir := filepath.Dir(target)
	if abs, err := filepath.Abs(baseDir); err == nil {
		baseDir = abs
	}
	shown := binaries
	if len(shown) > 3 {
		shown = shown[:3]
	}
	rels := make([]string, 0, len(shown))
	for _, p := range shown {
		if rel, err := filepath.Rel(baseDir, p); err == nil {
			p = rel
		}
		rels = append(rels, filepath.ToSlash(p))
	}
	evidence := strings.Join(rels, ", ")
	if len(binaries) > 3 {
		evidence += fmt.Sprintf(" (+%d more)", len(binaries)-3)
	}

	finding := types.Finding{
		ID:             fmt.Sprintf("DEP-BINARY-%d", len(binaries)),
		Category:       types.CatDependencies,
		Severity:       types.SevHigh,
		Title:          "Executable binary artifact detected",
		Description:    "The skill directory contains executable binary files (ELF/PE/Mach-O or typical executable extensions). Binaries are opaque to review and can hide malware.",
		Evidence:       evidence,
		Deduction:      binaryDeduction,
		Recommendation: "Remove packaged binaries from the skill. Provide source code and build instructions, or pin verifiable checksums and justify why a binary is required.",
		OwaspCategory:  types.ASST10,
	}

	cats := make(map[types.Category]types.CategoryScore, len(report.Categories))
	for c, cs := range report.Categories {
		cats[c] = cs
	}
	deps := cats[types.CatDependencies]
	deps.Findings = append(append([]types.Finding{}, deps.Findings...), finding)
	deps.Score = max(0, deps.Score-binaryDeduction)
	deps.Summary = fmt.Sprintf("%s Executable binary artifact(s) detected: %d.", deps.Summary, len(binaries))
	if deps.Weight == 0 {
		deps.Weight = types.CatDependencies.Weight()
	}
	cats[types.CatDependencies] = deps
	return scoring.Aggregate(cats, report.Metadata)
}
