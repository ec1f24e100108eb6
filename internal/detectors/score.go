package detectors

import (
	"fmt"

	"github.com/varalys/skillvet/internal/types"
)

var contentBonus = map[string]int{
	"CONT-SAFETY-GOOD": 10,
	"CONT-OUTPUT-GOOD": 5,
	"CONT-ERROR-GOOD":  5,
}

// Rescore derives a category's score and summary from its findings. It is
// re-run after reconciliation and after merging extra findings so the score
// always matches the list.
func Rescore(cat types.Category, findings []types.Finding) types.CategoryScore {
	base := 100
	if cat == types.CatContent {
		base = contentBase
		for _, f := range findings {
			base += contentBonus[f.ID]
		}
		if base > 100 {
			base = 100
		}
	}
	total := 0
	for _, f := range findings {
		total += f.Deduction
	}
	if findings == nil {
		findings = []types.Finding{}
	}
	return types.CategoryScore{
		Score:    clamp(base - total),
		Weight:   cat.Weight(),
		Findings: findings,
		Summary:  Summary(cat, findings),
	}
}

// Summary renders the one-line verdict for a category.
func Summary(cat types.Category, fs []types.Finding) string {
	n := len(fs)
	switch cat {
	case types.CatPermissions:
		switch {
		case n == 0:
			return "No permission concerns detected."
		case hasSeverity(fs, types.SevCritical):
			return fmt.Sprintf("Found %d permission-related findings. CRITICAL: Dangerous permissions detected.", n)
		case hasSeverity(fs, types.SevHigh):
			return fmt.Sprintf("Found %d permission-related findings. High-risk permissions detected that may not match the skill's purpose.", n)
		}
		return fmt.Sprintf("Found %d permission-related findings. Minor permission concerns.", n)
	case types.CatInjection:
		switch {
		case n == 0:
			return "No injection patterns detected."
		case hasSeverity(fs, types.SevCritical):
			return fmt.Sprintf("Found %d injection-related findings. CRITICAL: Active injection attacks detected. This skill is dangerous.", n)
		}
		return fmt.Sprintf("Found %d injection-related findings. Suspicious patterns detected that warrant review.", n)
	case types.CatDependencies:
		switch {
		case n == 0:
			return "No dependency concerns detected."
		case hasSeverity(fs, types.SevCritical):
			return fmt.Sprintf("Found %d dependency-related findings. CRITICAL: Download-and-execute patterns detected.", n)
		case hasSeverity(fs, types.SevHigh):
			return fmt.Sprintf("Found %d dependency-related findings. High-risk external dependencies detected.", n)
		}
		return fmt.Sprintf("Found %d dependency-related findings. Minor dependency concerns noted.", n)
	case types.CatBehavioral:
		switch {
		case n == 0:
			return "No behavioral risk concerns detected."
		case hasSeverity(fs, types.SevHigh):
			return fmt.Sprintf("Found %d behavioral risk findings. High-risk behavioral patterns detected.", n)
		}
		return fmt.Sprintf("Found %d behavioral risk findings. Moderate behavioral concerns noted.", n)
	case types.CatContent:
		issues := 0
		for _, f := range fs {
			if f.Severity != types.SevInfo {
				issues++
			}
		}
		switch {
		case issues == 0:
			return "Content quality is good with proper safety boundaries."
		case hasSeverity(fs, types.SevCritical):
			return fmt.Sprintf("Found %d content-related concerns. CRITICAL: Harmful content detected.", issues)
		}
		return fmt.Sprintf("Found %d content-related concerns. Some content quality improvements recommended.", issues)
	}
	return ""
}
