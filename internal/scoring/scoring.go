// Package scoring combines category scores into a TrustReport and assigns
// its badge.
package scoring

import (
	"math"
	"sort"

	"github.com/varalys/skillvet/internal/types"
)

// Overall is the weighted sum of category scores, rounded and clamped.
func Overall(cats map[types.Category]types.CategoryScore) int {
	sum := 0.0
	for _, c := range types.Categories {
		if cs, ok := cats[c]; ok {
			sum += float64(cs.Score) * c.Weight()
		}
	}
	n := int(math.Round(sum))
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	}
	return n
}

// Badge applies the badge decision table. A critical finding always
// rejects, whatever the score.
func Badge(score int, findings []types.Finding) types.Badge {
	critical := false
	high := 0
	for _, f := range findings {
		switch f.Severity {
		case types.SevCritical:
			critical = true
		case types.SevHigh:
			high++
		}
	}
	switch {
	case critical:
		return types.BadgeRejected
	case score < 50:
		return types.BadgeRejected
	case score < 75:
		return types.BadgeSuspicious
	case score < 90 && high <= 2:
		return types.BadgeConditional
	case score >= 90 && high == 0:
		return types.BadgeCertified
	case high > 2:
		return types.BadgeSuspicious
	}
	return types.BadgeConditional
}

// Flatten returns every category's findings in report order, sorted by
// severity. The sort is stable so equal severities keep analyzer order.
func Flatten(cats map[types.Category]types.CategoryScore) []types.Finding {
	out := []types.Finding{}
	for _, c := range types.Categories {
		out = append(out, cats[c].Findings...)
	}
	SortFindings(out)
	return out
}

// SortFindings orders findings by severity rank in place.
func SortFindings(fs []types.Finding) {
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Severity.Rank() < fs[j].Severity.Rank() })
}

// Aggregate builds the final report from the per-category scores.
func Aggregate(cats map[types.Category]types.CategoryScore, meta types.ScanMetadata) types.TrustReport {
	findings := Flatten(cats)
	overall := Overall(cats)
	return types.TrustReport{
		Overall:    overall,
		Badge:      Badge(overall, findings),
		Categories: cats,
		Findings:   findings,
		Metadata:   meta,
	}
}

// Tally counts reports per badge; every badge is present in the result.
func Tally(reports []types.TrustReport) map[types.Badge]int {
	out := map[types.Badge]int{
		types.BadgeCertified:   0,
		types.BadgeConditional: 0,
		types.BadgeSuspicious:  0,
		types.BadgeRejected:    0,
	}
	for _, r := range reports {
		out[r.Badge]++
	}
	return out
}
