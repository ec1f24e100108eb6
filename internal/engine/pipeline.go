package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/varalys/skillvet/internal/ctxparse"
	"github.com/varalys/skillvet/internal/detectors"
	"github.com/varalys/skillvet/internal/parser"
	"github.com/varalys/skillvet/internal/reconcile"
	"github.com/varalys/skillvet/internal/rules"
	"github.com/varalys/skillvet/internal/scoring"
	"github.com/varalys/skillvet/internal/semantic"
	"github.com/varalys/skillvet/internal/types"
)

// FallbackScore is assigned to a category whose analyzer failed.
const FallbackScore = 50

// Pipeline turns skill content into a TrustReport. It holds no per-scan
// state and is safe for concurrent use.
type Pipeline struct {
	suite    *detectors.Suite
	semantic *semantic.Analyzer
	now      func() time.Time

	// analyzer overrides, used by tests to inject failures
	analyzers map[types.Category]detectors.Analyzer
}

// NewPipeline builds a pipeline over rs (nil selects the built-in rules).
// sem may be nil to disable semantic analysis.
func NewPipeline(rs *rules.Set, sem *semantic.Analyzer) (*Pipeline, error) {
	suite, err := detectors.New(rs)
	if err != nil {
		return nil, err
	}
	return &Pipeline{suite: suite, semantic: sem, now: time.Now}, nil
}

// RulesDigest identifies the rule set the pipeline matches with.
func (p *Pipeline) RulesDigest() string { return p.suite.Rules().Digest() }

// Semantic reports whether LLM analysis is enabled.
func (p *Pipeline) Semantic() bool { return p.semantic != nil }

func (p *Pipeline) analyzer(cat types.Category) detectors.Analyzer {
	if a, ok := p.analyzers[cat]; ok {
		return a
	}
	return p.suite.Analyzer(cat)
}

// Scan parses content and produces its TrustReport. Analyzer failures never
// fail the scan; the affected category gets the fallback score instead.
func (p *Pipeline) Scan(ctx context.Context, content string) types.TrustReport {
	started := p.now()
	skill := parser.Parse(content)
	cx := ctxparse.Build(content)

	results := make([]types.CategoryScore, len(types.Categories))
	failed := make([]bool, len(types.Categories))
	var wg sync.WaitGroup
	for i, cat := range types.Categories {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], failed[i] = runAnalyzer(p.analyzer(cat), cat, skill, cx)
		}()
	}
	var (
		sem     *semantic.Result
		trusted map[string]semantic.Assessment
	)
	if p.semantic != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem = p.semantic.Analyze(ctx, content)
			if domains := detectors.SelfBaseDomains(skill); len(domains) > 0 {
				trusted = semantic.Trusted(p.semantic.ClassifyDomains(ctx, skill.Name, skill.Description, domains))
			}
		}()
	}
	wg.Wait()

	cats := make(map[types.Category]types.CategoryScore, len(types.Categories))
	for i, cat := range types.Categories {
		cats[cat] = results[i]
	}
	cats = reconcile.Categories(cats, skill.DeclaredPermissions)
	for i, cat := range types.Categories {
		if !failed[i] {
			cats[cat] = detectors.Rescore(cat, cats[cat].Findings)
		}
	}

	if p.semantic != nil {
		cats[types.CatInjection] = semantic.Merge(cats[types.CatInjection], sem)
		if len(trusted) > 0 {
			cats[types.CatDependencies] = semantic.ApplyDomainTrust(cats[types.CatDependencies], trusted)
		}
	}

	name := skill.Name
	if name == "" {
		name = "Unknown Skill"
	}
	meta := types.ScanMetadata{
		ScannedAt:        p.now().UTC(),
		ScannerVersion:   types.ScannerVersion,
		DurationMs:       p.now().Sub(started).Milliseconds(),
		SkillFormat:      skill.Format,
		SkillName:        name,
		SkillDescription: skill.Description,
	}
	return scoring.Aggregate(cats, meta)
}

func runAnalyzer(a detectors.Analyzer, cat types.Category, skill *types.ParsedSkill, cx *ctxparse.Context) (cs types.CategoryScore, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("analyzer panicked", "category", cat, "panic", r)
			cs, failed = Fallback(cat, fmt.Sprint(r)), true
		}
	}()
	if a == nil {
		return Fallback(cat, "no analyzer registered"), true
	}
	var err error
	cs, err = a(skill, cx)
	if err != nil {
		slog.Warn("analyzer failed", "category", cat, "err", err)
		return Fallback(cat, err.Error()), true
	}
	return cs, false
}

// Fallback is the score of a category whose analyzer failed: 50 points and
// one high finding so the report can never be certified.
func Fallback(cat types.Category, msg string) types.CategoryScore {
	return types.CategoryScore{
		Score:  FallbackScore,
		Weight: cat.Weight(),
		Findings: []types.Finding{{
			ID:             "ERR-" + strings.ToUpper(string(cat)),
			Category:       cat,
			Severity:       types.SevHigh,
			Title:          fmt.Sprintf("Analyzer error: %s", cat),
			Description:    fmt.Sprintf("The %s analyzer encountered an error: %s. A default score of 50 was assigned.", cat, msg),
			Evidence:       msg,
			Deduction:      0,
			Recommendation: "Scan coverage is incomplete. Fix the underlying error (often malformed frontmatter/markdown) and re-scan. Do not treat this report as certification.",
			OwaspCategory:  types.ASST09,
		}},
		Summary: "Analyzer error - default score assigned. Error: " + msg,
	}
}
