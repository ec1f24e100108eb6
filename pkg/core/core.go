package core

import (
	"context"

	"github.com/varalys/skillvet/internal/engine"
	"github.com/varalys/skillvet/internal/rules"
	"github.com/varalys/skillvet/internal/types"
)

// Re-export selected internal types as a stable public API surface.
type (
	TrustReport   = types.TrustReport
	Finding       = types.Finding
	CategoryScore = types.CategoryScore
	TargetReport  = types.TargetReport
	ScanFailure   = types.ScanFailure
	Badge         = types.Badge
	Severity      = types.Severity
)

// Scan scores one skill document with the built-in rules. It never fails on
// content; the error covers rule compilation only.
func Scan(content string) (TrustReport, error) {
	p, err := pipeline()
	if err != nil {
		return TrustReport{}, err
	}
	return p.Scan(context.Background(), content), nil
}

// ScanTargets scans local files, http(s) or data: URLs and oci:// references
// with at most concurrency targets in flight (0 picks the default).
func ScanTargets(ctx context.Context, targets []string, concurrency int) ([]TargetReport, []ScanFailure, error) {
	p, err := pipeline()
	if err != nil {
		return nil, nil, err
	}
	b := engine.NewScanner(p).ScanTargets(ctx, targets, engine.Options{Concurrency: concurrency})
	return b.Reports, b.Failures, nil
}

func pipeline() (*engine.Pipeline, error) {
	rs, err := rules.Default()
	if err != nil {
		return nil, err
	}
	return engine.NewPipeline(rs, nil)
}

// ScannerVersion is stamped into every report's metadata.
const ScannerVersion = types.ScannerVersion
