package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"golang.org/x/sync/errgroup"

	"github.com/varalys/skillvet/internal/artifacts"
	"github.com/varalys/skillvet/internal/source"
	"github.com/varalys/skillvet/internal/types"
)

// DefaultConcurrency bounds the number of targets scanned at once.
const DefaultConcurrency = 25

// Options controls a batch scan.
type Options struct {
	Concurrency int
	// CacheRoot enables the report cache for local files, stored under
	// that directory. Semantic scans are never cached.
	CacheRoot string
	// Progress is called once per finished target; badge is empty when the
	// target failed. Calls are serialized.
	Progress func(done, total int, target string, badge types.Badge)
}

// Batch is the outcome of ScanTargets. Reports and failures keep the order
// of the targets they came from.
type Batch struct {
	Reports     []types.TargetReport
	Failures    []types.ScanFailure
	Duration    time.Duration
	Concurrency int
}

// Scanner retrieves targets and runs them through a Pipeline.
type Scanner struct {
	Pipeline *Pipeline
	Fetcher  *source.Fetcher
	Binaries *artifacts.BinaryCache
	Limits   artifacts.Limits

	registryOpts []name.Option
}

// NewScanner wires p to a default fetcher and binary cache.
func NewScanner(p *Pipeline) *Scanner {
	return &Scanner{
		Pipeline: p,
		Fetcher:  source.New(),
		Binaries: artifacts.NewBinaryCache(),
		Limits:   artifacts.DefaultLimits(),
	}
}

// ScanTarget scans one target: a local file, an http(s) or data: URL, or an
// oci:// image reference.
func (s *Scanner) ScanTarget(ctx context.Context, target string) (types.TargetReport, error) {
	return s.scan(ctx, target, nil)
}

func (s *Scanner) scan(ctx context.Context, target string, rc *reportCache) (types.TargetReport, error) {
	if !IsLocal(target) {
		content, err := s.retrieve(ctx, target)
		if err != nil {
			return types.TargetReport{}, err
		}
		return types.TargetReport{Target: target, Report: s.Pipeline.Scan(ctx, content)}, nil
	}

	b, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.TargetReport{}, fmt.Errorf("Target not found: %s", target)
		}
		return types.TargetReport{}, fmt.Errorf("read %s: %w", target, err)
	}
	content := string(b)

	var report types.TrustReport
	hit := false
	hash := ""
	if rc != nil {
		hash = contentKey(content, s.Pipeline.RulesDigest())
		report, hit = rc.get(target, hash)
	}
	if !hit {
		report = s.Pipeline.Scan(ctx, content)
		if rc != nil {
			rc.put(target, hash, report)
		}
	}

	if s.Binaries != nil {
		dir := filepath.Dir(target)
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		bins, err := s.Binaries.Lookup(dir)
		if err != nil {
			slog.Debug("binary artifact scan skipped", "dir", dir, "err", err)
		}
		report = ApplyBinaryArtifacts(report, target, bins)
	}
	return types.TargetReport{Target: target, Report: report}, nil
}

func (s *Scanner) retrieve(ctx context.Context, target string) (string, error) {
	if artifacts.IsOCIRef(target) {
		skill, err := artifacts.FetchSkillFromRegistry(ctx, target, s.Limits, s.registryOpts...)
		if err != nil {
			return "", err
		}
		return skill.Content, nil
	}
	f := s.Fetcher
	if f == nil {
		f = source.New()
	}
	res, err := f.Fetch(ctx, target)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// ScanTargets scans every target through a bounded worker pool. A target
// that cannot be read or fetched becomes a ScanFailure; it never stops the
// others.
func (s *Scanner) ScanTargets(ctx context.Context, targets []string, opts Options) Batch {
	started := time.Now()
	n := opts.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}

	var rc *reportCache
	if opts.CacheRoot != "" && !s.Pipeline.Semantic() {
		rc = openReportCache(opts.CacheRoot)
		defer rc.flush()
	}

	reports := make([]*types.TargetReport, len(targets))
	failures := make([]*types.ScanFailure, len(targets))
	var (
		mu   sync.Mutex
		done int
	)
	var g errgroup.Group
	g.SetLimit(n)
	for i, target := range targets {
		g.Go(func() error {
			tr, err := s.scan(ctx, target, rc)
			var badge types.Badge
			if err != nil {
				slog.Debug("target failed", "target", target, "err", err)
				failures[i] = &types.ScanFailure{Target: target, Error: err.Error()}
			} else {
				reports[i] = &tr
				badge = tr.Report.Badge
			}
			if opts.Progress != nil {
				mu.Lock()
				done++
				opts.Progress(done, len(targets), target, badge)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := Batch{Reports: []types.TargetReport{}, Failures: []types.ScanFailure{}, Concurrency: n}
	for i := range targets {
		if reports[i] != nil {
			out.Reports = append(out.Reports, *reports[i])
		}
		if failures[i] != nil {
			out.Failures = append(out.Failures, *failures[i])
		}
	}
	out.Duration = time.Since(started)
	return out
}
