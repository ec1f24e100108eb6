package engine

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/varalys/skillvet/internal/artifacts"
	"github.com/varalys/skillvet/internal/scoring"
	"github.com/varalys/skillvet/internal/types"
)

const (
	maxResultFindings = 10
	maxTopFindings    = 20
)

// CategoryStat is the per-category slice of a RegistryResult.
type CategoryStat struct {
	Score        int     `json:"score"`
	Weight       float64 `json:"weight"`
	FindingCount int     `json:"findingCount"`
}

// CompactFinding keeps the fields of a finding needed for a registry-wide
// dataset.
type CompactFinding struct {
	ID            string `json:"id"`
	Severity      string `json:"severity"`
	Title         string `json:"title"`
	Category      string `json:"category"`
	OwaspCategory string `json:"owaspCategory"`
	Evidence      string `json:"evidence,omitempty"`
}

// RegistryResult is one row of a batch dataset.
type RegistryResult struct {
	Slug       string                  `json:"slug"`
	Version    string                  `json:"version"`
	URL        string                  `json:"url"`
	Score      int                     `json:"score"`
	Badge      types.Badge             `json:"badge"`
	Format     types.Format            `json:"format"`
	Name       string                  `json:"name"`
	Categories map[string]CategoryStat `json:"categories"`
	Findings   []CompactFinding        `json:"findings"`
	DurationMs int64                   `json:"durationMs"`
	ScannedAt  time.Time               `json:"scannedAt"`

	severities map[types.Severity]int
	families   map[string]string
}

// RegistryError is a failed target in a batch dataset.
type RegistryError struct {
	Slug  string `json:"slug"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// FindingCount is how many scanned skills carry a finding family.
type FindingCount struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

// Summary aggregates a batch.
type Summary struct {
	TotalSkills       int                 `json:"totalSkills"`
	Scanned           int                 `json:"scanned"`
	Failed            int                 `json:"failed"`
	Badges            map[types.Badge]int `json:"badges"`
	AverageScore      float64             `json:"averageScore"`
	MedianScore       float64             `json:"medianScore"`
	ScoreDistribution map[string]int      `json:"scoreDistribution"`
	TopFindings       []FindingCount      `json:"topFindings"`
	// TextThreatSkills are skills with critical or high findings in their
	// instructions, the class of threat binary malware scanners cannot see.
	TextThreatSkills []string  `json:"textThreatSkills"`
	ScannerVersion   string    `json:"scannerVersion"`
	ScannedAt        time.Time `json:"scannedAt"`
	TotalDurationMs  int64     `json:"totalDurationMs"`
	Concurrency      int       `json:"concurrency"`
}

// ScoreBuckets lists the distribution ranges from best to worst.
var ScoreBuckets = []string{"90-100", "75-89", "50-74", "25-49", "0-24"}

func bucket(score int) string {
	switch {
	case score >= 90:
		return "90-100"
	case score >= 75:
		return "75-89"
	case score >= 50:
		return "50-74"
	case score >= 25:
		return "25-49"
	}
	return "0-24"
}

var reTrailingIndex = regexp.MustCompile(`-\d+$`)

// familyID drops the per-report index from a finding ID, so INJ-3 and
// INJ-7 count as the same finding across skills.
func familyID(id string) string { return reTrailingIndex.ReplaceAllString(id, "") }

// SlugOf derives a short registry name and version for a target: the
// ClawHub slug/version query parameters, an image's repository and tag, or
// the directory holding a SKILL.md.
func SlugOf(target string) (slug, version string) {
	switch {
	case artifacts.IsOCIRef(target):
		ref := strings.TrimPrefix(target, artifacts.OCIScheme)
		if i := strings.Index(ref, "@"); i >= 0 {
			ref, version = ref[:i], ref[i+1:]
		} else if i := strings.LastIndex(ref, ":"); i > strings.LastIndex(ref, "/") {
			ref, version = ref[:i], ref[i+1:]
		}
		return path.Base(ref), version
	case !IsLocal(target):
		u, err := url.Parse(target)
		if err != nil || u.Scheme == "data" {
			return target, ""
		}
		q := u.Query()
		if s := q.Get("slug"); s != "" {
			return s, q.Get("version")
		}
		return lastMeaningful(strings.Split(strings.Trim(u.Path, "/"), "/"), u.Hostname()), q.Get("version")
	}
	return lastMeaningful(strings.Split(filepath.ToSlash(filepath.Clean(target)), "/"), target), ""
}

func lastMeaningful(parts []string, fallback string) string {
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		if p == "" || p == "." || artifacts.IsSkillFile(p) {
			continue
		}
		return strings.TrimSuffix(p, path.Ext(p))
	}
	return fallback
}

// NewRegistryResult flattens a report into a dataset row.
func NewRegistryResult(tr types.TargetReport) RegistryResult {
	slug, version := SlugOf(tr.Target)
	r := tr.Report
	out := RegistryResult{
		Slug:       slug,
		Version:    version,
		URL:        tr.Target,
		Score:      r.Overall,
		Badge:      r.Badge,
		Format:     r.Metadata.SkillFormat,
		Name:       r.Metadata.SkillName,
		Categories: map[string]CategoryStat{},
		Findings:   []CompactFinding{},
		DurationMs: r.Metadata.DurationMs,
		ScannedAt:  r.Metadata.ScannedAt,
		severities: map[types.Severity]int{},
		families:   map[string]string{},
	}
	for _, c := range types.Categories {
		cs, ok := r.Categories[c]
		if !ok {
			continue
		}
		out.Categories[string(c)] = CategoryStat{Score: cs.Score, Weight: cs.Weight, FindingCount: len(cs.Findings)}
	}
	findings := append([]types.Finding{}, r.Findings...)
	scoring.SortFindings(findings)
	for _, f := range findings {
		out.severities[f.Severity]++
		fam := familyID(f.ID)
		if _, ok := out.families[fam]; !ok {
			out.families[fam] = f.Title
		}
		if len(out.Findings) < maxResultFindings {
			ev := f.Evidence
			if len(ev) > 200 {
				ev = ev[:200]
			}
			out.Findings = append(out.Findings, CompactFinding{
				ID:            f.ID,
				Severity:      string(f.Severity),
				Title:         f.Title,
				Category:      string(f.Category),
				OwaspCategory: f.OwaspCategory,
				Evidence:      ev,
			})
		}
	}
	return out
}

func textThreat(r types.TrustReport) bool {
	for _, f := range r.Findings {
		if f.Severity != types.SevCritical && f.Severity != types.SevHigh {
			continue
		}
		if strings.HasPrefix(f.ID, "DEP-BINARY-") || strings.HasPrefix(f.ID, "ERR-") {
			continue
		}
		return true
	}
	return false
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// Summarize computes batch statistics. Average and median are rounded to one
// decimal; the median of an even count is the mean of the middle pair.
func Summarize(b Batch, scannedAt time.Time) Summary {
	s := Summary{
		TotalSkills:       len(b.Reports) + len(b.Failures),
		Scanned:           len(b.Reports),
		Failed:            len(b.Failures),
		ScoreDistribution: map[string]int{},
		TopFindings:       []FindingCount{},
		TextThreatSkills:  []string{},
		ScannerVersion:    types.ScannerVersion,
		ScannedAt:         scannedAt.UTC(),
		TotalDurationMs:   b.Duration.Milliseconds(),
		Concurrency:       b.Concurrency,
	}
	for _, k := range ScoreBuckets {
		s.ScoreDistribution[k] = 0
	}

	reports := make([]types.TrustReport, 0, len(b.Reports))
	scores := make([]int, 0, len(b.Reports))
	counts := map[string]*FindingCount{}
	total := 0
	for _, tr := range b.Reports {
		reports = append(reports, tr.Report)
		scores = append(scores, tr.Report.Overall)
		total += tr.Report.Overall
		s.ScoreDistribution[bucket(tr.Report.Overall)]++

		row := NewRegistryResult(tr)
		for fam, title := range row.families {
			if c, ok := counts[fam]; ok {
				c.Count++
			} else {
				counts[fam] = &FindingCount{ID: fam, Title: title, Count: 1}
			}
		}
		if textThreat(tr.Report) {
			s.TextThreatSkills = append(s.TextThreatSkills, row.Slug)
		}
	}
	s.Badges = scoring.Tally(reports)

	if n := len(scores); n > 0 {
		s.AverageScore = round1(float64(total) / float64(n))
		sort.Ints(scores)
		if n%2 == 1 {
			s.MedianScore = float64(scores[n/2])
		} else {
			s.MedianScore = round1(float64(scores[n/2-1]+scores[n/2]) / 2)
		}
	}

	for _, c := range counts {
		s.TopFindings = append(s.TopFindings, *c)
	}
	sort.Slice(s.TopFindings, func(i, j int) bool {
		x, y := s.TopFindings[i], s.TopFindings[j]
		if x.Count != y.Count {
			return x.Count > y.Count
		}
		return x.ID < y.ID
	})
	if len(s.TopFindings) > maxTopFindings {
		s.TopFindings = s.TopFindings[:maxTopFindings]
	}
	return s
}

var csvHeader = []string{
	"slug", "version", "score", "badge", "format", "name",
	"permissions", "injection", "dependencies", "behavioral", "content",
	"findings", "critical", "high", "medium", "durationMs", "url",
}

// WriteCSV writes one spreadsheet row per result.
func WriteCSV(w io.Writer, rows []RegistryResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Slug, r.Version, strconv.Itoa(r.Score), string(r.Badge), string(r.Format), r.Name}
		for _, c := range types.Categories {
			if st, ok := r.Categories[string(c)]; ok {
				rec = append(rec, strconv.Itoa(st.Score))
			} else {
				rec = append(rec, "")
			}
		}
		findings := 0
		for _, st := range r.Categories {
			findings += st.FindingCount
		}
		rec = append(rec,
			strconv.Itoa(findings),
			strconv.Itoa(r.severities[types.SevCritical]),
			strconv.Itoa(r.severities[types.SevHigh]),
			strconv.Itoa(r.severities[types.SevMed]),
			strconv.FormatInt(r.DurationMs, 10),
			r.URL,
		)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBatch stores a batch as results.json, results.csv, summary.json and
// errors.json under dir.
func WriteBatch(dir string, b Batch, s Summary) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	rows := make([]RegistryResult, 0, len(b.Reports))
	for _, tr := range b.Reports {
		rows = append(rows, NewRegistryResult(tr))
	}
	errs := make([]RegistryError, 0, len(b.Failures))
	for _, f := range b.Failures {
		slug, _ := SlugOf(f.Target)
		errs = append(errs, RegistryError{Slug: slug, URL: f.Target, Error: f.Error})
	}

	if err := writeJSON(filepath.Join(dir, "results.json"), rows); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "summary.json"), s); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "errors.json"), errs); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "results.csv"))
	if err != nil {
		return fmt.Errorf("create results.csv: %w", err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("write results.csv: %w", err)
	}
	return f.Close()
}

func writeJSON(p string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(p), err)
	}
	if err := os.WriteFile(p, append(b, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(p), err)
	}
	return nil
}
