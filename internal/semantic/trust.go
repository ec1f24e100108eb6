package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/varalys/skillvet/internal/types"
)

// MinTrustConfidence is the lowest confidence at which a "trusted" verdict
// is acted on.
const MinTrustConfidence = 0.85

// Assessment is the model's opinion of one base domain.
type Assessment struct {
	Domain     string  `json:"domain"`
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

type domainPayload struct {
	SkillName        string   `json:"skillName"`
	SkillDescription string   `json:"skillDescription"`
	Domains          []string `json:"domains"`
}

// ClassifyDomains asks whether each base domain looks like the official
// domain of the product the skill describes. At most 20 unique domains are
// sent. It returns nil on any failure.
func (a *Analyzer) ClassifyDomains(ctx context.Context, name, description string, domains []string) []Assessment {
	if a == nil {
		return nil
	}
	seen := map[string]bool{}
	var unique []string
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		unique = append(unique, d)
		if len(unique) == maxDomains {
			break
		}
	}
	if len(unique) == 0 {
		return nil
	}
	payload, err := json.Marshal(domainPayload{SkillName: name, SkillDescription: description, Domains: unique})
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	text, err := a.gen.Generate(ctx, domainTrustPrompt, string(payload))
	if err != nil {
		slog.Warn("domain trust analysis failed", "err", err)
		return nil
	}
	var raw struct {
		Assessments *[]struct {
			Domain     any    `json:"domain"`
			Verdict    string `json:"verdict"`
			Confidence any    `json:"confidence"`
			Rationale  any    `json:"rationale"`
		} `json:"assessments"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil || raw.Assessments == nil {
		slog.Warn("domain trust analysis returned unusable JSON", "err", err)
		return nil
	}
	out := []Assessment{}
	for _, r := range *raw.Assessments {
		domain, ok := r.Domain.(string)
		if !ok {
			continue
		}
		verdict := r.Verdict
		if verdict != "trusted" && verdict != "suspicious" {
			verdict = "unknown"
		}
		conf, _ := r.Confidence.(float64)
		conf = min(1, max(0, conf))
		rationale, _ := r.Rationale.(string)
		if len(rationale) > 200 {
			rationale = rationale[:200]
		}
		out = append(out, Assessment{Domain: strings.ToLower(domain), Verdict: verdict, Confidence: conf, Rationale: rationale})
	}
	return out
}

// Trusted keeps the assessments that may downgrade findings, keyed by domain.
func Trusted(assessments []Assessment) map[string]Assessment {
	out := map[string]Assessment{}
	for _, a := range assessments {
		if a.Verdict == "trusted" && a.Confidence >= MinTrustConfidence {
			out[a.Domain] = a
		}
	}
	return out
}

// Merge folds semantic findings into the injection category: findings are
// appended and each deduction is taken off the existing score.
func Merge(injection types.CategoryScore, sem *Result) types.CategoryScore {
	if sem == nil || len(sem.Findings) == 0 {
		return injection
	}
	merged := injection
	merged.Findings = append(append([]types.Finding{}, injection.Findings...), sem.Findings...)
	for _, f := range sem.Findings {
		merged.Score = max(0, merged.Score-f.Deduction)
	}
	merged.Summary = injection.Summary + " " + sem.Summary
	return merged
}

var (
	reTrailingPunct = regexp.MustCompile(`[),.;\]]+$`)
	reHostFallback  = regexp.MustCompile(`(?i)^(?:https?://)?([^/:?#]+)(?:[:/]|$)`)
)

func hostOf(evidence string) string {
	cleaned := reTrailingPunct.ReplaceAllString(strings.TrimSpace(evidence), "")
	if cleaned == "" {
		return ""
	}
	host := ""
	if u, err := url.Parse(cleaned); err == nil && u.Host != "" {
		host = u.Hostname()
	} else if m := reHostFallback.FindStringSubmatch(cleaned); m != nil {
		host = m[1]
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return strings.TrimPrefix(host, "www.")
}

// ApplyDomainTrust turns unknown-URL findings on a trusted domain (or one of
// its subdomains) into informational findings with no deduction. When any
// finding changes, the score is recomputed from the remaining deductions.
func ApplyDomainTrust(deps types.CategoryScore, trusted map[string]Assessment) types.CategoryScore {
	if len(trusted) == 0 {
		return deps
	}
	bases := make([]string, 0, len(trusted))
	for d := range trusted {
		bases = append(bases, d)
	}
	sort.Strings(bases)

	verified := 0
	findings := make([]types.Finding, len(deps.Findings))
	copy(findings, deps.Findings)
	for i, f := range findings {
		if !strings.HasPrefix(f.ID, "DEP-URL-") || !strings.HasPrefix(f.Title, "Unknown external") ||
			f.Deduction <= 0 || !strings.HasPrefix(f.Evidence, "https://") {
			continue
		}
		host := hostOf(f.Evidence)
		if host == "" {
			continue
		}
		for _, base := range bases {
			if host != base && !strings.HasSuffix(host, "."+base) {
				continue
			}
			meta := trusted[base]
			verified++
			f.Severity = types.SevInfo
			f.Deduction = 0
			f.Title = fmt.Sprintf("External reference (verified domain: %s)", base)
			f.Description = fmt.Sprintf("%s\n\nDomain reputation: trusted (confidence %.2f). %s", f.Description, meta.Confidence, meta.Rationale)
			findings[i] = f
			break
		}
	}
	if verified == 0 {
		return deps
	}
	score := 100
	for _, f := range findings {
		score = max(0, score-f.Deduction)
	}
	return types.CategoryScore{
		Score:    min(100, score),
		Weight:   deps.Weight,
		Findings: findings,
		Summary:  fmt.Sprintf("%s Domain reputation verified for %d URL(s).", deps.Summary, verified),
	}
}
