package detectors

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/varalys/skillvet/internal/ctxparse"
	"github.com/varalys/skillvet/internal/rules"
	"github.com/varalys/skillvet/internal/types"
)

// URL classes assigned by ClassifyURL.
const (
	URLTrusted = "trusted"
	URLRaw     = "raw"
	URLIP      = "ip"
	URLData    = "data"
	URLUnknown = "unknown"
)

const unknownURLCap = 15

var (
	reIPHost         = regexp.MustCompile(`^(?:\d{1,3}\.){3}\d{1,3}$`)
	rePrivateHost    = regexp.MustCompile(`^(?:127\.|10\.|172\.(?:1[6-9]|2\d|3[01])\.|192\.168\.|0\.0\.0\.0|localhost)`)
	reScheme         = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	reThreatTableRow = regexp.MustCompile(`(?i)\b(?:critical|high|risk|dangerous|pattern|severity|pipe.to.shell)\b`)
	reNameTokens     = regexp.MustCompile(`[^a-z0-9]+`)
)

// SplitURL returns the lowercased host and the path (with query) of a URL,
// dropping the scheme, credentials and port.
func SplitURL(u string) (host, rest string) {
	s := reScheme.ReplaceAllString(u, "")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		host, rest = s[:i], s[i:]
	} else {
		host = s
	}
	if i := strings.LastIndexByte(host, '@'); i >= 0 {
		host = host[i+1:]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host), rest
}

// ClassifyURL sorts a URL into trusted, raw-content, IP, data or unknown and
// returns the base deduction for that class.
func (s *Suite) ClassifyURL(u string) (string, int) {
	if strings.HasPrefix(strings.ToLower(u), "data:") {
		return URLData, 20
	}
	host, rest := SplitURL(u)
	if reIPHost.MatchString(host) {
		if rePrivateHost.MatchString(host) {
			return URLTrusted, 0
		}
		return URLIP, 20
	}
	if host == "github.com" && strings.Contains(rest, "/raw/") {
		return URLRaw, 10
	}
	if anyMatch(s.rules.Select("dependencies", "trusted_domains"), host) {
		return URLTrusted, 0
	}
	if anyMatch(s.rules.Select("dependencies", "raw_domains"), host) {
		return URLRaw, 10
	}
	return URLUnknown, 5
}

// Dependencies classifies every referenced URL, caps the cumulative penalty
// for unknown domains and grades download-and-execute instructions.
func (s *Suite) Dependencies(skill *types.ParsedSkill, cx *ctxparse.Context) (types.CategoryScore, error) {
	if err := s.check(); err != nil {
		return types.CategoryScore{}, err
	}
	content := cx.Content()
	defense := ctxparse.IsSecurityDefenseSkill(skill)
	var fs []types.Finding
	unknownTotal := 0

	for _, u := range skill.URLs {
		class, ded := s.ClassifyURL(u)
		if class == URLTrusted {
			continue
		}
		if class == URLUnknown {
			switch {
			case unknownTotal >= unknownURLCap:
				ded = 0
			case unknownURLCap-unknownTotal < ded:
				ded = unknownURLCap - unknownTotal
			}
			unknownTotal += 5
		}
		var sev types.Severity
		var label, what, rec string
		switch class {
		case URLIP:
			sev, label, what = types.SevHigh, "Direct IP address", "a direct IP address"
			rec = "Replace direct IP addresses with proper domain names. IP-based URLs bypass DNS-based security controls."
		case URLData:
			sev, label, what = types.SevHigh, "Data URL", "a data: URL"
			rec = "Verify that this external dependency is trustworthy and necessary."
		case URLRaw:
			sev, label, what = types.SevMed, "Raw content URL", "a raw content hosting service"
			rec = "Use official package registries instead of raw content URLs. Raw URLs can be changed without notice."
		default:
			sev, label, what = types.SevLow, "Unknown external", "an unknown external domain"
			rec = "Verify that this external dependency is trustworthy and necessary."
		}
		suffix := ""
		if defense && class != URLData {
			if idx := strings.Index(content, u); idx >= 0 && cx.IsInThreatListingContext(idx) {
				ded, sev, suffix = 0, types.SevLow, " (threat documentation)"
			}
		}
		f := types.Finding{
			ID:             fmt.Sprintf("DEP-URL-%d", len(fs)+1),
			Category:       types.CatDependencies,
			Severity:       sev,
			Title:          label + " reference" + suffix,
			Description:    fmt.Sprintf("The skill references %s which is classified as %s risk.", what, sev),
			Evidence:       truncate(u, 200),
			Deduction:      ded,
			Recommendation: rec,
			OwaspCategory:  types.ASST04,
		}
		if idx := strings.Index(content, u); idx >= 0 {
			f.LineNumber = cx.LineNumber(idx)
		}
		fs = append(fs, f)
	}

	fs = s.downloadExecute(skill, cx, defense, fs)

	if n := len(skill.URLs); n > 5 {
		fs = append(fs, types.Finding{
			ID:             "DEP-MANY-URLS",
			Category:       types.CatDependencies,
			Severity:       types.SevInfo,
			Title:          fmt.Sprintf("Many external URLs referenced (%d)", n),
			Description:    fmt.Sprintf("The skill references %d external URLs. While not inherently dangerous, many external dependencies increase the attack surface.", n),
			Evidence:       "URLs: " + strings.Join(skill.URLs[:5], ", ") + "...",
			Recommendation: "Minimize external dependencies to reduce supply chain risk.",
			OwaspCategory:  types.ASST04,
		})
	}

	return Rescore(types.CatDependencies, fs), nil
}

func (s *Suite) downloadExecute(skill *types.ParsedSkill, cx *ctxparse.Context, defense bool, fs []types.Finding) []types.Finding {
	content := cx.Content()
	installers := s.rules.Select("dependencies", "known_installers")
	threatVocab := s.rules.Select("dependencies", "threat_context")

	for _, r := range s.rules.Select("dependencies", "download_execute") {
		for _, re := range r.Patterns {
			loc, ok := firstMatch(re, content, func(start, _ int) bool {
				return cx.Adjust(start).Multiplier != 0
			})
			if !ok {
				continue
			}
			match := content[loc[0]:loc[1]]
			legit := anyMatch(installers, strings.ToLower(match)) || inSetupSection(cx, loc[0], match)
			threat := isThreatDescription(cx, loc[0], defense, threatVocab)

			f := types.Finding{
				ID:            fmt.Sprintf("DEP-DL-EXEC-%d", len(fs)+1),
				Category:      types.CatDependencies,
				Evidence:      truncate(match, 200),
				LineNumber:    cx.LineNumber(loc[0]),
				OwaspCategory: r.Taxonomy,
			}
			switch {
			case legit || threat:
				f.Severity = types.SevLow
				if legit {
					f.Title = "Download-and-execute pattern detected (known installer)"
					f.Description = "The skill references a well-known installer script in its setup instructions."
				} else {
					f.Title = "Download-and-execute pattern detected (in threat documentation)"
					f.Description = "The skill describes a download-and-execute pattern as part of threat documentation."
				}
				f.Recommendation = "Consider documenting the exact version or hash of the installer for supply chain verification."
			case cx.IsInsideCodeBlock(loc[0]) && strings.Contains(match, "https://") && !reRawIPURL.MatchString(match):
				f.Severity = types.SevMed
				f.Deduction = 8
				f.Title = "Download-and-execute pattern detected (inside code block)"
				f.Description = "The skill contains a download-and-execute pattern inside a code block. Verify the URL is trustworthy."
				f.Recommendation = "Pin the installer to a specific version or hash. Consider bundling dependencies instead."
			default:
				f.Severity = r.Sev
				f.Deduction = r.Deduction
				f.Title = r.Name + " detected"
				f.Description = "The skill contains instructions to download and execute external code, which is a severe supply chain risk."
				f.Recommendation = r.Recommendation
			}
			fs = append(fs, f)
		}
	}
	return fs
}

func isThreatDescription(cx *ctxparse.Context, off int, defense bool, vocab []*rules.Compiled) bool {
	if defense && cx.IsInThreatListingContext(off) {
		return true
	}
	line := cx.Line(off)
	if reHarmfulTableRow.MatchString(line) && reThreatTableRow.MatchString(line) {
		return true
	}
	from := off - 500
	if from < 0 {
		from = 0
	}
	return anyMatch(vocab, cx.Content()[from:off])
}

// SelfBaseDomains returns the registrable base domains (sld.tld) of the
// skill's URLs whose second-level label also appears in the skill's own name
// or description, e.g. "acme.io" for an "Acme deploy" skill.
func SelfBaseDomains(skill *types.ParsedSkill) []string {
	tokens := map[string]bool{}
	for _, t := range reNameTokens.Split(strings.ToLower(skill.Name+" "+skill.Description), -1) {
		if len(t) >= 3 {
			tokens[t] = true
		}
	}
	var out []string
	seen := map[string]bool{}
	for _, u := range skill.URLs {
		base, ok := BaseDomain(u)
		if !ok || seen[base] {
			continue
		}
		if tokens[strings.SplitN(base, ".", 2)[0]] {
			seen[base] = true
			out = append(out, base)
		}
	}
	return out
}

// BaseDomain returns the last two labels of a URL host, skipping localhost
// and IP literals.
func BaseDomain(u string) (string, bool) {
	host, _ := SplitURL(u)
	host = strings.TrimPrefix(strings.TrimSuffix(host, "."), "www.")
	if host == "" || host == "localhost" || reIPHost.MatchString(host) || strings.Contains(host, ":") {
		return "", false
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return "", false
	}
	return strings.Join(labels[len(labels)-2:], "."), true
}
