package detectors

import (
	"fmt"
	"strings"

	"github.com/varalys/skillvet/internal/ctxparse"
	"github.com/varalys/skillvet/internal/types"
)

// Behavioral flags risky runtime behavior: unrestricted scope, system
// changes, unattended actions, install traps and credential exfil flows.
func (s *Suite) Behavioral(skill *types.ParsedSkill, cx *ctxparse.Context) (types.CategoryScore, error) {
	if err := s.check(); err != nil {
		return types.CategoryScore{}, err
	}
	content := cx.Content()
	var fs []types.Finding

	for _, r := range s.rules.Select("behavioral", "families") {
		for _, re := range r.Patterns {
			var adj ctxparse.Adjustment
			loc, ok := firstMatch(re, content, func(start, _ int) bool {
				adj = cx.Adjust(start)
				return adj.Multiplier != 0
			})
			if !ok {
				continue
			}
			fs = append(fs, patternFinding(types.CatBehavioral, "BEH", len(fs)+1, r, cx, loc[0], loc[1], adj))
		}
	}

	fs = s.prerequisiteTrap(skill, cx, fs)

	if anyMatch(s.rules.Select("behavioral", "exfil_read"), content) && anyMatch(s.rules.Select("behavioral", "exfil_send"), content) {
		fs = append(fs, types.Finding{
			ID:             fmt.Sprintf("BEH-EXFIL-FLOW-%d", len(fs)+1),
			Category:       types.CatBehavioral,
			Severity:       types.SevHigh,
			Title:          "Potential data exfiltration: skill reads credentials and sends them to external endpoints",
			Description:    "The skill contains patterns that actively read credential files and send data to external endpoints, suggesting a possible data exfiltration flow.",
			Evidence:       "Active credential reading and suspicious network exfiltration patterns both present",
			Deduction:      25,
			Recommendation: "Separate credential access from network operations. If both are needed, declare them explicitly and justify.",
			OwaspCategory:  types.ASST06,
		})
	}

	return Rescore(types.CatBehavioral, fs), nil
}

// prerequisiteTrap grades curl-pipe-to-shell install steps: documented
// threats and well-known installers in setup sections score nothing,
// anything else is a supply-chain risk.
func (s *Suite) prerequisiteTrap(skill *types.ParsedSkill, cx *ctxparse.Context, fs []types.Finding) []types.Finding {
	content := cx.Content()
	defense := ctxparse.IsSecurityDefenseSkill(skill)
	installers := s.rules.Select("behavioral", "known_installers")

	for _, r := range s.rules.Select("behavioral", "prerequisite_trap") {
		for _, re := range r.Patterns {
			var adj ctxparse.Adjustment
			loc, ok := firstMatch(re, content, func(start, _ int) bool {
				adj = cx.Adjust(start)
				return adj.Multiplier != 0
			})
			if !ok {
				continue
			}
			match := content[loc[0]:loc[1]]
			f := types.Finding{
				ID:            fmt.Sprintf("BEH-PREREQ-TRAP-%d", len(fs)+1),
				Category:      types.CatBehavioral,
				Evidence:      truncate(match, 200),
				LineNumber:    cx.LineNumber(loc[0]),
				OwaspCategory: types.ASST02,
			}
			known := anyMatch(installers, strings.ToLower(match))
			switch {
			case defense && cx.IsInThreatListingContext(loc[0]):
				f.Severity = types.SevLow
				f.Title = "Install pattern: download and execute from remote URL (in threat documentation)"
				f.Description = "The skill describes a download-and-execute pattern as part of security threat documentation."
				f.Recommendation = "Consider pinning the installer to a specific version or hash for supply chain verification."
			case known || inSetupSection(cx, loc[0], match):
				f.Severity = types.SevLow
				f.Title = "Install pattern: download and execute from remote URL (in setup section)"
				f.Description = "The skill contains a curl-pipe-to-shell pattern in its setup/prerequisites section."
				if known {
					f.Description = "The skill references a well-known installer script."
				}
				f.Recommendation = "Consider pinning the installer to a specific version or hash for supply chain verification."
			default:
				f.Severity = types.SevHigh
				if adj.Multiplier < 1 {
					f.Severity = types.SevMed
				}
				f.Deduction = scaled(25, adj.Multiplier)
				f.Title = "Suspicious install pattern: download and execute from remote URL"
				f.Description = "The skill instructs users to download and execute code from a remote URL, a common supply-chain attack vector."
				f.Recommendation = "Remove curl-pipe-to-shell patterns. Provide dependencies through safe, verifiable channels."
			}
			fs = append(fs, f)
		}
	}
	return fs
}
