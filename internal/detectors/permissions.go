package detectors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/varalys/skillvet/internal/ctxparse"
	"github.com/varalys/skillvet/internal/types"
)

var reTokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

var tierDeduction = map[types.Severity]int{
	types.SevCritical: 30,
	types.SevHigh:     15,
	types.SevMed:      8,
	types.SevLow:      2,
}

var limitedScopeWords = []string{
	"calculator", "spell", "check", "format", "lint", "simple", "basic", "math", "text",
	"convert", "translate", "weather", "time", "date", "clock", "counter", "hello", "greeting",
}

var broadCapabilities = []string{
	"exec", "shell", "sudo", "admin", "network_unrestricted", "env_access", "delete", "file_write",
}

// permissionTier classifies a permission string by its tokens. ok is false
// when no tier keyword applies.
func permissionTier(perm string) (types.Severity, bool) {
	tok := map[string]bool{}
	for _, t := range reTokenSplit.Split(strings.ToLower(perm), -1) {
		if t != "" {
			tok[t] = true
		}
	}
	switch {
	case tok["exec"] || tok["shell"] || tok["sudo"] || tok["admin"]:
		return types.SevCritical, true
	case tok["network"] && tok["unrestricted"],
		tok["env"] && tok["access"],
		tok["delete"],
		tok["write"] && !tok["file"]:
		return types.SevHigh, true
	case tok["network"] && tok["restricted"],
		tok["file"] && tok["write"],
		tok["api"] && tok["access"]:
		return types.SevMed, true
	case tok["search"], tok["read"]:
		return types.SevLow, true
	}
	return "", false
}

func requestedPermissions(skill *types.ParsedSkill) []string {
	var out []string
	seen := map[string]bool{}
	for _, list := range [][]string{skill.Permissions, skill.Tools} {
		for _, p := range list {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func isLimitedScope(skill *types.ParsedSkill) bool {
	text := strings.ToLower(skill.Name + " " + skill.Description)
	for _, w := range limitedScopeWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Permissions tiers every requested permission and tool, flags broad
// capabilities on narrow-purpose skills and excessive permission counts.
func (s *Suite) Permissions(skill *types.ParsedSkill, _ *ctxparse.Context) (types.CategoryScore, error) {
	if err := s.check(); err != nil {
		return types.CategoryScore{}, err
	}
	perms := requestedPermissions(skill)
	var fs []types.Finding

	for _, p := range perms {
		tier, ok := permissionTier(p)
		if !ok {
			fs = append(fs, types.Finding{
				ID:             fmt.Sprintf("PERM-UNKNOWN-%d", len(fs)+1),
				Category:       types.CatPermissions,
				Severity:       types.SevInfo,
				Title:          "Unrecognized permission/tool: " + p,
				Description:    "The skill references a permission/tool string that SkillVet does not recognize. This may be harmless, but it reduces the scanner's ability to reason about actual privilege.",
				Evidence:       "Permission/tool: " + p,
				Recommendation: "Use canonical permission names for your framework/runtime, or document what this permission/tool does and why it is needed.",
				OwaspCategory:  types.ASST08,
			})
			continue
		}
		rec := fmt.Sprintf("Consider whether %q is necessary for the skill's stated functionality.", p)
		tax := types.ASST08
		if tier == types.SevCritical {
			rec = fmt.Sprintf("Remove the %q permission unless absolutely required. Critical permissions grant extensive system access.", p)
		}
		if tier == types.SevCritical || tier == types.SevHigh {
			tax = types.ASST03
		}
		fs = append(fs, types.Finding{
			ID:             fmt.Sprintf("PERM-%d", len(fs)+1),
			Category:       types.CatPermissions,
			Severity:       tier,
			Title:          fmt.Sprintf("%s-risk permission: %s", titleCase(string(tier)), p),
			Description:    fmt.Sprintf("The skill requests the %q permission which is classified as %s risk.", p, tier),
			Evidence:       "Permission: " + p,
			Deduction:      tierDeduction[tier],
			Recommendation: rec,
			OwaspCategory:  tax,
		})
	}

	if isLimitedScope(skill) {
		for _, p := range perms {
			if !containsAny(p, broadCapabilities) {
				continue
			}
			fs = append(fs, types.Finding{
				ID:             fmt.Sprintf("PERM-MISMATCH-%d", len(fs)+1),
				Category:       types.CatPermissions,
				Severity:       types.SevHigh,
				Title:          fmt.Sprintf("Permission-purpose mismatch: %q on limited-scope skill", p),
				Description:    fmt.Sprintf("The skill %q appears to be limited in scope but requests %q which is unusual for its stated purpose.", skill.Name, p),
				Evidence:       fmt.Sprintf("Skill: %q (%s...) requests %q", skill.Name, truncate(skill.Description, 80), p),
				Deduction:      15,
				Recommendation: fmt.Sprintf("Review whether %q is truly needed for a %s.", p, strings.ToLower(skill.Name)),
				OwaspCategory:  types.ASST03,
			})
		}
	}

	if len(perms) > 5 {
		fs = append(fs, types.Finding{
			ID:             "PERM-EXCESSIVE",
			Category:       types.CatPermissions,
			Severity:       types.SevInfo,
			Title:          fmt.Sprintf("Excessive number of permissions (%d)", len(perms)),
			Description:    fmt.Sprintf("The skill requests %d distinct permissions. Consider whether all are necessary.", len(perms)),
			Evidence:       "Permissions: " + strings.Join(perms, ", "),
			Recommendation: "Apply the principle of least privilege - only request permissions the skill actually needs.",
			OwaspCategory:  types.ASST08,
		})
	}

	return Rescore(types.CatPermissions, fs), nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
