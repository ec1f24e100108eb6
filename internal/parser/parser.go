package parser

import (
	"regexp"
	"strings"

	"github.com/varalys/skillvet/internal/types"
)

var (
	reURL         = regexp.MustCompile(`(?i)https?://[^\s"'<>\])+,;]+`)
	reURLTrailing = regexp.MustCompile(`[.)]+$`)
	reFrontMatter = regexp.MustCompile(`\A---\s*\n((?s:.*?))\n---`)
	reBody        = regexp.MustCompile(`\A---\s*\n(?s:.*?)\n---\s*\n((?s:.*))`)
	reKeyValue    = regexp.MustCompile(`^(\w[\w-]*):\s*(.*)`)
	reHeading     = regexp.MustCompile(`^#{1,3}\s+(.+)`)
	reListItem    = regexp.MustCompile("^[-*]\\s+`?(\\w[\\w._-]*)`?")
	rePermHeader  = regexp.MustCompile(`^permissions:\s*$`)
	reTopKey      = regexp.MustCompile(`^\w[\w-]*:`)
	rePermEntry   = regexp.MustCompile(`^-\s+(\w[\w_-]*):\s*["']?(.+?)["']?\s*$`)
	reKindPrefix  = regexp.MustCompile(`^\s*\w[\w_-]*\s*:`)
	reClaudeHead  = regexp.MustCompile(`(?im)^##\s+(tools|instructions|description)`)
	reTitle       = regexp.MustCompile(`(?m)^#\s+(.+)`)
)

// FrontMatter is the best-effort decoding of a skill's leading metadata
// block. Values are either string or []string.
type FrontMatter map[string]any

// String returns the scalar value of key, or the first list item.
func (fm FrontMatter) String(key string) string {
	switch v := fm[key].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// List returns key as a list; scalar values are split on commas.
func (fm FrontMatter) List(key string) []string {
	switch v := fm[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case string:
		return splitComma(v)
	}
	return nil
}

// Parse turns raw skill text into a ParsedSkill. It never fails: malformed
// metadata degrades to empty values and a warning.
func Parse(content string) *types.ParsedSkill {
	skill := &types.ParsedSkill{
		RawContent:          content,
		Sections:            ExtractSections(content),
		URLs:                ExtractURLs(content),
		DeclaredPermissions: ParseDeclaredPermissions(content),
		Format:              DetectFormat(content),
	}

	switch skill.Format {
	case types.FormatOpenClaw:
		if fm, ok := ParseFrontMatter(content); ok {
			skill.Name = fm.String("name")
			skill.Description = fm.String("description")
			skill.Tools = fm.List("tools")
			for _, p := range fm.List("permissions") {
				if !reKindPrefix.MatchString(p) {
					skill.Permissions = append(skill.Permissions, p)
				}
			}
			skill.Dependencies = fm.List("dependencies")
		}
		if m := reBody.FindStringSubmatch(content); m != nil {
			skill.Instructions = strings.TrimSpace(m[1])
		}
	case types.FormatClaude:
		if desc, ok := skill.Section("Description"); !ok || desc == "" {
			if len(skill.Sections) > 0 {
				skill.Name = skill.Sections[0].Heading
			}
		}
		skill.Description, _ = skill.Section("Description")
		skill.Instructions, _ = skill.Section("Instructions")
		tools, _ := skill.Section("Tools")
		skill.Tools = ExtractListItems(tools)
		perms, _ := skill.Section("Permissions")
		skill.Permissions = ExtractListItems(perms)
	default:
		if len(skill.Sections) > 0 {
			skill.Name = skill.Sections[0].Heading
		}
		if d, ok := skill.Section("Description"); ok {
			skill.Description = d
		} else if d, ok := skill.Section("About"); ok {
			skill.Description = d
		} else if len(skill.Sections) > 0 {
			skill.Description = skill.Sections[0].Body
		}
		skill.Instructions = content
	}

	if skill.Name == "" {
		skill.Name = fallbackName(content)
	}
	if len(strings.TrimSpace(skill.Description)) < 10 {
		skill.Warnings = append(skill.Warnings, "No description found in skill file")
	}
	return skill
}

func fallbackName(content string) string {
	if m := reTitle.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, l := range strings.Split(content, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			if len(t) > 100 {
				t = t[:100]
			}
			return t
		}
	}
	return "Unknown Skill"
}

// ParseFrontMatter decodes the leading --- block. It reports false when the
// document has none.
func ParseFrontMatter(content string) (FrontMatter, bool) {
	m := reFrontMatter.FindStringSubmatch(content)
	if m == nil || m[1] == "" {
		return nil, false
	}
	data := FrontMatter{}
	var (
		key   string
		inArr bool
		items []string
	)
	for _, line := range strings.Split(m[1], "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		if inArr {
			if strings.HasPrefix(t, "- ") {
				items = append(items, unquote(strings.TrimSpace(t[2:])))
				continue
			}
			data[key] = items
			items = nil
			inArr = false
		}
		kv := reKeyValue.FindStringSubmatch(t)
		if kv == nil {
			continue
		}
		key = kv[1]
		value := strings.TrimSpace(kv[2])
		switch {
		case value == "":
			inArr = true
		case value == "|" || value == ">":
			data[key] = ""
		case strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]"):
			var list []string
			for _, s := range strings.Split(value[1:len(value)-1], ",") {
				if s = unquote(strings.TrimSpace(s)); s != "" {
					list = append(list, s)
				}
			}
			data[key] = list
		default:
			data[key] = unquote(value)
		}
	}
	if inArr && key != "" {
		data[key] = items
	}
	return data, true
}

// ParseDeclaredPermissions reads `- kind: "justification"` entries under a
// front-matter permissions key, stopping at the next top-level key.
func ParseDeclaredPermissions(content string) []types.DeclaredPermission {
	m := reFrontMatter.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	var out []types.DeclaredPermission
	in := false
	for _, line := range strings.Split(m[1], "\n") {
		t := strings.TrimSpace(line)
		if rePermHeader.MatchString(t) {
			in = true
			continue
		}
		if !in {
			continue
		}
		if reTopKey.MatchString(t) && !strings.HasPrefix(t, "- ") {
			break
		}
		if strings.HasPrefix(t, "- ") {
			if e := rePermEntry.FindStringSubmatch(t); e != nil && e[2] != "" {
				out = append(out, types.DeclaredPermission{Kind: e[1], Justification: e[2]})
			}
		}
	}
	return out
}

// ExtractSections maps level 1-3 headings to their trimmed bodies in
// document order. A repeated heading keeps its first position and takes the
// later body.
func ExtractSections(content string) []types.Section {
	var (
		out     []types.Section
		index   = map[string]int{}
		heading string
		body    []string
	)
	flush := func() {
		if heading == "" {
			return
		}
		b := strings.TrimSpace(strings.Join(body, "\n"))
		if i, ok := index[heading]; ok {
			out[i].Body = b
			return
		}
		index[heading] = len(out)
		out = append(out, types.Section{Heading: heading, Body: b})
	}
	for _, line := range strings.Split(content, "\n") {
		if m := reHeading.FindStringSubmatch(line); m != nil {
			flush()
			heading = strings.TrimSpace(m[1])
			body = body[:0]
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}

// ExtractURLs returns absolute http(s) URLs with trailing punctuation
// stripped, deduplicated in first-seen order.
func ExtractURLs(content string) []string {
	var out []string
	seen := map[string]bool{}
	for _, u := range reURL.FindAllString(content, -1) {
		u = reURLTrailing.ReplaceAllString(u, "")
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// ExtractListItems returns the identifier at the start of each markdown
// bullet, with optional backticks removed.
func ExtractListItems(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if m := reListItem.FindStringSubmatch(line); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}

// DetectFormat picks the skill dialect from front matter shape or heading
// vocabulary.
func DetectFormat(content string) types.Format {
	if fm, ok := ParseFrontMatter(content); ok {
		_, hasName := fm["name"]
		_, hasTools := fm["tools"]
		if hasName || hasTools {
			return types.FormatOpenClaw
		}
	}
	lower := strings.ToLower(content)
	if reClaudeHead.MatchString(content) || strings.Contains(lower, "claude") || strings.Contains(lower, "anthropic") {
		return types.FormatClaude
	}
	return types.FormatGeneric
}

func unquote(s string) string {
	if s != "" && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	if s != "" && (s[len(s)-1] == '"' || s[len(s)-1] == '\'') {
		s = s[:len(s)-1]
	}
	return s
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
