package ctxparse

import (
	"regexp"
	"strings"

	"github.com/varalys/skillvet/internal/types"
)

var (
	reDefenseNameDesc = regexp.MustCompile(`(?i)\b(?:security\s+(?:scan|audit|check|monitor|guard|shield|analyz|validat|suite)|prompt\s+(?:guard|inject|defense|detect)|threat\s+(?:detect|monitor)|injection\s+(?:defense|detect|prevent|scanner)|skill\s+(?:audit|scan|vet)|pattern\s+detect|command\s+sanitiz|(?:guard|bastion|warden|heimdall|sentinel|watchdog)\b)`)
	reDefenseName     = regexp.MustCompile(`(?i)^(?:security|guard|sentinel|watchdog|scanner|firewall|shield|defender|warden)$`)
	reDefenseHead     = regexp.MustCompile(`(?i)\b(?:security\s+(?:analy|scan|audit)|detect\s+(?:malicious|injection|exfiltration)|adversarial\s+(?:security|analysis)|prompt\s+injection\s+(?:defense|detect|prevent))\b`)

	reTableRow       = regexp.MustCompile(`^\s*\|.*\|`)
	reThreatTableVoc = regexp.MustCompile(`(?i)\b(?:pattern|indicator|type|category|technique|example|critical|high|warning|risk|dangerous|override|jailbreak|injection|exfiltration|attack)\b`)
	reDetectBullet   = regexp.MustCompile(`(?i)^\s*[-*•]\s*(?:["'“”]|pattern|detect|flag|block|scan\s+for|look\s+for|check\s+for)`)
	reBoldLabelQuote = regexp.MustCompile(`^\s*[-*•]\s*\*\*[^*]+\*\*\s*[:—–-]\s*["'“”]`)
	reBoldLabelColon = regexp.MustCompile(`^\s*[-*•]\s*\*\*[^*]*:\*\*`)
	reExampleLine    = regexp.MustCompile(`(?i)\b(?:example|evidence|if\s+.*says?|indicator|caption|sample|test\s+case|detection)\b`)
	reDetectionVocab = regexp.MustCompile(`(?i)\b(?:detect(?:s|ion|ed)?|scan(?:s|ning)?|flag(?:s|ged)?|block(?:s|ed)?|watch\s+for|monitor(?:s|ing)?|reject(?:s|ed)?|filter(?:s|ed)?|high-confidence\s+injection|attack\s+(?:pattern|vector|coverage|surface)|common\s+(?:attack|pattern)|malicious\s+(?:pattern|user|content)|example\s+indicator|dangerous\s+command|threat\s+(?:pattern|categor)|what\s+(?:it|we)\s+detect|prompt(?:s|ed)?\s+that\s+attempt|direct\s+injection|injection\s+(?:type|categor|pattern|vector)|check\s+(?:for|url)|ssrf|threat\s+detected)\b`)
	reHeading        = regexp.MustCompile(`(?m)^#{1,4}\s+.+$`)
	reThreatHeading  = regexp.MustCompile(`\b(?:detect|ssrf|injection|threat|attack|security|example|exfiltrat|protect|dangerous)\b`)
)

// IsSecurityDefenseSkill reports whether the skill presents itself as a
// security or defense tool. The signal comes from author-controlled text and
// can be spoofed; callers only use it together with IsInThreatListingContext.
func IsSecurityDefenseSkill(skill *types.ParsedSkill) bool {
	desc := strings.ToLower(skill.Name + " " + skill.Description)
	if reDefenseNameDesc.MatchString(desc) {
		return true
	}
	if reDefenseName.MatchString(strings.ToLower(skill.Name)) {
		return true
	}
	head := skill.RawContent
	if len(head) > 500 {
		head = head[:500]
	}
	return reDefenseHead.MatchString(strings.ToLower(head))
}

// IsInThreatListingContext reports whether the match at off looks like an
// educational listing of threat patterns: threat tables, "detect"/"block"
// bullets, example lines, or text right after detection vocabulary or a
// detection-themed heading.
func (c *Context) IsInThreatListingContext(off int) bool {
	lineStart, _ := c.lineBounds(off)
	line := c.Line(off)

	if reTableRow.MatchString(line) && reThreatTableVoc.MatchString(line) {
		return true
	}
	if reDetectBullet.MatchString(line) || reBoldLabelQuote.MatchString(line) || reBoldLabelColon.MatchString(line) {
		return true
	}
	if reExampleLine.MatchString(line) {
		return true
	}

	if reDetectionVocab.MatchString(c.PrecedingLines(lineStart, 500, 5)) {
		return true
	}

	if h := c.LastHeadingBefore(off, 1000); h != "" && reThreatHeading.MatchString(strings.ToLower(h)) {
		return true
	}
	return false
}

// PrecedingLines returns the last n lines found within window bytes before
// pos, joined with spaces.
func (c *Context) PrecedingLines(pos, window, n int) string {
	from := pos - window
	if from < 0 {
		from = 0
	}
	lines := strings.Split(c.content[from:pos], "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " ")
}

// LastHeadingBefore returns the last markdown heading (levels 1-4) that
// starts within window bytes before off, or "".
func (c *Context) LastHeadingBefore(off, window int) string {
	from := off - window
	if from < 0 {
		from = 0
	}
	hs := reHeading.FindAllString(c.content[from:off], -1)
	if len(hs) == 0 {
		return ""
	}
	return hs[len(hs)-1]
}
