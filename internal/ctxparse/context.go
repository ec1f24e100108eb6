package ctxparse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Range is an inclusive byte range within the skill content.
type Range struct {
	Start int
	End   int
}

func (r Range) contains(off int) bool { return off >= r.Start && off <= r.End }

// Context holds lookup structures derived once from raw skill content and
// shared read-only by every analyzer.
type Context struct {
	content      string
	codeBlocks   []Range
	safetyRanges []Range
	lineOffsets  []int
}

// Adjustment is the contextual weight applied to a pattern match.
// A zero Multiplier suppresses the match entirely.
type Adjustment struct {
	Multiplier float64
	Reason     string
}

var (
	reFence        = regexp.MustCompile("(?m)^(```|~~~).*$")
	reInlineCode   = regexp.MustCompile("`[^`\n]+`")
	reSafetyHeader = regexp.MustCompile(`(?im)^#{2,4}\s+(?:safety\s+boundar|limitations?\b|restrictions?\b|constraints?\b|prohibited|forbidden|do\s+not\s+(?:use|do)|don'?t\s+(?:use|do)|must\s+not|will\s+not|what\s+(?:this\s+skill\s+)?(?:does|should)\s+not)`)
	reNegationTail = regexp.MustCompile(`(?i)(?:do\s+not|don['’]?t|should\s+not|must\s+not|will\s+not|cannot|never|no\s+)\s*$`)
)

// Build computes code-block ranges, safety-section ranges and the line
// offset table for content.
func Build(content string) *Context {
	c := &Context{content: content, lineOffsets: []int{0}}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			c.lineOffsets = append(c.lineOffsets, i+1)
		}
	}

	open := -1
	for _, m := range reFence.FindAllStringIndex(content, -1) {
		if open < 0 {
			open = m[0]
			continue
		}
		c.codeBlocks = append(c.codeBlocks, Range{Start: open, End: m[1]})
		open = -1
	}
	for _, m := range reInlineCode.FindAllStringIndex(content, -1) {
		c.codeBlocks = append(c.codeBlocks, Range{Start: m[0], End: m[1]})
	}

	for _, m := range reSafetyHeader.FindAllStringIndex(content, -1) {
		level := 0
		for level < len(content)-m[0] && content[m[0]+level] == '#' {
			level++
		}
		end := len(content)
		next := regexp.MustCompile(`(?m)^#{1,` + strconv.Itoa(level) + `}\s+`)
		if loc := next.FindStringIndex(content[m[1]:]); loc != nil {
			end = m[1] + loc[0]
		}
		c.safetyRanges = append(c.safetyRanges, Range{Start: m[0], End: end})
	}
	return c
}

// Content returns the text the context was built from.
func (c *Context) Content() string { return c.content }

// CodeBlocks returns the fenced and inline code ranges.
func (c *Context) CodeBlocks() []Range { return c.codeBlocks }

// SafetyRanges returns the safety-boundary section ranges.
func (c *Context) SafetyRanges() []Range { return c.safetyRanges }

// IsInsideCodeBlock reports whether off falls inside fenced or inline code.
func (c *Context) IsInsideCodeBlock(off int) bool {
	for _, r := range c.codeBlocks {
		if r.contains(off) {
			return true
		}
	}
	return false
}

// IsInsideSafetySection reports whether off falls under a safety-boundary heading.
func (c *Context) IsInsideSafetySection(off int) bool {
	for _, r := range c.safetyRanges {
		if r.contains(off) {
			return true
		}
	}
	return false
}

// IsPrecededByNegation reports whether the text between the start of the
// line and off ends with a negation cue such as "do not" or "never".
func (c *Context) IsPrecededByNegation(off int) bool {
	start, _ := c.lineBounds(off)
	return reNegationTail.MatchString(c.content[start:off])
}

// Adjust applies negation, code-block and safety-section rules in that order.
func (c *Context) Adjust(off int) Adjustment {
	if c.IsPrecededByNegation(off) {
		return Adjustment{Multiplier: 0, Reason: "preceded by negation"}
	}
	if c.IsInsideCodeBlock(off) {
		return Adjustment{Multiplier: 0.3, Reason: "inside code block"}
	}
	// safety sections keep full weight; headings are author-controlled
	if c.IsInsideSafetySection(off) {
		return Adjustment{Multiplier: 1, Reason: "inside safety boundary section"}
	}
	return Adjustment{Multiplier: 1}
}

// LineNumber maps a byte offset to its 1-based line.
func (c *Context) LineNumber(off int) int {
	i := sort.Search(len(c.lineOffsets), func(i int) bool { return c.lineOffsets[i] > off })
	if i == 0 {
		return 1
	}
	return i
}

// Line returns the full line containing off, without its newline.
func (c *Context) Line(off int) string {
	start, end := c.lineBounds(off)
	return c.content[start:end]
}

func (c *Context) lineBounds(off int) (int, int) {
	if off > len(c.content) {
		off = len(c.content)
	}
	if off < 0 {
		off = 0
	}
	start := 0
	if off > 0 {
		start = strings.LastIndexByte(c.content[:off], '\n') + 1
	}
	end := strings.IndexByte(c.content[off:], '\n')
	if end < 0 {
		end = len(c.content)
	} else {
		end += off
	}
	return start, end
}
