// Package critique turns free-form reviewer output into structured issues
// and builds the prompts that produce it.
package critique

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/reviewloop/reviewloop/internal/models"
)

// lineRefRe matches "line 12", "lines 5-7", "Line: 3" etc. The first
// captured integer is the anchor; range ends are ignored.
var lineRefRe = regexp.MustCompile(`(?i)lines?\s*:?\s*(\d+)(?:\s*-\s*(\d+))?`)

// codeBlockRe captures the body of fenced code blocks.
var codeBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n(.*?)```")

// parser state over the critique's lines.
type parseState int

const (
	stateIdle parseState = iota
	stateInSection
	stateInBullet
)

// Parse extracts issues from markdown-shaped critique text. Section headers
// ("## Category") set the current category, bullet items start issues, and
// continuation lines are space-joined onto the open issue. Parse is total:
// malformed input yields a partial or empty list, never an error.
func Parse(text string, iteration int) []models.Issue {
	var issues []models.Issue
	state := stateIdle
	category := ""
	var pending strings.Builder

	flush := func() {
		if state != stateInBullet {
			return
		}
		desc := strings.TrimSpace(pending.String())
		pending.Reset()
		if desc == "" {
			return
		}
		issue := models.Issue{
			Category:      category,
			Description:   desc,
			IterationSeen: iteration,
		}
		if m := lineRefRe.FindStringSubmatch(desc); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				issue.Line = &n
			}
		}
		issues = append(issues, issue)
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t")
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "#"):
			// A header closes any open bullet and resets the category.
			flush()
			category = strings.Trim(trimmed, "# ")
			state = stateInSection
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			flush()
			pending.WriteString(strings.TrimSpace(trimmed[2:]))
			state = stateInBullet
		case state == stateInBullet && trimmed != "":
			// Continuation line: space-joined onto the open issue. Blank
			// lines are skipped; only the next bullet or header closes it.
			pending.WriteString(" ")
			pending.WriteString(trimmed)
		}
	}
	flush()

	return issues
}

// KeySet maps the trackable subset of issues (category and line present) to
// their identity keys within filePath. Untracked issues are dropped here but
// remain in the IterationRecord.
func KeySet(issues []models.Issue, filePath string) map[models.IssueKey]models.Issue {
	set := make(map[models.IssueKey]models.Issue, len(issues))
	for _, issue := range issues {
		if key, ok := issue.Key(filePath); ok {
			set[key] = issue
		}
	}
	return set
}

// Suggestions extracts fenced code blocks from critique text. The fixer
// prompt quotes them back to the model as concrete changes to apply.
func Suggestions(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range codeBlockRe.FindAllStringSubmatch(text, -1) {
		block := strings.TrimSpace(m[1])
		if block == "" || seen[block] {
			continue
		}
		seen[block] = true
		out = append(out, block)
	}
	return out
}

// ExtractCode pulls replacement file content out of a fixer reply: the
// largest fenced code block wins, on the assumption that the model returned
// the complete file. When no block is found, fallback is returned unchanged,
// which the loop's stall detection treats as "no change".
func ExtractCode(response, fallback string) string {
	var best string
	for _, m := range codeBlockRe.FindAllStringSubmatch(response, -1) {
		block := strings.TrimSpace(m[1])
		if len(block) > len(best) {
			best = block
		}
	}
	if best == "" {
		return fallback
	}
	return best
}
