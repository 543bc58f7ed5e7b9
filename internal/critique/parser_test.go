package critique

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/models"
)

func TestParseSectionsAndBullets(t *testing.T) {
	text := "## Bugs\n" +
		"- Null check missing on line 12\n" +
		"## Style\n" +
		"- Prefer snake_case on line 5\n"

	issues := Parse(text, 1)
	require.Len(t, issues, 2)

	assert.Equal(t, "Bugs", issues[0].Category)
	assert.Equal(t, "Null check missing on line 12", issues[0].Description)
	require.NotNil(t, issues[0].Line)
	assert.Equal(t, 12, *issues[0].Line)
	assert.Equal(t, 1, issues[0].IterationSeen)

	assert.Equal(t, "Style", issues[1].Category)
	require.NotNil(t, issues[1].Line)
	assert.Equal(t, 5, *issues[1].Line)
}

func TestParseContinuationLines(t *testing.T) {
	text := "## Bugs\n" +
		"- The loop counter overflows\n" +
		"  when input exceeds 2^31 on line 40\n" +
		"\n" +
		"  and the error is silently swallowed\n" +
		"- Second issue on line 41\n"

	issues := Parse(text, 2)
	require.Len(t, issues, 2)

	assert.Equal(t, "The loop counter overflows when input exceeds 2^31 on line 40 and the error is silently swallowed", issues[0].Description)
	require.NotNil(t, issues[0].Line)
	assert.Equal(t, 40, *issues[0].Line)
	assert.Equal(t, "Second issue on line 41", issues[1].Description)
}

func TestParseLineRangeUsesStart(t *testing.T) {
	issues := Parse("## Performance\n- Unnecessary copy in lines 5-9\n", 1)
	require.Len(t, issues, 1)
	require.NotNil(t, issues[0].Line)
	assert.Equal(t, 5, *issues[0].Line)
}

func TestParseLineRefCaseInsensitive(t *testing.T) {
	issues := Parse("## Bugs\n- Line: 7 has an off-by-one\n", 1)
	require.Len(t, issues, 1)
	require.NotNil(t, issues[0].Line)
	assert.Equal(t, 7, *issues[0].Line)
}

func TestParseBulletBeforeAnyHeader(t *testing.T) {
	issues := Parse("- Something is off on line 3\n", 1)
	require.Len(t, issues, 1)
	assert.Empty(t, issues[0].Category)
}

func TestParseNoLineReference(t *testing.T) {
	issues := Parse("## Style\n- Inconsistent naming throughout the file\n", 1)
	require.Len(t, issues, 1)
	assert.Nil(t, issues[0].Line)
}

func TestParseHeaderClosesOpenBullet(t *testing.T) {
	text := "## Bugs\n" +
		"- Dangling issue on line 2\n" +
		"## Security\n" +
		"- SQL injection risk on line 9\n"

	issues := Parse(text, 1)
	require.Len(t, issues, 2)
	assert.Equal(t, "Bugs", issues[0].Category)
	assert.Equal(t, "Security", issues[1].Category)
}

func TestParseAsteriskBullets(t *testing.T) {
	issues := Parse("## Bugs\n* Missing return on line 8\n", 1)
	require.Len(t, issues, 1)
	assert.Equal(t, "Missing return on line 8", issues[0].Description)
}

func TestParseEmptyAndNoIssueText(t *testing.T) {
	assert.Empty(t, Parse("", 1))
	assert.Empty(t, Parse("No issues found.", 1))
	assert.Empty(t, Parse("## Bugs\n\nNothing bulleted here.\n", 1))
}

func TestKeySetDropsUntrackedIssues(t *testing.T) {
	line := 12
	issues := []models.Issue{
		{Category: "Bugs", Description: "tracked", Line: &line},
		{Category: "", Description: "no category", Line: &line},
		{Category: "Style", Description: "no line"},
	}

	set := KeySet(issues, "src/app.py")
	require.Len(t, set, 1)

	key := models.IssueKey{FilePath: "src/app.py", Line: 12, Category: "Bugs"}
	assert.Equal(t, "tracked", set[key].Description)
}

func TestSuggestionsDedupes(t *testing.T) {
	text := "## Code Suggestions\n" +
		"```python\nx = 1\n```\n" +
		"```\nx = 1\n```\n" +
		"```go\ny := 2\n```\n"

	got := Suggestions(text)
	assert.Equal(t, []string{"x = 1", "y := 2"}, got)
}

func TestExtractCodePicksLargestBlock(t *testing.T) {
	response := "Here is the fix:\n" +
		"```python\nsmall\n```\n" +
		"```python\ndef main():\n    return 42\n```\n"

	got := ExtractCode(response, "fallback")
	assert.Equal(t, "def main():\n    return 42", got)
}

func TestExtractCodeFallsBack(t *testing.T) {
	assert.Equal(t, "original", ExtractCode("no code blocks here", "original"))
}
