package critique

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCriticPrompt(t *testing.T) {
	prompt := BuildCriticPrompt("src/app.py", "old code", "new code")

	assert.Contains(t, prompt, "src/app.py")
	assert.Contains(t, prompt, "OLD VERSION")
	assert.Contains(t, prompt, "old code")
	assert.Contains(t, prompt, "NEW VERSION")
	assert.Contains(t, prompt, "new code")
}

func TestBuildCriticPromptNewFile(t *testing.T) {
	prompt := BuildCriticPrompt("src/app.py", "", "new code")
	assert.Contains(t, prompt, "This is a new file.")
}

func TestBuildFixerPromptQuotesSuggestions(t *testing.T) {
	critiqueText := "## Bugs\n- Broken on line 3\n## Code Suggestions\n```python\nfixed = True\n```\n"
	prompt := BuildFixerPrompt("src/app.py", "content here", critiqueText)

	assert.Contains(t, prompt, "src/app.py")
	assert.Contains(t, prompt, "content here")
	assert.Contains(t, prompt, "Suggestion 1:")
	assert.Contains(t, prompt, "fixed = True")
}

func TestBuildFixerPromptNoSuggestions(t *testing.T) {
	prompt := BuildFixerPrompt("src/app.py", "content", "## Bugs\n- Broken on line 3\n")
	assert.NotContains(t, prompt, "Suggestion 1:")
}

func TestSystemPromptsMentionFormat(t *testing.T) {
	assert.Contains(t, CriticSystemPrompt(), "No issues found.")
	assert.Contains(t, FixerSystemPrompt(), "fenced code block")
}
