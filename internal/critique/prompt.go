package critique

import (
	"fmt"
	"strings"
)

// CriticSystemPrompt is the system message for the reviewer model.
func CriticSystemPrompt() string {
	var b strings.Builder

	b.WriteString("You are an expert code reviewer with years of experience in software development.\n")
	b.WriteString("Your job is to review code changes critically and thoroughly: identify potential bugs,\n")
	b.WriteString("security issues, and performance problems, and suggest improvements to code quality,\n")
	b.WriteString("readability, and maintainability.\n\n")

	b.WriteString("Format your review as markdown:\n")
	b.WriteString("- Use '## <Category>' section headers (for example: ## Bugs, ## Security, ## Performance, ## Code Quality)\n")
	b.WriteString("- List each finding as a '- ' bullet under its section\n")
	b.WriteString("- Reference the exact location with 'line N' (or 'lines N-M') in every bullet\n")
	b.WriteString("- Put concrete replacement code in a '## Code Suggestions' section using fenced code blocks\n")
	b.WriteString("- If the code has no issues, respond with 'No issues found.' and nothing else\n")

	return b.String()
}

// BuildCriticPrompt builds the user prompt asking for a review of the change
// from oldContent to newContent.
func BuildCriticPrompt(filePath, oldContent, newContent string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review the changes made to the file: %s\n\n", filePath)

	b.WriteString("OLD VERSION:\n```\n")
	if oldContent == "" {
		b.WriteString("This is a new file.")
	} else {
		b.WriteString(oldContent)
	}
	b.WriteString("\n```\n\n")

	b.WriteString("NEW VERSION:\n```\n")
	b.WriteString(newContent)
	b.WriteString("\n```\n\n")

	b.WriteString("Provide a thorough code review addressing code quality, potential bugs or edge cases,\n")
	b.WriteString("security concerns, performance, and adherence to best practices.\n")

	return b.String()
}

// FixerSystemPrompt is the system message for the model applying fixes.
func FixerSystemPrompt() string {
	var b strings.Builder

	b.WriteString("You are an expert software developer. You apply reviewer feedback to a file and\n")
	b.WriteString("return the complete improved file. Maintain the overall structure and functionality\n")
	b.WriteString("while addressing the reviewer's concerns. Return the full file content in a single\n")
	b.WriteString("fenced code block, with no commentary outside the block.\n")

	return b.String()
}

// BuildFixerPrompt builds the user prompt asking the model to apply a
// critique to the current file content. Fenced suggestion blocks lifted from
// the critique are quoted individually so the model sees them as concrete
// changes rather than prose.
func BuildFixerPrompt(filePath, content, critiqueText string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Improve the following file based on reviewer feedback.\n\nFile path: %s\n\n", filePath)

	b.WriteString("Current content:\n```\n")
	b.WriteString(content)
	b.WriteString("\n```\n\n")

	b.WriteString("Reviewer feedback:\n")
	b.WriteString(critiqueText)
	b.WriteString("\n")

	if suggestions := Suggestions(critiqueText); len(suggestions) > 0 {
		b.WriteString("\nThe reviewer suggested the following concrete changes:\n")
		for i, s := range suggestions {
			fmt.Fprintf(&b, "\nSuggestion %d:\n```\n%s\n```\n", i+1, s)
		}
	}

	b.WriteString("\nApply these suggestions and return the complete improved file.\n")

	return b.String()
}
