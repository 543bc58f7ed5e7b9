package models

import "fmt"

// Issue is a single critique finding: a category (review section), a
// free-text description, and an optional line anchor.
type Issue struct {
	Category      string `json:"category"`
	Description   string `json:"description"`
	Line          *int   `json:"line,omitempty"`
	IterationSeen int    `json:"iteration_seen"`
}

// Key returns the identity key for this issue within the given file.
// Issues without a category or a resolvable line number have no identity
// and cannot be tracked across iterations; they still appear in the audit
// trail. The second return value reports whether a key exists.
func (i Issue) Key(filePath string) (IssueKey, bool) {
	if i.Category == "" || i.Line == nil {
		return IssueKey{}, false
	}
	return IssueKey{FilePath: filePath, Line: *i.Line, Category: i.Category}, true
}

// IssueKey identifies an issue across review iterations. Two issues are the
// same iff their keys match exactly; description text may change freely.
type IssueKey struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Category string `json:"category"`
}

// String renders the key in file:line:category form.
func (k IssueKey) String() string {
	return fmt.Sprintf("%s:%d:%s", k.FilePath, k.Line, k.Category)
}
