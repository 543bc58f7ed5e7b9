package models

import "time"

// SessionOutcome represents how a review session ended.
type SessionOutcome string

const (
	SessionOutcomeResolved   SessionOutcome = "resolved"
	SessionOutcomeUnresolved SessionOutcome = "unresolved"
	SessionOutcomeStalled    SessionOutcome = "stalled"
	SessionOutcomeFailed     SessionOutcome = "failed"
)

// IterationRecord is an immutable snapshot of one critique round. The full
// sequence for a file is the session's audit trail.
type IterationRecord struct {
	Iteration         int            `json:"iteration"`
	Critique          string         `json:"critique"`
	Issues            []Issue        `json:"issues"`
	ContentBefore     string         `json:"content_before"`
	ContentAfter      string         `json:"content_after"`
	ResolvedSinceLast []IssueKey     `json:"resolved_since_last"`
	CreatedThreads    map[string]int `json:"created_threads"` // issue key string -> thread id
}

// ReviewSession is the stored record of one file's iterate-until-converged
// run. Sessions are never resumed; a fresh run always starts a new session.
type ReviewSession struct {
	ID                  string
	PullRequestID       int
	FilePath            string
	IterationsCompleted int
	AllResolved         bool
	Outcome             SessionOutcome
	FinalContent        string
	Error               string
	StartedAt           time.Time
	EndedAt             *time.Time
}

// SessionResult is what the convergence loop returns to its caller.
type SessionResult struct {
	SessionID           string            `json:"session_id"`
	PullRequestID       int               `json:"pull_request_id"`
	FilePath            string            `json:"file_path"`
	IterationsCompleted int               `json:"iterations_completed"`
	AllResolved         bool              `json:"all_resolved"`
	Outcome             SessionOutcome    `json:"outcome"`
	Iterations          []IterationRecord `json:"iterations"`
	FinalContent        string            `json:"final_content"`
	ThreadIDs           []int             `json:"threads"`
	Timestamp           time.Time         `json:"timestamp"`
}

// FileResult summarizes one file's session inside a batch run.
type FileResult struct {
	FilePath            string         `json:"file_path"`
	IterationsCompleted int            `json:"iterations_completed"`
	AllResolved         bool           `json:"all_issues_resolved"`
	Outcome             SessionOutcome `json:"outcome"`
	Error               string         `json:"error,omitempty"`
}

// BatchResult aggregates the per-file sessions of one pull request run.
type BatchResult struct {
	PullRequestID  int          `json:"pull_request_id"`
	Repository     string       `json:"repository"`
	Title          string       `json:"title"`
	FilesProcessed int          `json:"files_processed"`
	FileResults    []FileResult `json:"file_results"`
	Timestamp      time.Time    `json:"timestamp"`
}
