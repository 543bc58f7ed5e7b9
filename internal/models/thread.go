package models

// ThreadStatus mirrors the remote discussion-thread states we care about.
// The remote API has more (pending, wontFix, closed); the engine only ever
// creates active threads and flips them to fixed.
type ThreadStatus string

const (
	ThreadStatusActive ThreadStatus = "active"
	ThreadStatusFixed  ThreadStatus = "fixed"
)

// Thread is an immutable snapshot of a remote discussion thread. Updates go
// through explicit store commands (create/comment/status); a fetched snapshot
// is never mutated and resent.
type Thread struct {
	ID       int
	FilePath string
	Line     int
	Status   ThreadStatus
}

// PullRequest holds the remote pull-request metadata the engine needs.
type PullRequest struct {
	ID           int
	RepositoryID string
	Repository   string
	Title        string
	SourceCommit string
	TargetCommit string
}

// PRIteration is one push iteration of a pull request.
type PRIteration struct {
	ID int
}

// FileChange is a changed file in a PR iteration with both content versions.
// OldContent is empty for newly added files.
type FileChange struct {
	Path       string
	ChangeType string
	OldContent string
	NewContent string
}
