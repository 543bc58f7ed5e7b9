// Package review implements the iterative review-convergence loop: critique,
// issue reconciliation, remote thread bookkeeping, and the bounded
// fix-and-recheck cycle.
package review

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/reviewloop/reviewloop/internal/audit"
	"github.com/reviewloop/reviewloop/internal/critique"
	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/output"
	"github.com/reviewloop/reviewloop/internal/store"
)

// ErrInvalidMaxIterations is returned before the loop starts when the
// configured iteration bound is not a positive integer.
var ErrInvalidMaxIterations = errors.New("max_iterations must be a positive integer")

// maxFileSize is the largest file content the batch processor will review.
const maxFileSize = 50000

// Critic produces markdown-shaped critique text for a file change.
type Critic interface {
	Critique(ctx context.Context, filePath, oldContent, newContent string) (string, error)
}

// Fixer produces replacement file content from a critique. Returning the
// input unchanged is a valid degrade-gracefully response; the loop's stall
// detection handles it.
type Fixer interface {
	Fix(ctx context.Context, filePath, content, critiqueText string) (string, error)
}

// PullRequests is the remote PR metadata API the batch processor consumes.
type PullRequests interface {
	GetPullRequest(ctx context.Context, pullRequestID int) (*models.PullRequest, error)
	ChangedFiles(ctx context.Context, pr *models.PullRequest) ([]models.FileChange, error)
}

// Config holds convergence-loop configuration.
type Config struct {
	MaxIterations int
	PostComments  bool
	Timeout       time.Duration
}

// DefaultConfig returns the default loop config, reading from viper when
// available.
func DefaultConfig() Config {
	maxIterations := 3
	if viper.IsSet("review.max_iterations") {
		maxIterations = viper.GetInt("review.max_iterations")
	}

	postComments := true
	if viper.IsSet("review.post_comments") {
		postComments = viper.GetBool("review.post_comments")
	}

	timeout := viper.GetDuration("review.timeout")
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return Config{
		MaxIterations: maxIterations,
		PostComments:  postComments,
		Timeout:       timeout,
	}
}

// Validate rejects configurations the loop must not start with.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidMaxIterations, c.MaxIterations)
	}
	return nil
}

// Engine drives review sessions. All collaborators are injected; tests use
// fakes and spies.
type Engine struct {
	critic  Critic
	fixer   Fixer
	threads ThreadStore
	prs     PullRequests
	auditor *audit.Writer
	store   store.Store
	ui      *output.UI
	cfg     Config
}

// NewEngine creates an engine. The store may be nil, in which case sessions
// are only persisted as JSON audit documents.
func NewEngine(critic Critic, fixer Fixer, threads ThreadStore, prs PullRequests, auditor *audit.Writer, s store.Store, ui *output.UI, cfg Config) *Engine {
	return &Engine{
		critic:  critic,
		fixer:   fixer,
		threads: threads,
		prs:     prs,
		auditor: auditor,
		store:   s,
		ui:      ui,
		cfg:     cfg,
	}
}

// Improve runs one review session: critique the file, post and reconcile
// threads, apply fixes, and repeat until no issues remain, the fixer stalls,
// or the iteration bound is hit. The partial audit trail is persisted even
// when a backend failure ends the session early; in that case Improve
// returns the partial result alongside the error.
func (e *Engine) Improve(ctx context.Context, pr *models.PullRequest, filePath, oldContent, newContent string) (*models.SessionResult, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	e.ui.Info("Starting iterative review for %s", filePath)

	session := &models.ReviewSession{
		PullRequestID: pr.ID,
		FilePath:      filePath,
	}
	if e.store != nil {
		if err := e.store.CreateReviewSession(ctx, session); err != nil {
			e.ui.Warning("record session: %v", err)
		}
	}

	ledger := NewThreadLedger(e.threads, pr.RepositoryID, pr.ID, filePath, e.ui)
	content := newContent
	previous := map[models.IssueKey]models.Issue{}
	var records []models.IterationRecord
	allResolved := false
	outcome := models.SessionOutcomeUnresolved
	var sessionErr error

	for iteration := 1; ; iteration++ {
		e.ui.VerboseLog("iteration %d for %s", iteration, filePath)

		critiqueText, err := e.critique(ctx, filePath, oldContent, content)
		if err != nil {
			sessionErr = fmt.Errorf("critic failed at iteration %d: %w", iteration, err)
			outcome = models.SessionOutcomeFailed
			break
		}

		issues := critique.Parse(critiqueText, iteration)
		current := critique.KeySet(issues, filePath)
		rec := Reconcile(previous, current)

		record := models.IterationRecord{
			Iteration:         iteration,
			Critique:          critiqueText,
			Issues:            issues,
			ContentBefore:     content,
			ContentAfter:      content,
			ResolvedSinceLast: rec.Resolved,
			CreatedThreads:    map[string]int{},
		}

		if e.cfg.PostComments {
			// Thread updates must observe reconciliation decisions in
			// iteration order: resolutions first, then current sightings.
			for _, key := range rec.Resolved {
				ledger.MarkResolved(ctx, key, iteration)
			}
			e.postSummaryThread(ctx, pr, filePath, issues, iteration)
			for _, key := range sortedIssueKeys(current) {
				issue := current[key]
				body := fmt.Sprintf("**%s**: %s\n\n*AI Code Review - Iteration %d*", issue.Category, issue.Description, iteration)
				if id, created := ledger.EnsureThread(ctx, key, body); created {
					record.CreatedThreads[key.String()] = id
				}
			}
		}

		// Stop conditions, first match wins: all resolved, bound reached,
		// fixer stalled.
		if len(issues) == 0 {
			records = e.appendRecord(ctx, session.ID, pr.ID, filePath, records, record)
			allResolved = true
			outcome = models.SessionOutcomeResolved
			e.ui.Success("No more issues for %s after %d iteration(s)", filePath, iteration)
			break
		}

		if iteration == e.cfg.MaxIterations {
			records = e.appendRecord(ctx, session.ID, pr.ID, filePath, records, record)
			e.ui.Warning("Iteration bound reached for %s with %d issue(s) remaining", filePath, len(issues))
			break
		}

		fixed, err := e.fix(ctx, filePath, content, critiqueText)
		if err != nil {
			records = e.appendRecord(ctx, session.ID, pr.ID, filePath, records, record)
			sessionErr = fmt.Errorf("fixer failed at iteration %d: %w", iteration, err)
			outcome = models.SessionOutcomeFailed
			break
		}

		if fixed == content {
			records = e.appendRecord(ctx, session.ID, pr.ID, filePath, records, record)
			outcome = models.SessionOutcomeStalled
			e.ui.Warning("No changes made for %s in iteration %d", filePath, iteration)
			break
		}

		record.ContentAfter = fixed
		records = e.appendRecord(ctx, session.ID, pr.ID, filePath, records, record)
		content = fixed
		previous = current
	}

	if allResolved && e.cfg.PostComments {
		ledger.CloseAllRemaining(ctx, len(records))
	}

	result := &models.SessionResult{
		SessionID:           session.ID,
		PullRequestID:       pr.ID,
		FilePath:            filePath,
		IterationsCompleted: len(records),
		AllResolved:         allResolved,
		Outcome:             outcome,
		Iterations:          records,
		FinalContent:        content,
		ThreadIDs:           ledger.ThreadIDs(),
		Timestamp:           time.Now().UTC(),
	}

	if e.auditor != nil {
		if _, err := e.auditor.WriteSession(pr.ID, filePath, result); err != nil {
			e.ui.Warning("persist session audit: %v", err)
		}
	}
	if e.store != nil {
		session.IterationsCompleted = len(records)
		session.AllResolved = allResolved
		session.Outcome = outcome
		session.FinalContent = content
		if sessionErr != nil {
			session.Error = sessionErr.Error()
		}
		now := time.Now().UTC()
		session.EndedAt = &now
		if err := e.store.UpdateReviewSession(ctx, session); err != nil {
			e.ui.Warning("update session record: %v", err)
		}
	}

	return result, sessionErr
}

// ProcessPullRequest reviews every changed text file of a pull request, one
// session per file. A failure in one file's session is recorded in its
// FileResult and does not abort the remaining files.
func (e *Engine) ProcessPullRequest(ctx context.Context, pullRequestID int) (*models.BatchResult, error) {
	pr, err := e.prs.GetPullRequest(ctx, pullRequestID)
	if err != nil {
		return nil, fmt.Errorf("get pull request %d: %w", pullRequestID, err)
	}

	changes, err := e.prs.ChangedFiles(ctx, pr)
	if err != nil {
		return nil, fmt.Errorf("list changed files: %w", err)
	}
	e.ui.Info("Found %d changed file(s) in PR #%d", len(changes), pullRequestID)

	batch := &models.BatchResult{
		PullRequestID: pullRequestID,
		Repository:    pr.Repository,
		Title:         pr.Title,
		Timestamp:     time.Now().UTC(),
	}

	for _, change := range changes {
		if !isTextFile(change.Path) || len(change.NewContent) > maxFileSize {
			e.ui.VerboseLog("skipping file (binary or too large): %s", change.Path)
			continue
		}
		batch.FilesProcessed++

		result, err := e.Improve(ctx, pr, change.Path, change.OldContent, change.NewContent)
		fr := models.FileResult{FilePath: change.Path}
		if result != nil {
			fr.IterationsCompleted = result.IterationsCompleted
			fr.AllResolved = result.AllResolved
			fr.Outcome = result.Outcome
		}
		if err != nil {
			fr.Error = err.Error()
			e.ui.Error("Review failed for %s: %v", change.Path, err)
		}
		batch.FileResults = append(batch.FileResults, fr)
	}

	if e.auditor != nil {
		if _, err := e.auditor.WriteBatch(batch); err != nil {
			e.ui.Warning("persist batch audit: %v", err)
		}
	}

	return batch, nil
}

func (e *Engine) critique(ctx context.Context, filePath, oldContent, newContent string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	return e.critic.Critique(ctx, filePath, oldContent, newContent)
}

func (e *Engine) fix(ctx context.Context, filePath, content, critiqueText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	return e.fixer.Fix(ctx, filePath, content, critiqueText)
}

// appendRecord persists one iteration snapshot (JSON audit plus store) and
// appends it to the in-memory trail. Persistence failures are logged, never
// fatal: the trail survives in memory and in whichever sinks succeeded.
func (e *Engine) appendRecord(ctx context.Context, sessionID string, pullRequestID int, filePath string, records []models.IterationRecord, rec models.IterationRecord) []models.IterationRecord {
	if e.auditor != nil {
		if _, err := e.auditor.WriteIteration(pullRequestID, filePath, rec); err != nil {
			e.ui.Warning("persist iteration audit: %v", err)
		}
	}
	if e.store != nil && sessionID != "" {
		if err := e.store.CreateIterationRecord(ctx, sessionID, &rec); err != nil {
			e.ui.Warning("record iteration: %v", err)
		}
	}
	return append(records, rec)
}

// postSummaryThread posts the per-iteration file-level summary. The summary
// thread has no issue key and is never tracked in the ledger.
func (e *Engine) postSummaryThread(ctx context.Context, pr *models.PullRequest, filePath string, issues []models.Issue, iteration int) {
	if len(issues) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# AI Code Review - Iteration %d\n\n", iteration)
	fmt.Fprintf(&b, "Reviewing file: `%s`\n\n", filePath)
	b.WriteString("## Summary of Issues\n")
	for _, issue := range issues {
		category := issue.Category
		if category == "" {
			category = "General"
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", category, issue.Description)
	}

	if _, err := e.threads.CreateThread(ctx, pr.RepositoryID, pr.ID, b.String(), filePath, 0); err != nil {
		e.ui.Warning("post summary comment for %s: %v", filePath, err)
	}
}

func sortedIssueKeys(set map[models.IssueKey]models.Issue) []models.IssueKey {
	keys := make([]models.IssueKey, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}

var textExtensions = map[string]bool{
	".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".html": true, ".css": true, ".scss": true, ".json": true, ".md": true,
	".yml": true, ".yaml": true, ".xml": true, ".txt": true, ".sh": true,
	".bat": true, ".ps1": true, ".c": true, ".cpp": true, ".h": true,
	".cs": true, ".java": true, ".go": true, ".rb": true, ".php": true,
	".swift": true, ".kt": true, ".rs": true,
}

func isTextFile(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}
