package review

import (
	"context"
	"fmt"

	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/output"
)

// ThreadStore is the remote discussion-thread API the ledger posts to.
// Implementations raise on non-2xx responses; the ledger logs those failures
// and carries on, because the ledger itself is the source of truth for what
// has already been posted.
type ThreadStore interface {
	CreateThread(ctx context.Context, repoID string, pullRequestID int, content, filePath string, line int) (int, error)
	AddComment(ctx context.Context, repoID string, pullRequestID, threadID int, content string) error
	SetThreadStatus(ctx context.Context, repoID string, pullRequestID, threadID int, status models.ThreadStatus) error
	ListThreads(ctx context.Context, repoID string, pullRequestID int) ([]models.Thread, error)
}

type ledgerEntry struct {
	threadID int
	status   models.ThreadStatus
}

// ThreadLedger maps issue identity keys to remote thread handles for one
// review session. Entries are created lazily on first sighting, reused on
// later sightings, flipped to fixed on resolution, and never deleted. The
// ledger is owned by a single session and never shared.
type ThreadLedger struct {
	store         ThreadStore
	repoID        string
	pullRequestID int
	filePath      string
	entries       map[models.IssueKey]*ledgerEntry
	ui            *output.UI
}

// NewThreadLedger creates an empty ledger bound to one file of one pull
// request.
func NewThreadLedger(store ThreadStore, repoID string, pullRequestID int, filePath string, ui *output.UI) *ThreadLedger {
	return &ThreadLedger{
		store:         store,
		repoID:        repoID,
		pullRequestID: pullRequestID,
		filePath:      filePath,
		entries:       make(map[models.IssueKey]*ledgerEntry),
		ui:            ui,
	}
}

// EnsureThread guarantees at most one live thread per issue key. On first
// sighting it creates a remote thread at the issue's file/line; on repeat
// sightings it posts a follow-up comment on the existing thread instead.
// Returns the thread id and whether a thread was created this call. Remote
// failures are logged and leave the ledger entry in its previous state, so
// the next iteration retries naturally.
func (l *ThreadLedger) EnsureThread(ctx context.Context, key models.IssueKey, content string) (int, bool) {
	if entry, ok := l.entries[key]; ok {
		if err := l.store.AddComment(ctx, l.repoID, l.pullRequestID, entry.threadID, content); err != nil {
			l.ui.Warning("add comment to thread %d for %s: %v", entry.threadID, key, err)
		}
		return entry.threadID, false
	}

	threadID, err := l.store.CreateThread(ctx, l.repoID, l.pullRequestID, content, key.FilePath, key.Line)
	if err != nil {
		l.ui.Warning("create thread for %s: %v", key, err)
		return 0, false
	}
	l.entries[key] = &ledgerEntry{threadID: threadID, status: models.ThreadStatusActive}
	l.ui.VerboseLog("created thread %d for %s", threadID, key)
	return threadID, true
}

// MarkResolved flips the key's remote thread to fixed and posts a
// confirmation comment. Idempotent: the check runs against ledger status,
// not the remote system, so a second call for the same key is a no-op.
func (l *ThreadLedger) MarkResolved(ctx context.Context, key models.IssueKey, iteration int) {
	entry, ok := l.entries[key]
	if !ok || entry.status == models.ThreadStatusFixed {
		return
	}

	if err := l.store.SetThreadStatus(ctx, l.repoID, l.pullRequestID, entry.threadID, models.ThreadStatusFixed); err != nil {
		l.ui.Warning("mark thread %d fixed for %s: %v", entry.threadID, key, err)
		return
	}
	entry.status = models.ThreadStatusFixed

	comment := fmt.Sprintf("✅ This issue was resolved in iteration %d.", iteration)
	if err := l.store.AddComment(ctx, l.repoID, l.pullRequestID, entry.threadID, comment); err != nil {
		l.ui.Warning("add resolution comment to thread %d: %v", entry.threadID, err)
	}
}

// CloseAllRemaining flips every still-active entry to fixed. The engine
// calls it when a session ends with every issue resolved: the final fix can
// eliminate issues without a further critique round to detect them key by
// key.
func (l *ThreadLedger) CloseAllRemaining(ctx context.Context, iterations int) {
	for _, key := range l.sortedKeys() {
		entry := l.entries[key]
		if entry.status == models.ThreadStatusFixed {
			continue
		}
		if err := l.store.SetThreadStatus(ctx, l.repoID, l.pullRequestID, entry.threadID, models.ThreadStatusFixed); err != nil {
			l.ui.Warning("close thread %d for %s: %v", entry.threadID, key, err)
			continue
		}
		entry.status = models.ThreadStatusFixed

		comment := fmt.Sprintf("✅ All issues have been resolved after %d iterations.", iterations)
		if err := l.store.AddComment(ctx, l.repoID, l.pullRequestID, entry.threadID, comment); err != nil {
			l.ui.Warning("add closing comment to thread %d: %v", entry.threadID, err)
		}
	}
}

// ThreadIDs returns every thread handle the ledger has created, in key
// order.
func (l *ThreadLedger) ThreadIDs() []int {
	ids := make([]int, 0, len(l.entries))
	for _, key := range l.sortedKeys() {
		ids = append(ids, l.entries[key].threadID)
	}
	return ids
}

func (l *ThreadLedger) sortedKeys() []models.IssueKey {
	keys := make([]models.IssueKey, 0, len(l.entries))
	for key := range l.entries {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}
