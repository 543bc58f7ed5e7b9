package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestCreateAndGetReviewSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &models.ReviewSession{
		PullRequestID: 42,
		FilePath:      "src/app.py",
	}
	require.NoError(t, s.CreateReviewSession(ctx, session))
	assert.NotEmpty(t, session.ID)
	assert.False(t, session.StartedAt.IsZero())

	got, err := s.GetReviewSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.PullRequestID)
	assert.Equal(t, "src/app.py", got.FilePath)
	assert.Nil(t, got.EndedAt)
}

func TestGetReviewSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetReviewSession(context.Background(), "NOPE")
	assert.Error(t, err)
}

func TestUpdateReviewSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &models.ReviewSession{PullRequestID: 42, FilePath: "src/app.py"}
	require.NoError(t, s.CreateReviewSession(ctx, session))

	now := time.Now().UTC()
	session.IterationsCompleted = 3
	session.AllResolved = true
	session.Outcome = models.SessionOutcomeResolved
	session.FinalContent = "final"
	session.EndedAt = &now
	require.NoError(t, s.UpdateReviewSession(ctx, session))

	got, err := s.GetReviewSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.IterationsCompleted)
	assert.True(t, got.AllResolved)
	assert.Equal(t, models.SessionOutcomeResolved, got.Outcome)
	assert.Equal(t, "final", got.FinalContent)
	require.NotNil(t, got.EndedAt)
}

func TestUpdateReviewSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateReviewSession(context.Background(), &models.ReviewSession{ID: "MISSING"})
	assert.Error(t, err)
}

func TestListReviewSessionsFilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		session := &models.ReviewSession{
			PullRequestID: 42,
			FilePath:      "src/app.py",
			StartedAt:     time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.CreateReviewSession(ctx, session))
	}
	other := &models.ReviewSession{PullRequestID: 7, FilePath: "other.py"}
	require.NoError(t, s.CreateReviewSession(ctx, other))

	all, err := s.ListReviewSessions(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	filtered, err := s.ListReviewSessions(ctx, 42, 0)
	require.NoError(t, err)
	assert.Len(t, filtered, 3)

	limited, err := s.ListReviewSessions(ctx, 42, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestIterationRecordsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &models.ReviewSession{PullRequestID: 42, FilePath: "src/app.py"}
	require.NoError(t, s.CreateReviewSession(ctx, session))

	line := 12
	rec := &models.IterationRecord{
		Iteration: 1,
		Critique:  "## Bugs\n- Null check missing on line 12\n",
		Issues: []models.Issue{
			{Category: "Bugs", Description: "Null check missing on line 12", Line: &line, IterationSeen: 1},
		},
		ContentBefore:  "before",
		ContentAfter:   "after",
		CreatedThreads: map[string]int{"src/app.py:12:Bugs": 101},
	}
	require.NoError(t, s.CreateIterationRecord(ctx, session.ID, rec))

	rec2 := &models.IterationRecord{
		Iteration: 2,
		Critique:  "No issues found.",
		ResolvedSinceLast: []models.IssueKey{
			{FilePath: "src/app.py", Line: 12, Category: "Bugs"},
		},
		CreatedThreads: map[string]int{},
	}
	require.NoError(t, s.CreateIterationRecord(ctx, session.ID, rec2))

	records, err := s.ListIterationRecords(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, rec.Issues, records[0].Issues)
	assert.Equal(t, rec.CreatedThreads, records[0].CreatedThreads)
	assert.Equal(t, rec2.ResolvedSinceLast, records[1].ResolvedSinceLast)
	assert.Empty(t, records[1].Issues)
}

func TestListIterationRecordsEmptySession(t *testing.T) {
	s := newTestStore(t)
	records, err := s.ListIterationRecords(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Empty(t, records)
}
