package store

import (
	"context"

	"github.com/reviewloop/reviewloop/internal/models"
)

// Store defines the persistence interface for the review session index. The
// JSON audit documents remain the canonical per-session record; the store
// exists so past runs can be listed and inspected.
type Store interface {
	// Review sessions
	CreateReviewSession(ctx context.Context, session *models.ReviewSession) error
	GetReviewSession(ctx context.Context, id string) (*models.ReviewSession, error)
	ListReviewSessions(ctx context.Context, pullRequestID, limit int) ([]*models.ReviewSession, error)
	UpdateReviewSession(ctx context.Context, session *models.ReviewSession) error

	// Iteration records
	CreateIterationRecord(ctx context.Context, sessionID string, rec *models.IterationRecord) error
	ListIterationRecords(ctx context.Context, sessionID string) ([]*models.IterationRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
