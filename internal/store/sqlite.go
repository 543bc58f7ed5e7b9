package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/reviewloop/reviewloop/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Review sessions ---

func (s *SQLiteStore) CreateReviewSession(ctx context.Context, session *models.ReviewSession) error {
	if session.ID == "" {
		session.ID = newULID()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_sessions (id, pull_request_id, file_path, iterations_completed, all_resolved, outcome, final_content, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.PullRequestID, session.FilePath,
		session.IterationsCompleted, boolToInt(session.AllResolved), string(session.Outcome),
		session.FinalContent, session.Error, session.StartedAt, session.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("create review session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReviewSession(ctx context.Context, id string) (*models.ReviewSession, error) {
	session := &models.ReviewSession{}
	var outcome string
	var endedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, pull_request_id, file_path, iterations_completed, all_resolved, outcome, final_content, error, started_at, ended_at
		FROM review_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.PullRequestID, &session.FilePath,
		&session.IterationsCompleted, &session.AllResolved, &outcome,
		&session.FinalContent, &session.Error, &session.StartedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review session: %w", err)
	}

	session.Outcome = models.SessionOutcome(outcome)
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return session, nil
}

func (s *SQLiteStore) ListReviewSessions(ctx context.Context, pullRequestID, limit int) ([]*models.ReviewSession, error) {
	query := `SELECT id, pull_request_id, file_path, iterations_completed, all_resolved, outcome, final_content, error, started_at, ended_at
		FROM review_sessions`
	var args []any
	if pullRequestID > 0 {
		query += " WHERE pull_request_id = ?"
		args = append(args, pullRequestID)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.ReviewSession
	for rows.Next() {
		session := &models.ReviewSession{}
		var outcome string
		var endedAt sql.NullTime
		if err := rows.Scan(&session.ID, &session.PullRequestID, &session.FilePath,
			&session.IterationsCompleted, &session.AllResolved, &outcome,
			&session.FinalContent, &session.Error, &session.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan review session: %w", err)
		}
		session.Outcome = models.SessionOutcome(outcome)
		if endedAt.Valid {
			session.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) UpdateReviewSession(ctx context.Context, session *models.ReviewSession) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE review_sessions SET iterations_completed=?, all_resolved=?, outcome=?, final_content=?, error=?, ended_at=?
		WHERE id=?`,
		session.IterationsCompleted, boolToInt(session.AllResolved), string(session.Outcome),
		session.FinalContent, session.Error, session.EndedAt, session.ID,
	)
	if err != nil {
		return fmt.Errorf("update review session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("review session not found: %s", session.ID)
	}
	return nil
}

// --- Iteration records ---

func (s *SQLiteStore) CreateIterationRecord(ctx context.Context, sessionID string, rec *models.IterationRecord) error {
	issues, err := json.Marshal(rec.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}
	resolved, err := json.Marshal(rec.ResolvedSinceLast)
	if err != nil {
		return fmt.Errorf("marshal resolved keys: %w", err)
	}
	threads, err := json.Marshal(rec.CreatedThreads)
	if err != nil {
		return fmt.Errorf("marshal created threads: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO iteration_records (id, session_id, iteration, critique, issues, content_before, content_after, resolved_since_last, created_threads)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		newULID(), sessionID, rec.Iteration, rec.Critique, string(issues),
		rec.ContentBefore, rec.ContentAfter, string(resolved), string(threads),
	)
	if err != nil {
		return fmt.Errorf("create iteration record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListIterationRecords(ctx context.Context, sessionID string) ([]*models.IterationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, critique, issues, content_before, content_after, resolved_since_last, created_threads
		FROM iteration_records WHERE session_id = ? ORDER BY iteration`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list iteration records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*models.IterationRecord
	for rows.Next() {
		rec := &models.IterationRecord{}
		var issues, resolved, threads string
		if err := rows.Scan(&rec.Iteration, &rec.Critique, &issues,
			&rec.ContentBefore, &rec.ContentAfter, &resolved, &threads); err != nil {
			return nil, fmt.Errorf("scan iteration record: %w", err)
		}
		if err := json.Unmarshal([]byte(issues), &rec.Issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues: %w", err)
		}
		if err := json.Unmarshal([]byte(resolved), &rec.ResolvedSinceLast); err != nil {
			return nil, fmt.Errorf("unmarshal resolved keys: %w", err)
		}
		if err := json.Unmarshal([]byte(threads), &rec.CreatedThreads); err != nil {
			return nil, fmt.Errorf("unmarshal created threads: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
