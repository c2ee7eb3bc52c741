package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultWindow is the rolling retention for processed message ids. A message
// older than the window may be examined again, which is acceptable because it
// would long since have been marked read or replied to.
const DefaultWindow = 7 * 24 * time.Hour

// Store is the SQLite-backed dedup store of processed message ids. It
// implements triage.History.
type Store struct {
	db     *sql.DB
	window time.Duration
}

// NewStore creates a history store over db. A non-positive window falls back
// to the seven-day default.
func NewStore(db *sql.DB, window time.Duration) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{db: db, window: window}
}

// Window returns the configured retention window.
func (s *Store) Window() time.Duration {
	return s.window
}

// Contains reports whether id was recorded within the retention window.
func (s *Store) Contains(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_messages WHERE message_id = ?`, id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query processed message: %w", err)
	}
	return true, nil
}

// Record inserts id with its processing timestamp. Idempotent: recording an
// id that is already present keeps the original timestamp.
func (s *Store) Record(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_messages (message_id, recorded_at) VALUES (?, ?)
		 ON CONFLICT(message_id) DO NOTHING`,
		id, at.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record processed message: %w", err)
	}
	return nil
}

// Prune deletes entries recorded before now minus the retention window.
func (s *Store) Prune(ctx context.Context, now time.Time) error {
	cutoff := now.UTC().Add(-s.window).Unix()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_messages WHERE recorded_at < ?`, cutoff,
	)
	if err != nil {
		return fmt.Errorf("prune processed messages: %w", err)
	}
	return nil
}

// Count returns the number of retained entries. Used by the readiness probe
// and the dashboard.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_messages`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count processed messages: %w", err)
	}
	return n, nil
}
