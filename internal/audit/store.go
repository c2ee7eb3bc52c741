package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ivkov/inboxtriage/internal/triage"
)

// Store is the append-only SQLite log of delivery records. It implements
// triage.AuditLog. Rows are never updated or deleted.
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes one delivery record.
func (s *Store) Append(ctx context.Context, rec triage.DeliveryRecord) error {
	sent := 0
	if rec.ResponseSent {
		sent = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_records (message_id, category, response_sent, error, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.MessageID, rec.Category.String(), sent, rec.Error, rec.Details, rec.Timestamp.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("append delivery record: %w", err)
	}
	return nil
}

// Record is one persisted audit entry as returned by queries.
type Record struct {
	ID           int64     `json:"id"`
	MessageID    string    `json:"message_id"`
	Category     string    `json:"category"`
	ResponseSent bool      `json:"response_sent"`
	Error        string    `json:"error,omitempty"`
	Details      string    `json:"details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListRecent returns up to limit records, newest first, optionally filtered by
// category. An empty category returns all records.
func (s *Store) ListRecent(ctx context.Context, category string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, message_id, category, response_sent, error, COALESCE(details, ''), created_at
		FROM delivery_records`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list delivery records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var sent int
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.MessageID, &rec.Category, &sent, &rec.Error, &rec.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		rec.ResponseSent = sent != 0
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats aggregates delivery records since the given time for the dashboard.
type Stats struct {
	Since         time.Time      `json:"since"`
	Total         int            `json:"total"`
	ByCategory    map[string]int `json:"by_category"`
	ResponsesSent int            `json:"responses_sent"`
	Errors        int            `json:"errors"`
}

// Stats returns aggregate counts for records created at or after since.
func (s *Store) Stats(ctx context.Context, since time.Time) (Stats, error) {
	stats := Stats{
		Since:      since.UTC(),
		ByCategory: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category,
		        COUNT(*),
		        SUM(response_sent),
		        SUM(CASE WHEN error != '' THEN 1 ELSE 0 END)
		 FROM delivery_records
		 WHERE created_at >= ?
		 GROUP BY category`,
		since.UTC().Unix(),
	)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate delivery records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count, sent, errored int
		if err := rows.Scan(&category, &count, &sent, &errored); err != nil {
			return Stats{}, fmt.Errorf("scan delivery stats: %w", err)
		}
		stats.ByCategory[category] = count
		stats.Total += count
		stats.ResponsesSent += sent
		stats.Errors += errored
	}
	return stats, rows.Err()
}
