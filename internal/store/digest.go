package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DigestStore records which events have had their best-date mail sent.
type DigestStore struct {
	db *sql.DB
}

func NewDigestStore(db *sql.DB) *DigestStore {
	return &DigestStore{db: db}
}

// MarkSent records the event's digest mail as sent. It reports false when
// the event was already recorded, by this or another process.
func (s *DigestStore) MarkSent(ctx context.Context, eventID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO digest_sends (event_id) VALUES (?)`, eventID)
	if err != nil {
		return false, fmt.Errorf("mark digest sent: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// UnmarkSent removes the record so a failed send is retried.
func (s *DigestStore) UnmarkSent(ctx context.Context, eventID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM digest_sends WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("unmark digest sent: %w", err)
	}
	return nil
}
