package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/togetherplan/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationCols = `id, user_id, kind, data, read_at, created_at`

func scanNotification(row scanner) (*model.Notification, error) {
	var n model.Notification
	var data string
	var readAt sql.NullTime
	if err := row.Scan(&n.ID, &n.UserID, &n.Kind, &data, &readAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Data = []byte(data)
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	return &n, nil
}

func (s *NotificationStore) Create(ctx context.Context, n model.Notification) error {
	data := string(n.Data)
	if data == "" {
		data = "{}"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, kind, data) VALUES (?, ?, ?, ?)`,
		n.ID, n.UserID, n.Kind, data,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListUnread returns the user's unread notifications, newest first.
func (s *NotificationStore) ListUnread(ctx context.Context, userID int64) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationCols+` FROM notifications
		 WHERE user_id = ? AND read_at IS NULL
		 ORDER BY created_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// MarkRead marks one unread notification of userID as read. It reports false
// when no such unread notification exists.
func (s *NotificationStore) MarkRead(ctx context.Context, userID int64, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE id = ? AND user_id = ? AND read_at IS NULL`,
		at.UTC(), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
