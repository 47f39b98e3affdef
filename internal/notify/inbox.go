package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/togetherplan/internal/apperr"
	"github.com/dukerupert/togetherplan/internal/model"
	"github.com/dukerupert/togetherplan/internal/store"
)

// Inbox persists notifications so users can list and dismiss them.
type Inbox struct {
	store  *store.NotificationStore
	now    func() time.Time
	logger *slog.Logger
}

func NewInbox(s *store.NotificationStore, logger *slog.Logger) *Inbox {
	return &Inbox{store: s, now: time.Now, logger: logger}
}

func (in *Inbox) Dispatch(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg.payload())
	if err != nil {
		in.logger.Error("marshal notification", "error", err, "kind", msg.Kind)
		return
	}
	n := model.Notification{
		ID:     uuid.NewString(),
		UserID: msg.RecipientID,
		Kind:   string(msg.Kind),
		Data:   data,
	}
	if err := in.store.Create(ctx, n); err != nil {
		in.logger.Error("store notification", "error", err,
			"kind", msg.Kind, "recipient_id", msg.RecipientID)
	}
}

// ListUnread returns the user's unread notifications, newest first.
func (in *Inbox) ListUnread(ctx context.Context, userID int64) ([]model.Notification, error) {
	return in.store.ListUnread(ctx, userID)
}

// MarkRead marks one of the user's notifications read. Unknown, foreign and
// already read ids all report NotFound.
func (in *Inbox) MarkRead(ctx context.Context, userID int64, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.New(apperr.CodeNotFound, "notification not found")
	}
	found, err := in.store.MarkRead(ctx, userID, id, in.now())
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if !found {
		return apperr.New(apperr.CodeNotFound, "notification not found")
	}
	return nil
}
