package notify

import (
	"context"
	"log/slog"

	"github.com/dukerupert/togetherplan/internal/model"
)

// UserLookup resolves a recipient's address.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// InvitationSender is the subset of the email client the mailer uses.
type InvitationSender interface {
	Configured() bool
	SendEventInvitation(ctx context.Context, toEmail string, eventID int64, title string) error
}

// Mailer emails event invitations. Other kinds are not mailed.
type Mailer struct {
	users  UserLookup
	sender InvitationSender
	logger *slog.Logger
}

func NewMailer(users UserLookup, sender InvitationSender, logger *slog.Logger) *Mailer {
	return &Mailer{users: users, sender: sender, logger: logger}
}

func (m *Mailer) Dispatch(ctx context.Context, msg Message) {
	if msg.Kind != KindEventInvitation {
		return
	}
	if !m.sender.Configured() {
		m.logger.Debug("email not configured, skipping invitation", "recipient_id", msg.RecipientID)
		return
	}
	u, err := m.users.GetByID(ctx, msg.RecipientID)
	if err != nil {
		m.logger.Error("lookup recipient", "error", err, "recipient_id", msg.RecipientID)
		return
	}
	if u == nil {
		m.logger.Warn("recipient not found", "recipient_id", msg.RecipientID)
		return
	}
	if err := m.sender.SendEventInvitation(ctx, u.Email, msg.EventID, msg.Title); err != nil {
		m.logger.Error("send invitation email", "error", err,
			"recipient_id", msg.RecipientID, "event_id", msg.EventID)
	}
}
