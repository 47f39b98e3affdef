package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/togetherplan/internal/model"
	"github.com/dukerupert/togetherplan/internal/push"
)

type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type PushSender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload push.Payload) error
}

// Pusher sends every notification to the recipient's Web Push subscriptions
// and forgets subscriptions the push service reports as expired.
type Pusher struct {
	subs    SubscriptionStore
	sender  PushSender
	baseURL string
	logger  *slog.Logger
}

func NewPusher(subs SubscriptionStore, sender PushSender, baseURL string, logger *slog.Logger) *Pusher {
	return &Pusher{subs: subs, sender: sender, baseURL: baseURL, logger: logger}
}

func (p *Pusher) Dispatch(ctx context.Context, msg Message) {
	subs, err := p.subs.ListByUser(ctx, msg.RecipientID)
	if err != nil {
		p.logger.Error("list push subscriptions", "error", err, "recipient_id", msg.RecipientID)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := p.payload(msg)
	for i := range subs {
		sub := &subs[i]
		err := p.sender.Send(ctx, sub, payload)
		switch {
		case errors.Is(err, push.ErrExpired):
			p.logger.Info("push subscription expired", "subscription_id", sub.ID, "recipient_id", msg.RecipientID)
			if err := p.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				p.logger.Error("delete expired subscription", "error", err, "subscription_id", sub.ID)
			}
		case err != nil:
			p.logger.Error("send push", "error", err, "subscription_id", sub.ID, "kind", msg.Kind)
		}
	}
}

func (p *Pusher) payload(msg Message) push.Payload {
	pl := push.Payload{
		URL: fmt.Sprintf("%s/api/events/%d", p.baseURL, msg.EventID),
		Tag: string(msg.Kind),
	}
	switch msg.Kind {
	case KindEventInvitation:
		pl.Title = "New invitation"
		pl.Body = fmt.Sprintf("You're invited to %s", msg.Title)
	case KindBestDateChanged:
		pl.Title = "Best date changed"
		pl.Body = msg.Title
		if d, ok := msg.Data["proposed_date"].(string); ok {
			pl.Body = fmt.Sprintf("%s is now on %s", msg.Title, d)
		}
	default:
		pl.Title = msg.Title
	}
	return pl
}
