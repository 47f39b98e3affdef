// Package participant manages invitation records and their status.
package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/togetherplan/internal/apperr"
	"github.com/dukerupert/togetherplan/internal/model"
	"github.com/dukerupert/togetherplan/internal/notify"
	"github.com/dukerupert/togetherplan/internal/store"
)

// Store persists participant records. Create must fail with
// store.ErrConflict when (event, user) already exists.
type Store interface {
	Create(ctx context.Context, eventID, userID int64, status model.ParticipantStatus) (*model.Participant, error)
	Get(ctx context.Context, eventID, userID int64) (*model.Participant, error)
	UpdateStatus(ctx context.Context, id int64, status model.ParticipantStatus) (*model.Participant, error)
}

type Lifecycle struct {
	store      Store
	dispatcher notify.Dispatcher
	logger     *slog.Logger
}

func NewLifecycle(s Store, d notify.Dispatcher, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{store: s, dispatcher: d, logger: logger}
}

// Invite records userID as invited to e and notifies them. A second invite
// for the same pair returns AlreadyInvited and changes nothing.
func (l *Lifecycle) Invite(ctx context.Context, e *model.Event, userID int64) (*model.Participant, error) {
	existing, err := l.store.Get(ctx, e.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if existing != nil {
		return nil, apperr.ErrAlreadyInvited
	}

	p, err := l.store.Create(ctx, e.ID, userID, model.StatusInvited)
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with a concurrent invite for the same pair.
		return nil, apperr.ErrAlreadyInvited
	}
	if err != nil {
		return nil, fmt.Errorf("create participant: %w", err)
	}

	l.Announce(ctx, e, []int64{userID})
	return p, nil
}

// Respond overwrites the actor's status with decision. Repeated responses are
// allowed; each one replaces the last.
func (l *Lifecycle) Respond(ctx context.Context, eventID, actorID int64, decision model.ParticipantStatus) (*model.Participant, error) {
	if decision != model.StatusAccepted && decision != model.StatusDeclined {
		return nil, apperr.Validation(map[string]string{"status": "must be accepted or declined"})
	}

	p, err := l.store.Get(ctx, eventID, actorID)
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if p == nil {
		return nil, apperr.ErrNotInvited
	}

	updated, err := l.store.UpdateStatus(ctx, p.ID, decision)
	if err != nil {
		return nil, fmt.Errorf("update participant: %w", err)
	}
	l.logger.Info("participant responded", "event_id", eventID, "user_id", actorID, "status", decision)
	return updated, nil
}

// SeedIDs returns who a new event's creator seeds as invited: the explicit
// invitees, then the group members, without the creator and without repeats.
func SeedIDs(creatorID int64, invitees, groupMembers []int64) []int64 {
	seen := map[int64]bool{creatorID: true}
	var ids []int64
	for _, list := range [][]int64{invitees, groupMembers} {
		for _, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// Announce notifies each of userIDs that they were invited to e. Call it only
// once their participant records are committed.
func (l *Lifecycle) Announce(ctx context.Context, e *model.Event, userIDs []int64) {
	for _, id := range userIDs {
		l.logger.Info("participant invited", "event_id", e.ID, "user_id", id)
		l.dispatcher.Dispatch(ctx, notify.Message{
			RecipientID: id,
			Kind:        notify.KindEventInvitation,
			EventID:     e.ID,
			Title:       e.Title,
		})
	}
}

// SeedFromGroup invites every member of a group to e except its creator.
// Members who already have a record are skipped. It returns the new records.
func (l *Lifecycle) SeedFromGroup(ctx context.Context, e *model.Event, memberIDs []int64) ([]model.Participant, error) {
	var seeded []model.Participant
	for _, id := range memberIDs {
		if id == e.CreatedBy {
			continue
		}
		p, err := l.Invite(ctx, e, id)
		if errors.Is(err, apperr.ErrAlreadyInvited) {
			continue
		}
		if err != nil {
			return seeded, fmt.Errorf("seed member %d: %w", id, err)
		}
		seeded = append(seeded, *p)
	}
	return seeded, nil
}
