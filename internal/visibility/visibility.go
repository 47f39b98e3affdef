// Package visibility decides who may see and who may change an event.
package visibility

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukerupert/togetherplan/internal/apperr"
	"github.com/dukerupert/togetherplan/internal/model"
)

// ParticipantLookup finds an actor's participant record on an event.
type ParticipantLookup interface {
	Get(ctx context.Context, eventID, userID int64) (*model.Participant, error)
}

// Mode names a private-event viewer set.
type Mode string

const (
	// ModeAccepted lets only participants who accepted view a private event.
	ModeAccepted Mode = "accepted"
	// ModeInvited also admits participants who have not answered yet.
	ModeInvited Mode = "invited"
)

// ViewerStatuses returns the participant statuses a mode admits.
func ViewerStatuses(m Mode) ([]model.ParticipantStatus, error) {
	switch m {
	case ModeAccepted:
		return []model.ParticipantStatus{model.StatusAccepted}, nil
	case ModeInvited:
		return []model.ParticipantStatus{model.StatusInvited, model.StatusAccepted}, nil
	default:
		return nil, fmt.Errorf("unknown viewer mode %q", m)
	}
}

// Visible reports whether actorID may view e, given the actor's participant
// record (nil when none) and the statuses admitted to private events.
// actorID 0 is anonymous and sees nothing.
func Visible(actorID int64, e *model.Event, p *model.Participant, viewers []model.ParticipantStatus) bool {
	if actorID == 0 || e == nil {
		return false
	}
	if e.Privacy == model.PrivacyPublic || e.CreatedBy == actorID {
		return true
	}
	if p == nil || p.EventID != e.ID || p.UserID != actorID {
		return false
	}
	return slices.Contains(viewers, p.Status)
}

// Mutable reports whether actorID may update or delete e. Only the creator may.
func Mutable(actorID int64, e *model.Event) bool {
	return actorID != 0 && e != nil && e.CreatedBy == actorID
}

// Policy applies Visible with participant records loaded on demand.
type Policy struct {
	participants ParticipantLookup
	viewers      []model.ParticipantStatus
}

func NewPolicy(participants ParticipantLookup, mode Mode) (*Policy, error) {
	viewers, err := ViewerStatuses(mode)
	if err != nil {
		return nil, err
	}
	return &Policy{participants: participants, viewers: viewers}, nil
}

// ViewerStatuses returns the statuses admitted to private events, for list queries.
func (p *Policy) ViewerStatuses() []model.ParticipantStatus {
	return slices.Clone(p.viewers)
}

func (p *Policy) CanView(ctx context.Context, actorID int64, e *model.Event) (bool, error) {
	if actorID == 0 || e == nil {
		return false, nil
	}
	if e.Privacy == model.PrivacyPublic || e.CreatedBy == actorID {
		return true, nil
	}
	part, err := p.participants.Get(ctx, e.ID, actorID)
	if err != nil {
		return false, fmt.Errorf("load participant: %w", err)
	}
	return Visible(actorID, e, part, p.viewers), nil
}

func (p *Policy) CanMutate(actorID int64, e *model.Event) bool {
	return Mutable(actorID, e)
}

// AuthorizeView returns Unauthorized unless actorID may view e.
func (p *Policy) AuthorizeView(ctx context.Context, actorID int64, e *model.Event) error {
	ok, err := p.CanView(ctx, actorID, e)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.CodeUnauthorized, "you are not authorized to view this event")
	}
	return nil
}

// AuthorizeMutate returns Unauthorized unless actorID created e.
func (p *Policy) AuthorizeMutate(actorID int64, e *model.Event) error {
	if !p.CanMutate(actorID, e) {
		return apperr.New(apperr.CodeUnauthorized, "only the event creator may do this")
	}
	return nil
}
