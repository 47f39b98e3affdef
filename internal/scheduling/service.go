// Package scheduling serves event, invitation and voting operations. It
// validates input, checks visibility and sequences the participant and tally
// modules; the rules themselves live in those packages.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/togetherplan/internal/apperr"
	"github.com/dukerupert/togetherplan/internal/model"
	"github.com/dukerupert/togetherplan/internal/participant"
	"github.com/dukerupert/togetherplan/internal/store"
	"github.com/dukerupert/togetherplan/internal/tally"
	"github.com/dukerupert/togetherplan/internal/visibility"
)

// Stores groups the persistence the service reads and writes directly.
type Stores struct {
	Users        *store.UserStore
	Groups       *store.GroupStore
	Events       *store.EventStore
	Participants *store.ParticipantStore
	Votes        *store.VoteStore
}

type Service struct {
	stores    Stores
	policy    *visibility.Policy
	lifecycle *participant.Lifecycle
	tally     *tally.Engine
	logger    *slog.Logger
}

func NewService(s Stores, policy *visibility.Policy, lifecycle *participant.Lifecycle, engine *tally.Engine, logger *slog.Logger) *Service {
	return &Service{
		stores:    s,
		policy:    policy,
		lifecycle: lifecycle,
		tally:     engine,
		logger:    logger,
	}
}

type DateOptionInput struct {
	ProposedDate string  `json:"proposed_date"`
	ProposedTime *string `json:"proposed_time"`
}

// DateSeriesInput proposes one date option per day produced by Rule, an
// RRULE such as "FREQ=WEEKLY;BYDAY=FR;COUNT=4", starting at Start.
type DateSeriesInput struct {
	Start        string  `json:"start"`
	Rule         string  `json:"rule"`
	ProposedTime *string `json:"proposed_time"`
}

type CreateEventInput struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Location    string            `json:"location"`
	Category    string            `json:"category"`
	Privacy     string            `json:"privacy"`
	DateOptions []DateOptionInput `json:"date_options"`
	Invitees    []int64           `json:"invitees"`
	GroupID     *int64            `json:"group_id"`
}

// UpdateEventInput holds a partial update; nil fields are left unchanged.
// ClearGroup detaches the event from its group.
type UpdateEventInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	Category    *string `json:"category"`
	Privacy     *string `json:"privacy"`
	GroupID     *int64  `json:"group_id"`
	ClearGroup  bool    `json:"clear_group"`
}

// OptionDetail is a date option with its votes and point total.
type OptionDetail struct {
	model.DateOption
	Votes  []model.Vote `json:"votes"`
	Points int          `json:"points"`
}

// EventDetail is an event with its relations.
type EventDetail struct {
	model.Event
	Creator      *model.User         `json:"creator"`
	Group        *model.Group        `json:"group"`
	DateOptions  []OptionDetail      `json:"date_options"`
	Participants []model.Participant `json:"participants"`
	BestDate     *model.DateOption   `json:"best_date"`
}

type InviteOutcome string

const (
	OutcomeInvited        InviteOutcome = "invited"
	OutcomeAlreadyInvited InviteOutcome = "already_invited"
	OutcomeUserNotFound   InviteOutcome = "user_not_found"
)

func (s *Service) loadEvent(ctx context.Context, id int64) (*model.Event, error) {
	e, err := s.stores.Events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.New(apperr.CodeNotFound, "event not found")
	}
	return e, nil
}

func (s *Service) checkGroup(ctx context.Context, f fieldErrors, id *int64) error {
	if id == nil {
		return nil
	}
	g, err := s.stores.Groups.GetByID(ctx, *id)
	if err != nil {
		return err
	}
	if g == nil {
		f.add("group_id", "does not exist")
	}
	return nil
}

// CreateEvent stores a new event owned by actorID with its date options, the
// listed invitees and the group's members as one unit. Invitations go out
// only after it commits.
func (s *Service) CreateEvent(ctx context.Context, actorID int64, in CreateEventInput) (*EventDetail, error) {
	f := fieldErrors{}
	f.requiredText("title", in.Title, maxTitleLen)
	f.requiredText("location", in.Location, maxLocationLen)
	f.requiredText("category", in.Category, maxCategoryLen)
	f.privacy("privacy", in.Privacy)
	for i, o := range in.DateOptions {
		f.dateOption(fmt.Sprintf("date_options.%d", i), o)
	}
	for i, id := range in.Invitees {
		u, err := s.stores.Users.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			f.add(fmt.Sprintf("invitees.%d", i), "does not exist")
		}
	}
	if err := s.checkGroup(ctx, f, in.GroupID); err != nil {
		return nil, err
	}
	if err := f.err(); err != nil {
		return nil, err
	}

	var members []int64
	if in.GroupID != nil {
		var err error
		members, err = s.stores.Groups.ListMemberIDs(ctx, *in.GroupID)
		if err != nil {
			return nil, err
		}
	}
	seeds := participant.SeedIDs(actorID, in.Invitees, members)

	options := make([]store.NewDateOption, 0, len(in.DateOptions))
	for _, o := range in.DateOptions {
		options = append(options, store.NewDateOption{ProposedDate: o.ProposedDate, ProposedTime: o.ProposedTime})
	}
	e, err := s.stores.Events.CreateSeeded(ctx, model.Event{
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Category:    in.Category,
		Privacy:     model.Privacy(in.Privacy),
		CreatedBy:   actorID,
		GroupID:     in.GroupID,
	}, options, seeds)
	if err != nil {
		return nil, err
	}
	s.logger.Info("event created", "event_id", e.ID, "created_by", actorID, "privacy", e.Privacy, "participants", len(seeds))
	s.lifecycle.Announce(ctx, e, seeds)

	return s.detail(ctx, e)
}

// ListEvents returns the events actorID may view, newest first.
func (s *Service) ListEvents(ctx context.Context, actorID int64, filter store.EventFilter) ([]model.Event, error) {
	events, err := s.stores.Events.ListVisible(ctx, actorID, s.policy.ViewerStatuses(), filter)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

func (s *Service) GetEvent(ctx context.Context, actorID, eventID int64) (*EventDetail, error) {
	e, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeView(ctx, actorID, e); err != nil {
		return nil, err
	}
	return s.detail(ctx, e)
}

func (s *Service) detail(ctx context.Context, e *model.Event) (*EventDetail, error) {
	d := &EventDetail{Event: *e}

	creator, err := s.stores.Users.GetByID(ctx, e.CreatedBy)
	if err != nil {
		return nil, err
	}
	d.Creator = creator

	if e.GroupID != nil {
		if d.Group, err = s.stores.Groups.GetByID(ctx, *e.GroupID); err != nil {
			return nil, err
		}
	}

	options, err := s.stores.Events.ListDateOptions(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	votes, err := s.stores.Votes.ListByEvent(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	byOption := make(map[int64][]model.Vote)
	for _, v := range votes {
		byOption[v.DateOptionID] = append(byOption[v.DateOptionID], v)
	}
	d.DateOptions = make([]OptionDetail, 0, len(options))
	for _, o := range options {
		od := OptionDetail{DateOption: o, Votes: byOption[o.ID]}
		if od.Votes == nil {
			od.Votes = []model.Vote{}
		}
		for _, v := range od.Votes {
			od.Points += v.Points
		}
		d.DateOptions = append(d.DateOptions, od)
		if e.BestDateID != nil && o.ID == *e.BestDateID {
			best := o
			d.BestDate = &best
		}
	}

	d.Participants, err = s.stores.Participants.ListByEvent(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if d.Participants == nil {
		d.Participants = []model.Participant{}
	}
	return d, nil
}

func (s *Service) UpdateEvent(ctx context.Context, actorID, eventID int64, in UpdateEventInput) (*model.Event, error) {
	e, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeMutate(actorID, e); err != nil {
		return nil, err
	}

	f := fieldErrors{}
	if in.Title != nil {
		f.requiredText("title", *in.Title, maxTitleLen)
		e.Title = *in.Title
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Location != nil {
		f.requiredText("location", *in.Location, maxLocationLen)
		e.Location = *in.Location
	}
	if in.Category != nil {
		f.requiredText("category", *in.Category, maxCategoryLen)
		e.Category = *in.Category
	}
	if in.Privacy != nil {
		f.privacy("privacy", *in.Privacy)
		e.Privacy = model.Privacy(*in.Privacy)
	}
	switch {
	case in.ClearGroup:
		e.GroupID = nil
	case in.GroupID != nil:
		if err := s.checkGroup(ctx, f, in.GroupID); err != nil {
			return nil, err
		}
		e.GroupID = in.GroupID
	}
	if err := f.err(); err != nil {
		return nil, err
	}

	updated, err := s.stores.Events.Update(ctx, *e)
	if err != nil {
		return nil, err
	}
	s.logger.Info("event updated", "event_id", e.ID)
	return updated, nil
}

func (s *Service) DeleteEvent(ctx context.Context, actorID, eventID int64) error {
	e, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.policy.AuthorizeMutate(actorID, e); err != nil {
		return err
	}
	if err := s.stores.Events.Delete(ctx, e.ID); err != nil {
		return err
	}
	s.logger.Info("event deleted", "event_id", e.ID)
	return nil
}

// AddDateOption appends a candidate date. Only the creator may propose dates.
func (s *Service) AddDateOption(ctx context.Context, actorID, eventID int64, in DateOptionInput) (*model.DateOption, error) {
	e, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeMutate(actorID, e); err != nil {
		return nil, err
	}
	f := fieldErrors{}
	f.dateOption("date_option", in)
	if err := f.err(); err != nil {
		return nil, err
	}
	return s.stores.Events.AddDateOption(ctx, e.ID, store.NewDateOption{
		ProposedDate: in.ProposedDate,
		ProposedTime: in.ProposedTime,
	})
}

// AddDateSeries appends the dates of a recurrence rule in one step. Only the
// creator may propose dates.
func (s *Service) AddDateSeries(ctx context.Context, actorID, eventID int64, in DateSeriesInput) ([]model.DateOption, error) {
	e, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeMutate(actorID, e); err != nil {
		return nil, err
	}
	f := fieldErrors{}
	days := f.series(in)
	if err := f.err(); err != nil {
		return nil, err
	}

	options := make([]store.NewDateOption, 0, len(days))
	for _, d := range days {
		options = append(options, store.NewDateOption{
			ProposedDate: d.Format(time.DateOnly),
			ProposedTime: in.ProposedTime,
		})
	}
	created, err := s.stores.Events.AddDateOptions(ctx, e.ID, options)
	if err != nil {
		return nil, err
	}
	s.logger.Info("date series added", "event_id", e.ID, "rule", in.Rule, "count", len(created))
	return created, nil
}

// Invite invites each address to the event and reports a per-address outcome.
// Addresses are matched case-insensitively against existing users.
func (s *Service) Invite(ctx context.Context, actorID, eventID int64, emails []string) (map[string]InviteOutcome, error) {
	e, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeMutate(actorID, e); err != nil {
		return nil, err
	}

	f := fieldErrors{}
	if len(emails) == 0 {
		f.add("emails", "is required")
	}
	for i, addr := range emails {
		if !validEmail(strings.TrimSpace(addr)) {
			f.add(fmt.Sprintf("emails.%d", i), "must be a valid email address")
		}
	}
	if err := f.err(); err != nil {
		return nil, err
	}

	results := make(map[string]InviteOutcome, len(emails))
	for _, addr := range emails {
		u, err := s.stores.Users.GetByEmail(ctx, addr)
		if err != nil {
			return nil, err
		}
		if u == nil {
			results[addr] = OutcomeUserNotFound
			continue
		}
		_, err = s.lifecycle.Invite(ctx, e, u.ID)
		switch {
		case errors.Is(err, apperr.ErrAlreadyInvited):
			results[addr] = OutcomeAlreadyInvited
		case err != nil:
			return nil, err
		default:
			results[addr] = OutcomeInvited
		}
	}
	return results, nil
}

// Respond records the actor's answer to an invitation. Any invited actor may
// respond, even one who cannot view the event yet.
func (s *Service) Respond(ctx context.Context, actorID, eventID int64, decision string) (*model.Participant, error) {
	e, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.lifecycle.Respond(ctx, e.ID, actorID, model.ParticipantStatus(decision))
}

func (s *Service) ListParticipants(ctx context.Context, actorID, eventID int64) ([]model.Participant, error) {
	e, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeView(ctx, actorID, e); err != nil {
		return nil, err
	}
	list, err := s.stores.Participants.ListByEvent(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Participant{}
	}
	return list, nil
}

// CastVote records the actor's vote on a date option of an event they may view.
func (s *Service) CastVote(ctx context.Context, actorID, dateOptionID int64, value string) (*tally.Result, error) {
	f := fieldErrors{}
	if _, ok := tally.Points(model.VoteValue(value)); !ok {
		f.add("vote", "must be yes, maybe or no")
	}
	option, err := s.stores.Events.GetDateOption(ctx, dateOptionID)
	if err != nil {
		return nil, err
	}
	if option == nil {
		f.add("date_option_id", "does not exist")
	}
	if err := f.err(); err != nil {
		return nil, err
	}

	e, err := s.loadEvent(ctx, option.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeView(ctx, actorID, e); err != nil {
		return nil, err
	}
	return s.tally.CastVote(ctx, e, option, actorID, model.VoteValue(value))
}

// BestDate returns the event's winning date option, or nil before any vote.
func (s *Service) BestDate(ctx context.Context, actorID, eventID int64) (*model.DateOption, error) {
	e, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeView(ctx, actorID, e); err != nil {
		return nil, err
	}
	return s.tally.BestDate(ctx, e)
}
