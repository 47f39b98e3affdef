// Package tally records weighted votes on date options and ranks an event's
// options to pick its best date.
package tally

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukerupert/togetherplan/internal/apperr"
	"github.com/dukerupert/togetherplan/internal/model"
	"github.com/dukerupert/togetherplan/internal/notify"
	"github.com/dukerupert/togetherplan/internal/store"
)

// Points returns the fixed weight of a vote value: yes 2, maybe 1, no 0.
func Points(v model.VoteValue) (int, bool) {
	switch v {
	case model.VoteYes:
		return 2, true
	case model.VoteMaybe:
		return 1, true
	case model.VoteNo:
		return 0, true
	default:
		return 0, false
	}
}

// Rank orders scores by points descending, then option id ascending. Options
// without votes are dropped. The input is not modified.
func Rank(scores []model.OptionScore) []model.OptionScore {
	ranked := make([]model.OptionScore, 0, len(scores))
	for _, s := range scores {
		if s.Votes > 0 {
			ranked = append(ranked, s)
		}
	}
	slices.SortFunc(ranked, func(a, b model.OptionScore) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.DateOptionID, b.DateOptionID)
	})
	return ranked
}

// SelectBest returns the top ranked option, or false when no option has a vote.
func SelectBest(scores []model.OptionScore) (int64, bool) {
	ranked := Rank(scores)
	if len(ranked) == 0 {
		return 0, false
	}
	return ranked[0].DateOptionID, true
}

// VoteStore persists votes. Cast must insert, re-score and update the event
// atomically, failing with store.ErrConflict on a repeated (user, option).
type VoteStore interface {
	Cast(ctx context.Context, v model.Vote, pick store.SelectFunc) (*store.CastResult, error)
	Scores(ctx context.Context, eventID int64) ([]model.OptionScore, error)
}

// OptionStore loads date options.
type OptionStore interface {
	GetDateOption(ctx context.Context, id int64) (*model.DateOption, error)
}

// Result is a recorded vote with the event's best date after it.
type Result struct {
	Vote            model.Vote `json:"vote"`
	BestDateID      *int64     `json:"best_date_id"`
	BestDateChanged bool       `json:"best_date_changed"`
}

type Engine struct {
	votes      VoteStore
	options    OptionStore
	dispatcher notify.Dispatcher
	logger     *slog.Logger
}

func NewEngine(votes VoteStore, options OptionStore, d notify.Dispatcher, logger *slog.Logger) *Engine {
	return &Engine{votes: votes, options: options, dispatcher: d, logger: logger}
}

// CastVote records userID's vote on option and recomputes the best date of e.
// Voting is write-once per (user, option): a repeat returns DuplicateVote.
func (en *Engine) CastVote(ctx context.Context, e *model.Event, option *model.DateOption, userID int64, value model.VoteValue) (*Result, error) {
	points, ok := Points(value)
	if !ok {
		return nil, apperr.Validation(map[string]string{"vote": "must be yes, maybe or no"})
	}
	if option.EventID != e.ID {
		return nil, apperr.Validation(map[string]string{"date_option_id": "does not belong to this event"})
	}

	res, err := en.votes.Cast(ctx, model.Vote{
		UserID:       userID,
		EventID:      e.ID,
		DateOptionID: option.ID,
		Value:        value,
		Points:       points,
	}, SelectBest)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.ErrDuplicateVote
	}
	if err != nil {
		return nil, fmt.Errorf("cast vote: %w", err)
	}

	en.logger.Info("vote cast",
		"event_id", e.ID, "date_option_id", option.ID, "user_id", userID, "vote", value)

	if res.Changed {
		en.logger.Info("best date changed", "event_id", e.ID, "best_date_id", *res.BestDateID)
		data := map[string]any{"best_date_id": *res.BestDateID}
		if best, err := en.options.GetDateOption(ctx, *res.BestDateID); err == nil && best != nil {
			data["proposed_date"] = best.ProposedDate
			if best.ProposedTime != nil {
				data["proposed_time"] = *best.ProposedTime
			}
		}
		en.dispatcher.Dispatch(ctx, notify.Message{
			RecipientID: e.CreatedBy,
			Kind:        notify.KindBestDateChanged,
			EventID:     e.ID,
			Title:       e.Title,
			Data:        data,
		})
	}

	return &Result{Vote: res.Vote, BestDateID: res.BestDateID, BestDateChanged: res.Changed}, nil
}

// BestDate ranks e's votes and returns the winning option. With no voted
// options it falls back to the stored best date, which is never cleared, and
// returns nil when there is none.
func (en *Engine) BestDate(ctx context.Context, e *model.Event) (*model.DateOption, error) {
	scores, err := en.votes.Scores(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	id, ok := SelectBest(scores)
	if !ok {
		if e.BestDateID == nil {
			return nil, nil
		}
		id = *e.BestDateID
	}
	o, err := en.options.GetDateOption(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load best date: %w", err)
	}
	return o, nil
}
