// Package digest emails event creators the best date of events created the
// previous day.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/togetherplan/internal/calendar"
	"github.com/dukerupert/togetherplan/internal/model"
)

type EventSource interface {
	ListWithBestDateCreatedOn(ctx context.Context, day time.Time) ([]model.Event, error)
	GetDateOption(ctx context.Context, id int64) (*model.DateOption, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// SendLog records sent mails so a day's digest reaches each creator once
// across restarts and separate processes.
type SendLog interface {
	MarkSent(ctx context.Context, eventID int64) (bool, error)
	UnmarkSent(ctx context.Context, eventID int64) error
}

type Sender interface {
	SendBestDate(ctx context.Context, toEmail string, eventID int64, title, when string) error
}

type Runner struct {
	events EventSource
	users  UserLookup
	sends  SendLog
	sender Sender
	logger *slog.Logger
}

func NewRunner(events EventSource, users UserLookup, sends SendLog, sender Sender, logger *slog.Logger) *Runner {
	return &Runner{events: events, users: users, sends: sends, sender: sender, logger: logger}
}

// Run mails the creator of every event created on day (UTC) that has a best
// date, skipping events already mailed. A failed event does not stop the
// others; failures are joined into the returned error and those events stay
// unmarked for the next run. It returns how many mails were sent.
func (r *Runner) Run(ctx context.Context, day time.Time) (int, error) {
	events, err := r.events.ListWithBestDateCreatedOn(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	sent, skipped := 0, 0
	var errs []error
	for i := range events {
		e := &events[i]
		claimed, err := r.sends.MarkSent(ctx, e.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !claimed {
			skipped++
			continue
		}
		if err := r.send(ctx, e); err != nil {
			r.logger.Error("send best date", "error", err, "event_id", e.ID)
			errs = append(errs, err)
			if err := r.sends.UnmarkSent(ctx, e.ID); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		sent++
	}
	r.logger.Info("best date digest done", "day", day.UTC().Format(time.DateOnly), "events", len(events), "sent", sent, "skipped", skipped)
	return sent, errors.Join(errs...)
}

func (r *Runner) send(ctx context.Context, e *model.Event) error {
	best, err := r.events.GetDateOption(ctx, *e.BestDateID)
	if err != nil {
		return err
	}
	if best == nil {
		return fmt.Errorf("event %d: best date %d not found", e.ID, *e.BestDateID)
	}
	creator, err := r.users.GetByID(ctx, e.CreatedBy)
	if err != nil {
		return err
	}
	if creator == nil {
		return fmt.Errorf("event %d: creator %d not found", e.ID, e.CreatedBy)
	}
	return r.sender.SendBestDate(ctx, creator.Email, e.ID, e.Title, calendar.Format(best))
}

// Scheduler runs the digest for the previous UTC day once per day.
type Scheduler struct {
	mu       sync.RWMutex
	runner   *Runner
	interval time.Duration
	now      func() time.Time
	lastDay  string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler checks every interval whether a new day has started.
func NewScheduler(runner *Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		now:      time.Now,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// tick runs the digest for yesterday until one run succeeds. Later ticks
// that day are no-ops; a failed run is retried on the next tick.
func (s *Scheduler) tick(ctx context.Context) {
	today := s.now().UTC()
	key := today.Format(time.DateOnly)
	if key == s.lastDay {
		return
	}
	if _, err := s.runner.Run(ctx, today.AddDate(0, 0, -1)); err != nil {
		s.runner.logger.Warn("best date digest incomplete, retrying next tick", "error", err)
		return
	}
	s.lastDay = key
}
