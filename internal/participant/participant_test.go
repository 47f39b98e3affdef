package participant

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukerupert/togetherplan/internal/apperr"
	"github.com/dukerupert/togetherplan/internal/database"
	"github.com/dukerupert/togetherplan/internal/model"
	"github.com/dukerupert/togetherplan/internal/notify"
	"github.com/dukerupert/togetherplan/internal/store"
)

type recorder struct{ msgs []notify.Message }

func (r *recorder) Dispatch(_ context.Context, msg notify.Message) { r.msgs = append(r.msgs, msg) }

type fixture struct {
	db        *sql.DB
	lifecycle *Lifecycle
	store     *store.ParticipantStore
	sent      *recorder
	event     *model.Event
	creator   *model.User
	bob       *model.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	users := store.NewUserStore(db)
	alice, _ := users.Create(ctx, "alice@example.com", "Alice")
	bob, _ := users.Create(ctx, "bob@example.com", "Bob")

	e, err := store.NewEventStore(db).Create(ctx, model.Event{
		Title: "Picnic", Location: "Park", Category: "outdoor",
		Privacy: model.PrivacyPrivate, CreatedBy: alice.ID,
	}, nil)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	ps := store.NewParticipantStore(db)
	rec := &recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		db:        db,
		lifecycle: NewLifecycle(ps, rec, logger),
		store:     ps,
		sent:      rec,
		event:     e,
		creator:   alice,
		bob:       bob,
	}
}

func TestInviteTwice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.lifecycle.Invite(ctx, f.event, f.bob.ID)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if p.Status != model.StatusInvited {
		t.Errorf("status = %q, want invited", p.Status)
	}

	_, err = f.lifecycle.Invite(ctx, f.event, f.bob.ID)
	if !errors.Is(err, apperr.ErrAlreadyInvited) {
		t.Fatalf("second invite err = %v, want AlreadyInvited", err)
	}

	list, _ := f.store.ListByEvent(ctx, f.event.ID)
	if len(list) != 1 {
		t.Errorf("participants = %d, want 1", len(list))
	}
	if len(f.sent.msgs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.sent.msgs))
	}
	msg := f.sent.msgs[0]
	if msg.Kind != notify.KindEventInvitation || msg.RecipientID != f.bob.ID || msg.EventID != f.event.ID || msg.Title != "Picnic" {
		t.Errorf("message = %+v", msg)
	}
}

func TestInviteDoesNotChangeExistingStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.lifecycle.Invite(ctx, f.event, f.bob.ID)
	f.lifecycle.Respond(ctx, f.event.ID, f.bob.ID, model.StatusDeclined)
	f.lifecycle.Invite(ctx, f.event, f.bob.ID)

	p, _ := f.store.Get(ctx, f.event.ID, f.bob.ID)
	if p.Status != model.StatusDeclined {
		t.Errorf("status = %q, want declined", p.Status)
	}
}

func TestRespondNotInvited(t *testing.T) {
	f := setup(t)

	_, err := f.lifecycle.Respond(context.Background(), f.event.ID, f.bob.ID, model.StatusAccepted)
	if !errors.Is(err, apperr.ErrNotInvited) {
		t.Fatalf("err = %v, want NotInvited", err)
	}
}

func TestRespondOverwrites(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.lifecycle.Invite(ctx, f.event, f.bob.ID)

	for _, decision := range []model.ParticipantStatus{model.StatusAccepted, model.StatusDeclined, model.StatusAccepted} {
		p, err := f.lifecycle.Respond(ctx, f.event.ID, f.bob.ID, decision)
		if err != nil {
			t.Fatalf("respond %s: %v", decision, err)
		}
		if p.Status != decision {
			t.Errorf("status = %q, want %q", p.Status, decision)
		}
	}
}

func TestRespondRejectsInvitedDecision(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.lifecycle.Invite(ctx, f.event, f.bob.ID)

	_, err := f.lifecycle.Respond(ctx, f.event.ID, f.bob.ID, model.StatusInvited)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want Validation", err)
	}
}

func TestSeedFromGroupSkipsCreatorAndExisting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	carol, _ := store.NewUserStore(f.db).Create(ctx, "carol@example.com", "Carol")

	f.lifecycle.Invite(ctx, f.event, f.bob.ID)
	f.sent.msgs = nil

	seeded, err := f.lifecycle.SeedFromGroup(ctx, f.event, []int64{f.creator.ID, f.bob.ID, carol.ID})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(seeded) != 1 || seeded[0].UserID != carol.ID {
		t.Errorf("seeded = %+v, want only carol", seeded)
	}
	if len(f.sent.msgs) != 1 || f.sent.msgs[0].RecipientID != carol.ID {
		t.Errorf("notifications = %+v, want one for carol", f.sent.msgs)
	}
	if p, _ := f.store.Get(ctx, f.event.ID, f.creator.ID); p != nil {
		t.Error("creator should not be a participant")
	}
}

func TestSeedIDs(t *testing.T) {
	got := SeedIDs(1, []int64{2, 1, 3, 2}, []int64{4, 3, 1})
	want := []int64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("SeedIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SeedIDs = %v, want %v", got, want)
			break
		}
	}

	if got := SeedIDs(1, nil, []int64{1}); len(got) != 0 {
		t.Errorf("SeedIDs with only the creator = %v, want empty", got)
	}
}
