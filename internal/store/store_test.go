package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/togetherplan/internal/database"
	"github.com/dukerupert/togetherplan/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), email, email)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func createTestEvent(t *testing.T, db *sql.DB, creatorID int64, privacy model.Privacy, dates ...string) (*model.Event, []model.DateOption) {
	t.Helper()
	ctx := context.Background()
	es := NewEventStore(db)

	var options []NewDateOption
	for _, d := range dates {
		options = append(options, NewDateOption{ProposedDate: d})
	}
	e, err := es.Create(ctx, model.Event{
		Title:     "Picnic",
		Location:  "Riverside Park",
		Category:  "outdoor",
		Privacy:   privacy,
		CreatedBy: creatorID,
	}, options)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	opts, err := es.ListDateOptions(ctx, e.ID)
	if err != nil {
		t.Fatalf("list date options: %v", err)
	}
	return e, opts
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "?"},
		{3, "?, ?, ?"},
	}
	for _, tt := range tests {
		if got := placeholders(tt.n); got != tt.want {
			t.Errorf("placeholders(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestContainsPatternEscapes(t *testing.T) {
	if got := containsPattern(`50%_off\`); got != `%50\%\_off\\%` {
		t.Errorf("containsPattern = %q", got)
	}
}
