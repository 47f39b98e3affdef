package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/togetherplan/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `id, title, description, location, category, privacy, created_by, group_id, best_date_id, created_at, updated_at`

func scanEvent(row scanner) (*model.Event, error) {
	var e model.Event
	var groupID, bestDateID sql.NullInt64
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Category, &e.Privacy,
		&e.CreatedBy, &groupID, &bestDateID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if groupID.Valid {
		e.GroupID = &groupID.Int64
	}
	if bestDateID.Valid {
		e.BestDateID = &bestDateID.Int64
	}
	return &e, nil
}

const dateOptionCols = `id, event_id, proposed_date, proposed_time, created_at`

func scanDateOption(row scanner) (*model.DateOption, error) {
	var o model.DateOption
	var proposedTime sql.NullString
	if err := row.Scan(&o.ID, &o.EventID, &o.ProposedDate, &proposedTime, &o.CreatedAt); err != nil {
		return nil, err
	}
	if proposedTime.Valid {
		o.ProposedTime = &proposedTime.String
	}
	return &o, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// NewDateOption is a candidate date to insert.
type NewDateOption struct {
	ProposedDate string
	ProposedTime *string
}

// Create inserts the event and its initial date options in one transaction.
func (s *EventStore) Create(ctx context.Context, e model.Event, options []NewDateOption) (*model.Event, error) {
	return s.CreateSeeded(ctx, e, options, nil)
}

// CreateSeeded inserts the event, its date options and an invited
// participant for each of seedUserIDs in one transaction. seedUserIDs must
// be distinct; a failed insert leaves nothing behind.
func (s *EventStore) CreateSeeded(ctx context.Context, e model.Event, options []NewDateOption, seedUserIDs []int64) (*model.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO events (title, description, location, category, privacy, created_by, group_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Title, e.Description, e.Location, e.Category, string(e.Privacy), e.CreatedBy, nullInt64(e.GroupID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, o := range options {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO date_options (event_id, proposed_date, proposed_time) VALUES (?, ?, ?)`,
			id, o.ProposedDate, nullString(o.ProposedTime),
		); err != nil {
			return nil, fmt.Errorf("insert date option %s: %w", o.ProposedDate, err)
		}
	}

	for _, userID := range seedUserIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (event_id, user_id, status) VALUES (?, ?, ?)`,
			id, userID, string(model.StatusInvited),
		); err != nil {
			return nil, fmt.Errorf("insert participant %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *EventStore) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// EventFilter narrows ListVisible. Location matches as a substring, Category exactly.
type EventFilter struct {
	Location string
	Category string
}

// ListVisible returns events the actor may view, newest first: public events,
// events the actor created, and private events where the actor's participant
// status is one of viewerStatuses.
func (s *EventStore) ListVisible(ctx context.Context, actorID int64, viewerStatuses []model.ParticipantStatus, f EventFilter) ([]model.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events e
		 WHERE (e.privacy = 'public' OR e.created_by = ?`
	args := []any{actorID}
	if len(viewerStatuses) > 0 {
		query += ` OR EXISTS (SELECT 1 FROM participants p
		            WHERE p.event_id = e.id AND p.user_id = ? AND p.status IN (` + placeholders(len(viewerStatuses)) + `))`
		args = append(args, actorID)
		for _, st := range viewerStatuses {
			args = append(args, string(st))
		}
	}
	query += `)`
	if f.Location != "" {
		query += ` AND e.location LIKE ? ESCAPE '\'`
		args = append(args, containsPattern(f.Location))
	}
	if f.Category != "" {
		query += ` AND e.category = ?`
		args = append(args, f.Category)
	}
	query += ` ORDER BY e.created_at DESC, e.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Update writes the creator-editable fields. best_date_id is owned by the
// vote tally and is never written here.
func (s *EventStore) Update(ctx context.Context, e model.Event) (*model.Event, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events
		 SET title = ?, description = ?, location = ?, category = ?, privacy = ?, group_id = ?
		 WHERE id = ?`,
		e.Title, e.Description, e.Location, e.Category, string(e.Privacy), nullInt64(e.GroupID), e.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return s.GetByID(ctx, e.ID)
}

// Delete removes the event; date options, participants and votes cascade.
func (s *EventStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func (s *EventStore) AddDateOption(ctx context.Context, eventID int64, o NewDateOption) (*model.DateOption, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO date_options (event_id, proposed_date, proposed_time) VALUES (?, ?, ?)`,
		eventID, o.ProposedDate, nullString(o.ProposedTime),
	)
	if err != nil {
		return nil, fmt.Errorf("insert date option: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetDateOption(ctx, id)
}

// AddDateOptions inserts several options atomically and returns them in
// insertion order.
func (s *EventStore) AddDateOptions(ctx context.Context, eventID int64, options []NewDateOption) ([]model.DateOption, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(options))
	for _, o := range options {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO date_options (event_id, proposed_date, proposed_time) VALUES (?, ?, ?)`,
			eventID, o.ProposedDate, nullString(o.ProposedTime),
		)
		if err != nil {
			return nil, fmt.Errorf("insert date option %s: %w", o.ProposedDate, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit date options: %w", err)
	}

	out := make([]model.DateOption, 0, len(ids))
	for _, id := range ids {
		o, err := s.GetDateOption(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *EventStore) GetDateOption(ctx context.Context, id int64) (*model.DateOption, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dateOptionCols+` FROM date_options WHERE id = ?`, id)
	o, err := scanDateOption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get date option: %w", err)
	}
	return o, nil
}

// ListDateOptions returns the event's options in id order.
func (s *EventStore) ListDateOptions(ctx context.Context, eventID int64) ([]model.DateOption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dateOptionCols+` FROM date_options WHERE event_id = ? ORDER BY id ASC`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list date options: %w", err)
	}
	defer rows.Close()

	var options []model.DateOption
	for rows.Next() {
		o, err := scanDateOption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan date option: %w", err)
		}
		options = append(options, *o)
	}
	return options, rows.Err()
}

// ListWithBestDateCreatedOn returns events created on the given UTC calendar
// day that have a best date.
func (s *EventStore) ListWithBestDateCreatedOn(ctx context.Context, day time.Time) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM events
		 WHERE best_date_id IS NOT NULL AND date(created_at) = ?
		 ORDER BY id ASC`,
		day.UTC().Format("2006-01-02"),
	)
	if err != nil {
		return nil, fmt.Errorf("list events by creation day: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
