package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/togetherplan/internal/model"
)

type ParticipantStore struct {
	db *sql.DB
}

func NewParticipantStore(db *sql.DB) *ParticipantStore {
	return &ParticipantStore{db: db}
}

const participantCols = `id, event_id, user_id, status, created_at, updated_at`

func scanParticipant(row scanner) (*model.Participant, error) {
	var p model.Participant
	err := row.Scan(&p.ID, &p.EventID, &p.UserID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a participant. A second record for the same (event, user)
// fails with ErrConflict.
func (s *ParticipantStore) Create(ctx context.Context, eventID, userID int64, status model.ParticipantStatus) (*model.Participant, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (event_id, user_id, status) VALUES (?, ?, ?)`,
		eventID, userID, string(status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert participant: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ParticipantStore) GetByID(ctx context.Context, id int64) (*model.Participant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+participantCols+` FROM participants WHERE id = ?`, id)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// Get returns the participant record of userID on eventID, or nil.
func (s *ParticipantStore) Get(ctx context.Context, eventID, userID int64) (*model.Participant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE event_id = ? AND user_id = ?`,
		eventID, userID,
	)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (s *ParticipantStore) UpdateStatus(ctx context.Context, id int64, status model.ParticipantStatus) (*model.Participant, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET status = ? WHERE id = ?`, string(status), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update participant status: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ParticipantStore) ListByEvent(ctx context.Context, eventID int64) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE event_id = ? ORDER BY id ASC`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}
