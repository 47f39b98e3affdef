package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/togetherplan/internal/model"
)

type VoteStore struct {
	db *sql.DB
}

func NewVoteStore(db *sql.DB) *VoteStore {
	return &VoteStore{db: db}
}

const voteCols = `id, user_id, event_id, date_option_id, vote, points, created_at`

func scanVote(row scanner) (*model.Vote, error) {
	var v model.Vote
	err := row.Scan(&v.ID, &v.UserID, &v.EventID, &v.DateOptionID, &v.Value, &v.Points, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SelectFunc picks the best option from an event's scores. ok is false when
// there is no candidate.
type SelectFunc func(scores []model.OptionScore) (bestID int64, ok bool)

// CastResult is the outcome of a committed vote.
type CastResult struct {
	Vote       model.Vote
	BestDateID *int64
	// Changed reports whether the event's best date was written by this vote.
	Changed bool
}

// Cast inserts v, re-scores every option of v's event, and stores the option
// chosen by pick as the event's best date, all in one transaction. A second
// vote by the same user on the same option fails with ErrConflict.
func (s *VoteStore) Cast(ctx context.Context, v model.Vote, pick SelectFunc) (*CastResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO votes (user_id, event_id, date_option_id, vote, points) VALUES (?, ?, ?, ?, ?)`,
		v.UserID, v.EventID, v.DateOptionID, string(v.Value), v.Points,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert vote: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	scores, err := queryScores(ctx, tx, v.EventID)
	if err != nil {
		return nil, err
	}

	var current sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT best_date_id FROM events WHERE id = ?`, v.EventID).Scan(&current); err != nil {
		return nil, fmt.Errorf("get best date: %w", err)
	}

	res := &CastResult{}
	if current.Valid {
		res.BestDateID = &current.Int64
	}
	if bestID, ok := pick(scores); ok && (!current.Valid || current.Int64 != bestID) {
		if _, err := tx.ExecContext(ctx,
			`UPDATE events SET best_date_id = ? WHERE id = ?`, bestID, v.EventID,
		); err != nil {
			return nil, fmt.Errorf("update best date: %w", err)
		}
		res.BestDateID = &bestID
		res.Changed = true
	}

	row := tx.QueryRowContext(ctx, `SELECT `+voteCols+` FROM votes WHERE id = ?`, id)
	vote, err := scanVote(row)
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	res.Vote = *vote

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit vote: %w", err)
	}
	return res, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryScores sums points per date option of the event. Options without votes
// are omitted.
func queryScores(ctx context.Context, q queryer, eventID int64) ([]model.OptionScore, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT v.date_option_id, SUM(v.points), COUNT(*)
		 FROM votes v
		 JOIN date_options o ON o.id = v.date_option_id
		 WHERE o.event_id = ?
		 GROUP BY v.date_option_id
		 ORDER BY v.date_option_id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var scores []model.OptionScore
	for rows.Next() {
		var sc model.OptionScore
		if err := rows.Scan(&sc.DateOptionID, &sc.Points, &sc.Votes); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

// Scores returns the folded point totals of the event's voted options.
func (s *VoteStore) Scores(ctx context.Context, eventID int64) ([]model.OptionScore, error) {
	return queryScores(ctx, s.db, eventID)
}

func (s *VoteStore) ListByEvent(ctx context.Context, eventID int64) ([]model.Vote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+voteCols+` FROM votes WHERE event_id = ? ORDER BY id ASC`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []model.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, *v)
	}
	return votes, rows.Err()
}
