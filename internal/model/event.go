package model

import "time"

type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

func (p Privacy) Valid() bool {
	return p == PrivacyPublic || p == PrivacyPrivate
}

type Event struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Privacy     Privacy   `json:"privacy"`
	CreatedBy   int64     `json:"created_by"`
	GroupID     *int64    `json:"group_id"`
	BestDateID  *int64    `json:"best_date_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DateOption is a candidate date proposed for an event. ProposedDate is
// YYYY-MM-DD; ProposedTime, when set, is HH:MM or HH:MM:SS.
type DateOption struct {
	ID           int64     `json:"id"`
	EventID      int64     `json:"event_id"`
	ProposedDate string    `json:"proposed_date"`
	ProposedTime *string   `json:"proposed_time"`
	CreatedAt    time.Time `json:"created_at"`
}

// OptionScore is the folded point total of one date option.
type OptionScore struct {
	DateOptionID int64 `json:"date_option_id"`
	Points       int   `json:"points"`
	Votes        int   `json:"votes"`
}
