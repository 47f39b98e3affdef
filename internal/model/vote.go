package model

import "time"

type VoteValue string

const (
	VoteYes   VoteValue = "yes"
	VoteMaybe VoteValue = "maybe"
	VoteNo    VoteValue = "no"
)

type Vote struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	EventID      int64     `json:"event_id"`
	DateOptionID int64     `json:"date_option_id"`
	Value        VoteValue `json:"vote"`
	Points       int       `json:"points"`
	CreatedAt    time.Time `json:"created_at"`
}
