package model

import "time"

type ParticipantStatus string

const (
	StatusInvited  ParticipantStatus = "invited"
	StatusAccepted ParticipantStatus = "accepted"
	StatusDeclined ParticipantStatus = "declined"
)

type Participant struct {
	ID        int64             `json:"id"`
	EventID   int64             `json:"event_id"`
	UserID    int64             `json:"user_id"`
	Status    ParticipantStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
