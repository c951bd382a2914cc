package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one live chat line. Messages are never edited; moderation deletes them.
type ChatMessage struct {
	ID                uuid.UUID `json:"id"`
	SessionID         uuid.UUID `json:"session_id"`
	AuthorID          uuid.UUID `json:"author_id"`
	AuthorDisplayName string    `json:"author_name"`
	AuthorAvatar      string    `json:"author_avatar,omitempty"`
	Text              string    `json:"text"`
	CreatedAt         time.Time `json:"created_at"`
}

// ChatTimeout blocks a user from posting in one session until TimeoutUntil.
type ChatTimeout struct {
	SessionID    uuid.UUID `json:"session_id"`
	UserID       uuid.UUID `json:"user_id"`
	TimeoutUntil time.Time `json:"timeout_until"`
	IssuedBy     uuid.UUID `json:"issued_by"`
}

// Active reports whether the timeout still blocks posting at now.
func (t ChatTimeout) Active(now time.Time) bool {
	return now.Before(t.TimeoutUntil)
}
