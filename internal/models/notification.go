package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationTypeLive is sent to followers when a broadcaster goes live.
const NotificationTypeLive = "live"

// Notification is an in-app notification for one user.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Type      string     `json:"type"`
	ActorID   uuid.UUID  `json:"actor_id"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Read      bool       `json:"read"`
	CreatedAt time.Time  `json:"created_at"`
}
