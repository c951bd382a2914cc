package models

import (
	"time"

	"github.com/google/uuid"
)

// Viewer is a presence entry keyed by (session, user).
type Viewer struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}
