package models

import (
	"time"

	"github.com/google/uuid"
)

// Tip is a completed payment from a viewer to a broadcaster. Capture happens in the payment provider.
type Tip struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   *uuid.UUID `json:"session_id,omitempty"`
	FromUserID  uuid.UUID  `json:"from_user_id"`
	ToUserID    uuid.UUID  `json:"to_user_id"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	CreatedAt   time.Time  `json:"created_at"`
}
