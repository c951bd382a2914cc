package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/queue"
)

// Store is what the fan-out needs from persistence. *Repository implements it.
type Store interface {
	FollowerIDs(ctx context.Context, broadcasterID uuid.UUID) ([]uuid.UUID, error)
	InsertMany(ctx context.Context, ns []models.Notification) error
}

// LiveTitle is the notification title shown to followers.
func LiveTitle(broadcasterName string) string {
	return broadcasterName + " is live!"
}

// FanOut writes one "live" notification per follower of the payload's broadcaster
// and returns how many followers were targeted.
func FanOut(ctx context.Context, store Store, p queue.NotifyFollowersPayload) (int, error) {
	followers, err := store.FollowerIDs(ctx, p.BroadcasterID)
	if err != nil {
		return 0, err
	}
	sessionID := p.SessionID
	ns := make([]models.Notification, 0, len(followers))
	for _, id := range followers {
		if id == p.BroadcasterID {
			continue
		}
		ns = append(ns, models.Notification{
			UserID:    id,
			Type:      models.NotificationTypeLive,
			ActorID:   p.BroadcasterID,
			SessionID: &sessionID,
			Title:     LiveTitle(p.BroadcasterName),
			Message:   p.Title,
		})
	}
	if err := store.InsertMany(ctx, ns); err != nil {
		return 0, fmt.Errorf("fan out live notification: %w", err)
	}
	return len(ns), nil
}
