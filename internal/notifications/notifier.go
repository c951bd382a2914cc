package notifications

import (
	"context"

	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/queue"
)

// Enqueuer accepts follower notification jobs. *queue.Queue implements it.
type Enqueuer interface {
	EnqueueNotifyFollowers(ctx context.Context, payload queue.NotifyFollowersPayload) error
}

// Notifier hands "went live" notifications to the worker.
type Notifier struct {
	q Enqueuer
}

// NewNotifier creates a notifier backed by the job queue.
func NewNotifier(q Enqueuer) *Notifier {
	return &Notifier{q: q}
}

// NotifyLive enqueues one fan-out job for the session's broadcaster.
func (n *Notifier) NotifyLive(ctx context.Context, s models.StreamSession) error {
	return n.q.EnqueueNotifyFollowers(ctx, queue.NotifyFollowersPayload{
		SessionID:       s.ID,
		BroadcasterID:   s.BroadcasterID,
		BroadcasterName: s.BroadcasterName,
		Title:           s.Title,
	})
}
