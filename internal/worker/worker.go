package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/notifications"
	"github.com/aura-live/backend/pkg/queue"
)

// dequeueTimeout bounds one blocking pop so the loop notices cancellation.
const dequeueTimeout = 5 * time.Second

// JobQueue is the part of *queue.Queue the processor uses.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, string, error)
	Retry(ctx context.Context, key string, job *queue.Job) error
}

// NotificationProcessor fans "went live" jobs out into follower notifications.
type NotificationProcessor struct {
	store   notifications.Store
	queue   JobQueue
	logger  *zap.Logger
	backoff time.Duration
}

// NewNotificationProcessor creates a follower notification processor.
func NewNotificationProcessor(store notifications.Store, q JobQueue, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{store: store, queue: q, logger: logger, backoff: queue.RetryBackoff}
}

// Process executes one notify-followers job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotifyFollowers {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotifyFollowersPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	n, err := notifications.FanOut(ctx, p.store, payload)
	if err != nil {
		return err
	}
	p.logger.Info("followers notified",
		zap.String("session_id", payload.SessionID.String()),
		zap.String("broadcaster_id", payload.BroadcasterID.String()),
		zap.Int("followers", n))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, key, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, key, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *NotificationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
