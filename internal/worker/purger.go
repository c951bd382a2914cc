package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredTimeoutStore deletes moderation timeouts that have run out.
type ExpiredTimeoutStore interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// TimeoutPurger periodically removes expired chat timeouts.
type TimeoutPurger struct {
	store    ExpiredTimeoutStore
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewTimeoutPurger creates a purger that runs every interval.
func NewTimeoutPurger(store ExpiredTimeoutStore, interval time.Duration, logger *zap.Logger) *TimeoutPurger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &TimeoutPurger{store: store, interval: interval, now: time.Now, logger: logger}
}

// PurgeOnce removes expired timeouts and returns how many were dropped.
func (p *TimeoutPurger) PurgeOnce(ctx context.Context) (int64, error) {
	n, err := p.store.PurgeExpired(ctx, p.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("expired chat timeouts purged", zap.Int64("count", n))
	}
	return n, nil
}

// Run purges on every tick until ctx is done.
func (p *TimeoutPurger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("timeout purger stopping")
			return
		case <-ticker.C:
			if _, err := p.PurgeOnce(ctx); err != nil {
				p.logger.Warn("purge chat timeouts", zap.Error(err))
			}
		}
	}
}
