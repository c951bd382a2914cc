package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/models"
)

const (
	eventChanged = "changed"

	// keyTTL bounds how long presence outlives a session whose Clear never ran.
	keyTTL = 24 * time.Hour
)

// Bus notifies every instance that presence changed. realtime.RedisPubSub implements it.
type Bus interface {
	PublishSessionEvent(ctx context.Context, sessionID uuid.UUID, event string, payload []byte) error
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Registry keeps presence in Redis: a hash of attached viewers and a set of every
// user ever seen, per session. Keys share a hash tag so they land on one cluster slot.
type Registry struct {
	client *redis.Client
	bus    Bus
	logger *zap.Logger
}

// NewRegistry creates a Redis presence registry.
func NewRegistry(client *redis.Client, bus Bus, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{client: client, bus: bus, logger: logger}
}

func viewersKey(sessionID uuid.UUID) string { return fmt.Sprintf("live:presence:{%s}", sessionID) }
func seenKey(sessionID uuid.UUID) string    { return fmt.Sprintf("live:seen:{%s}", sessionID) }

// Add inserts or refreshes the viewer entry.
func (r *Registry) Add(ctx context.Context, sessionID uuid.UUID, v models.Viewer) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode viewer: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, viewersKey(sessionID), v.UserID.String(), body)
	pipe.SAdd(ctx, seenKey(sessionID), v.UserID.String())
	pipe.Expire(ctx, viewersKey(sessionID), keyTTL)
	pipe.Expire(ctx, seenKey(sessionID), keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add viewer: %w", err)
	}
	r.changed(ctx, sessionID)
	return nil
}

// Remove deletes the viewer entry if present.
func (r *Registry) Remove(ctx context.Context, sessionID, userID uuid.UUID) error {
	n, err := r.client.HDel(ctx, viewersKey(sessionID), userID.String()).Result()
	if err != nil {
		return fmt.Errorf("remove viewer: %w", err)
	}
	if n > 0 {
		r.changed(ctx, sessionID)
	}
	return nil
}

// Count returns the number of attached viewers.
func (r *Registry) Count(ctx context.Context, sessionID uuid.UUID) (int, error) {
	n, err := r.client.HLen(ctx, viewersKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count viewers: %w", err)
	}
	return int(n), nil
}

// UniqueCount returns how many distinct users ever joined.
func (r *Registry) UniqueCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	n, err := r.client.SCard(ctx, seenKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count unique viewers: %w", err)
	}
	return int(n), nil
}

// List returns attached viewers ordered by join time. Undecodable entries are skipped.
func (r *Registry) List(ctx context.Context, sessionID uuid.UUID) ([]models.Viewer, error) {
	vals, err := r.client.HVals(ctx, viewersKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list viewers: %w", err)
	}
	out := make([]models.Viewer, 0, len(vals))
	for _, raw := range vals {
		var v models.Viewer
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			r.logger.Warn("skip malformed presence entry", zap.String("session_id", sessionID.String()), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// Subscribe calls onChange whenever presence of sessionID changes on any instance.
func (r *Registry) Subscribe(sessionID uuid.UUID, onChange func()) (func(), error) {
	return r.bus.SubscribeSession(sessionID, func(event string, _ []byte) {
		if event == eventChanged {
			onChange()
		}
	})
}

// Clear drops every presence key of the session.
func (r *Registry) Clear(ctx context.Context, sessionID uuid.UUID) error {
	if err := r.client.Del(ctx, viewersKey(sessionID), seenKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear presence: %w", err)
	}
	return nil
}

func (r *Registry) changed(ctx context.Context, sessionID uuid.UUID) {
	if err := r.bus.PublishSessionEvent(ctx, sessionID, eventChanged, nil); err != nil {
		r.logger.Warn("publish presence change", zap.String("session_id", sessionID.String()), zap.Error(err))
	}
}
