package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel prefixes. Client-facing events, chat fan-out and presence changes use separate channels.
const (
	EventsPrefix   = "live:events:"
	ChatPrefix     = "live:chat:"
	PresencePrefix = "live:viewers:"

	eventTTL = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance broadcast.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// RedisPubSub carries session events between instances over Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for stream session events on channels
// named prefix + session id.
func NewRedisPubSub(client *redis.Client, prefix string, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, prefix: prefix, logger: logger}
}

// SessionChannel is the Redis channel carrying one session's events.
func (r *RedisPubSub) SessionChannel(sessionID uuid.UUID) string {
	return r.prefix + sessionID.String()
}

// PublishSessionEvent publishes an event to the session's Redis channel.
func (r *RedisPubSub) PublishSessionEvent(ctx context.Context, sessionID uuid.UUID, event string, payload []byte) error {
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, eventTTL)
	defer cancel()
	return r.client.Publish(ctx, r.SessionChannel(sessionID), body).Err()
}

// SubscribeSession subscribes to a session's Redis channel and calls handler for each
// message in publish order. The returned cancel stops the subscription.
func (r *RedisPubSub) SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, r.SessionChannel(sessionID))
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Warn("drop malformed session event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return cancelCtx, nil
}
