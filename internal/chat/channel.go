package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/models"
)

const eventAppended = "appended"

// Bus fans chat messages out to every instance. realtime.RedisPubSub implements it.
type Bus interface {
	PublishSessionEvent(ctx context.Context, sessionID uuid.UUID, event string, payload []byte) error
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Channel stores chat in PostgreSQL and fans new messages out over a Bus.
// Appends to one session are serialized so subscribers see them in insert order.
type Channel struct {
	pool   *pgxpool.Pool
	bus    Bus
	logger *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewChannel creates a chat channel.
func NewChannel(pool *pgxpool.Pool, bus Bus, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{pool: pool, bus: bus, logger: logger, locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (c *Channel) sessionLock(id uuid.UUID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

// Append inserts msg, filling ID and CreatedAt, then publishes it.
// A publish failure is logged; the message is already stored.
func (c *Channel) Append(ctx context.Context, msg *models.ChatMessage) error {
	l := c.sessionLock(msg.SessionID)
	l.Lock()
	defer l.Unlock()

	const q = `INSERT INTO live_chat (session_id, author_id, author_name, author_avatar, text)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id, created_at`
	err := c.pool.QueryRow(ctx, q, msg.SessionID, msg.AuthorID, msg.AuthorDisplayName, msg.AuthorAvatar, msg.Text).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	if err := c.bus.PublishSessionEvent(ctx, msg.SessionID, eventAppended, body); err != nil {
		c.logger.Warn("publish chat message", zap.String("session_id", msg.SessionID.String()), zap.Error(err))
	}
	return nil
}

// Get returns one message.
func (c *Channel) Get(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	const q = `SELECT id, session_id, author_id, author_name, COALESCE(author_avatar, ''), text, created_at
		FROM live_chat WHERE id = $1`
	var m models.ChatMessage
	err := c.pool.QueryRow(ctx, q, id).Scan(&m.ID, &m.SessionID, &m.AuthorID, &m.AuthorDisplayName, &m.AuthorAvatar, &m.Text, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, live.NotFound("chat message not found")
		}
		return nil, fmt.Errorf("get chat message: %w", err)
	}
	return &m, nil
}

// DeleteByID hard-deletes one message.
func (c *Channel) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM live_chat WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete chat message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return live.NotFound("chat message not found")
	}
	return nil
}

// List returns the last limit messages of the session in append order.
func (c *Channel) List(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	const q = `SELECT id, session_id, author_id, author_name, author_avatar, text, created_at FROM (
			SELECT id, seq, session_id, author_id, author_name, COALESCE(author_avatar, '') AS author_avatar, text, created_at
			FROM live_chat WHERE session_id = $1 ORDER BY seq DESC LIMIT $2
		) latest ORDER BY seq ASC`
	rows, err := c.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat: %w", err)
	}
	defer rows.Close()
	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.AuthorID, &m.AuthorDisplayName, &m.AuthorAvatar, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Subscribe calls onMessage for each message appended to sessionID on any instance.
// Unsubscribing also drops the session's append lock.
func (c *Channel) Subscribe(sessionID uuid.UUID, onMessage func(models.ChatMessage)) (func(), error) {
	cancel, err := c.bus.SubscribeSession(sessionID, func(event string, payload []byte) {
		if event != eventAppended {
			return
		}
		var m models.ChatMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			c.logger.Warn("decode chat message", zap.String("session_id", sessionID.String()), zap.Error(err))
			return
		}
		onMessage(m)
	})
	if err != nil {
		return nil, err
	}
	return func() {
		cancel()
		c.mu.Lock()
		delete(c.locks, sessionID)
		c.mu.Unlock()
	}, nil
}
