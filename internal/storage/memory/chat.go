package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/models"
)

// ChatChannel is an append-only chat log per session. Subscribers receive messages in
// append order, synchronously.
type ChatChannel struct {
	faults
	deliver  sync.Mutex
	mu       sync.RWMutex
	messages map[uuid.UUID]models.ChatMessage
	order    map[uuid.UUID][]uuid.UUID
	subs     map[uuid.UUID]map[int]func(models.ChatMessage)
	nextSub  int
}

// NewChatChannel creates an empty chat log.
func NewChatChannel() *ChatChannel {
	return &ChatChannel{
		messages: make(map[uuid.UUID]models.ChatMessage),
		order:    make(map[uuid.UUID][]uuid.UUID),
		subs:     make(map[uuid.UUID]map[int]func(models.ChatMessage)),
	}
}

// Append stores msg, assigning id and timestamp when unset, and fans it out.
func (c *ChatChannel) Append(_ context.Context, msg *models.ChatMessage) error {
	if err := c.err("append"); err != nil {
		return err
	}
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	c.messages[msg.ID] = *msg
	c.order[msg.SessionID] = append(c.order[msg.SessionID], msg.ID)
	fns := make([]func(models.ChatMessage), 0, len(c.subs[msg.SessionID]))
	for _, fn := range c.subs[msg.SessionID] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(*msg)
	}
	return nil
}

// Get returns one message.
func (c *ChatChannel) Get(_ context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	if err := c.err("get"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	msg, ok := c.messages[id]
	if !ok {
		return nil, live.NotFound("chat message")
	}
	return &msg, nil
}

// DeleteByID hard-deletes one message.
func (c *ChatChannel) DeleteByID(_ context.Context, id uuid.UUID) error {
	if err := c.err("delete"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.messages[id]
	if !ok {
		return live.NotFound("chat message")
	}
	delete(c.messages, id)
	ids := c.order[msg.SessionID]
	for i, mid := range ids {
		if mid == id {
			c.order[msg.SessionID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// List returns the last limit messages of the session in append order.
func (c *ChatChannel) List(_ context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if err := c.err("list"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.order[sessionID]
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	out := make([]models.ChatMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.messages[id])
	}
	return out, nil
}

// Subscribe registers onMessage for new messages of sessionID.
func (c *ChatChannel) Subscribe(sessionID uuid.UUID, onMessage func(models.ChatMessage)) (func(), error) {
	if err := c.err("subscribe"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sessionID] == nil {
		c.subs[sessionID] = make(map[int]func(models.ChatMessage))
	}
	id := c.nextSub
	c.nextSub++
	c.subs[sessionID][id] = onMessage
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[sessionID], id)
			c.mu.Unlock()
		})
	}, nil
}

// Subscribers returns the number of open subscriptions on sessionID.
func (c *ChatChannel) Subscribers(sessionID uuid.UUID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs[sessionID])
}

type timeoutKey struct {
	session uuid.UUID
	user    uuid.UUID
}

// TimeoutStore keeps one moderation timeout per (session, user).
type TimeoutStore struct {
	faults
	mu       sync.RWMutex
	timeouts map[timeoutKey]models.ChatTimeout
}

// NewTimeoutStore creates an empty timeout store.
func NewTimeoutStore() *TimeoutStore {
	return &TimeoutStore{timeouts: make(map[timeoutKey]models.ChatTimeout)}
}

// Get returns the user's timeout or nil.
func (s *TimeoutStore) Get(_ context.Context, sessionID, userID uuid.UUID) (*models.ChatTimeout, error) {
	if err := s.err("get"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.timeouts[timeoutKey{sessionID, userID}]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// Set replaces the user's timeout.
func (s *TimeoutStore) Set(_ context.Context, t models.ChatTimeout) error {
	if err := s.err("set"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts[timeoutKey{t.SessionID, t.UserID}] = t
	return nil
}

// DeleteBySession drops every timeout of the session.
func (s *TimeoutStore) DeleteBySession(_ context.Context, sessionID uuid.UUID) error {
	if err := s.err("delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.timeouts {
		if k.session == sessionID {
			delete(s.timeouts, k)
		}
	}
	return nil
}

// PurgeExpired drops timeouts that ended at or before now.
func (s *TimeoutStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	if err := s.err("purge"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, t := range s.timeouts {
		if !t.Active(now) {
			delete(s.timeouts, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored timeouts.
func (s *TimeoutStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.timeouts)
}
