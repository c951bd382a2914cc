package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aura-live/backend/internal/models"
)

// PresenceRegistry tracks viewers per session. Subscribers run synchronously after each change.
type PresenceRegistry struct {
	faults
	mu      sync.RWMutex
	viewers map[uuid.UUID]map[uuid.UUID]models.Viewer
	seen    map[uuid.UUID]map[uuid.UUID]struct{}
	subs    map[uuid.UUID]map[int]func()
	nextSub int
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		viewers: make(map[uuid.UUID]map[uuid.UUID]models.Viewer),
		seen:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
		subs:    make(map[uuid.UUID]map[int]func()),
	}
}

// Add inserts or refreshes the viewer entry.
func (p *PresenceRegistry) Add(_ context.Context, sessionID uuid.UUID, v models.Viewer) error {
	if err := p.err("add"); err != nil {
		return err
	}
	p.mu.Lock()
	if p.viewers[sessionID] == nil {
		p.viewers[sessionID] = make(map[uuid.UUID]models.Viewer)
		p.seen[sessionID] = make(map[uuid.UUID]struct{})
	}
	p.viewers[sessionID][v.UserID] = v
	p.seen[sessionID][v.UserID] = struct{}{}
	p.mu.Unlock()
	p.notify(sessionID)
	return nil
}

// Remove deletes the viewer entry if present.
func (p *PresenceRegistry) Remove(_ context.Context, sessionID, userID uuid.UUID) error {
	if err := p.err("remove"); err != nil {
		return err
	}
	p.mu.Lock()
	_, ok := p.viewers[sessionID][userID]
	delete(p.viewers[sessionID], userID)
	p.mu.Unlock()
	if ok {
		p.notify(sessionID)
	}
	return nil
}

// Count returns the number of attached viewers.
func (p *PresenceRegistry) Count(_ context.Context, sessionID uuid.UUID) (int, error) {
	if err := p.err("count"); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.viewers[sessionID]), nil
}

// UniqueCount returns how many distinct users ever joined.
func (p *PresenceRegistry) UniqueCount(_ context.Context, sessionID uuid.UUID) (int, error) {
	if err := p.err("unique_count"); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.seen[sessionID]), nil
}

// List returns attached viewers ordered by join time.
func (p *PresenceRegistry) List(_ context.Context, sessionID uuid.UUID) ([]models.Viewer, error) {
	if err := p.err("list"); err != nil {
		return nil, err
	}
	p.mu.RLock()
	out := make([]models.Viewer, 0, len(p.viewers[sessionID]))
	for _, v := range p.viewers[sessionID] {
		out = append(out, v)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// Subscribe registers onChange for sessionID.
func (p *PresenceRegistry) Subscribe(sessionID uuid.UUID, onChange func()) (func(), error) {
	if err := p.err("subscribe"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs[sessionID] == nil {
		p.subs[sessionID] = make(map[int]func())
	}
	id := p.nextSub
	p.nextSub++
	p.subs[sessionID][id] = onChange
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs[sessionID], id)
			p.mu.Unlock()
		})
	}, nil
}

// Subscribers returns the number of open subscriptions on sessionID.
func (p *PresenceRegistry) Subscribers(sessionID uuid.UUID) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs[sessionID])
}

// Clear drops every presence entry of the session.
func (p *PresenceRegistry) Clear(_ context.Context, sessionID uuid.UUID) error {
	if err := p.err("clear"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.viewers, sessionID)
	delete(p.seen, sessionID)
	return nil
}

func (p *PresenceRegistry) notify(sessionID uuid.UUID) {
	p.mu.RLock()
	fns := make([]func(), 0, len(p.subs[sessionID]))
	for _, fn := range p.subs[sessionID] {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
