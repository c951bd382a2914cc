package live

import (
	"sync"

	"github.com/google/uuid"
)

// Registry holds the running controllers of this instance (thread-safe).
// A broadcaster has at most one controller at a time.
type Registry struct {
	mu            sync.RWMutex
	bySession     map[uuid.UUID]*Controller
	byBroadcaster map[uuid.UUID]*Controller
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySession:     make(map[uuid.UUID]*Controller),
		byBroadcaster: make(map[uuid.UUID]*Controller),
	}
}

// Reserve claims the broadcaster slot for c before it goes live. It returns false if
// the broadcaster already has a controller.
func (reg *Registry) Reserve(c *Controller) bool {
	id := c.Broadcaster().ID
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.byBroadcaster[id] != nil {
		return false
	}
	reg.byBroadcaster[id] = c
	return true
}

// Activate indexes a reserved controller by its session id once the record exists.
// A controller that already ended or lost its reservation is not indexed; the end
// callback removes it under the same lock, so the two cannot interleave.
func (reg *Registry) Activate(c *Controller) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.byBroadcaster[c.Broadcaster().ID] != c || c.State() == StateEnded {
		return
	}
	if id := c.SessionID(); id != uuid.Nil {
		reg.bySession[id] = c
	}
}

// Remove drops c from both indexes. Removing an unknown controller is a no-op.
func (reg *Registry) Remove(c *Controller) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.byBroadcaster[c.Broadcaster().ID] == c {
		delete(reg.byBroadcaster, c.Broadcaster().ID)
	}
	if id := c.SessionID(); id != uuid.Nil && reg.bySession[id] == c {
		delete(reg.bySession, id)
	}
}

// BySession returns the controller running sessionID, or nil.
func (reg *Registry) BySession(sessionID uuid.UUID) *Controller {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.bySession[sessionID]
}

// ByBroadcaster returns the broadcaster's controller, or nil.
func (reg *Registry) ByBroadcaster(userID uuid.UUID) *Controller {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.byBroadcaster[userID]
}

// All returns a snapshot of every active controller.
func (reg *Registry) All() []*Controller {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Controller, 0, len(reg.bySession))
	for _, c := range reg.bySession {
		out = append(out, c)
	}
	return out
}
