package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/models"
)

// SessionStore keeps stream records in a map.
type SessionStore struct {
	faults
	mu            sync.RWMutex
	sessions      map[uuid.UUID]*models.StreamSession
	finalizeCalls int
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]*models.StreamSession)}
}

func clone(s *models.StreamSession) *models.StreamSession {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Summary != nil {
		sum := *s.Summary
		c.Summary = &sum
	}
	return &c
}

// Create stores s and assigns its id.
func (s *SessionStore) Create(_ context.Context, session *models.StreamSession) error {
	if err := s.err("create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	s.sessions[session.ID] = clone(session)
	return nil
}

// Get returns a copy of the record.
func (s *SessionStore) Get(_ context.Context, id uuid.UUID) (*models.StreamSession, error) {
	if err := s.err("get"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, live.NotFound("stream")
	}
	return clone(session), nil
}

func (s *SessionStore) update(op string, id uuid.UUID, fn func(*models.StreamSession)) error {
	if err := s.err(op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return live.NotFound("stream")
	}
	fn(session)
	session.UpdatedAt = time.Now()
	return nil
}

// UpdateDuration sets the duration field.
func (s *SessionStore) UpdateDuration(_ context.Context, id uuid.UUID, duration string) error {
	return s.update("update_duration", id, func(session *models.StreamSession) {
		session.Duration = duration
	})
}

// UpdateViewerCount sets the viewer count field.
func (s *SessionStore) UpdateViewerCount(_ context.Context, id uuid.UUID, count int) error {
	return s.update("update_viewer_count", id, func(session *models.StreamSession) {
		session.ViewerCount = count
	})
}

// Finalize marks the record ended with its summary in one step.
func (s *SessionStore) Finalize(_ context.Context, id uuid.UUID, endedAt time.Time, summary models.StreamSummary) error {
	s.mu.Lock()
	s.finalizeCalls++
	s.mu.Unlock()
	return s.update("finalize", id, func(session *models.StreamSession) {
		session.Status = models.StreamStatusEnded
		session.EndedAt = &endedAt
		session.Duration = summary.Duration
		session.Summary = &summary
	})
}

// FinalizeCalls counts Finalize attempts, failed ones included.
func (s *SessionStore) FinalizeCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalizeCalls
}

func (s *SessionStore) list(status models.StreamStatus, before *time.Time, limit int) []models.StreamSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StreamSession, 0)
	for _, session := range s.sessions {
		if session.Status != status {
			continue
		}
		if before != nil && !session.StartedAt.Before(*before) {
			continue
		}
		out = append(out, *clone(session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListLive returns live records, newest first.
func (s *SessionStore) ListLive(_ context.Context, limit int) ([]models.StreamSession, error) {
	if err := s.err("list"); err != nil {
		return nil, err
	}
	return s.list(models.StreamStatusLive, nil, limit), nil
}

// ListEnded returns ended records started before the cursor, newest first.
func (s *SessionStore) ListEnded(_ context.Context, before *time.Time, limit int) ([]models.StreamSession, error) {
	if err := s.err("list"); err != nil {
		return nil, err
	}
	return s.list(models.StreamStatusEnded, before, limit), nil
}
