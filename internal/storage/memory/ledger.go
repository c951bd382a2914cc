package memory

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/aura-live/backend/internal/models"
)

// TipsLedger records tips.
type TipsLedger struct {
	faults
	mu   sync.RWMutex
	tips []models.Tip
}

// NewTipsLedger creates an empty ledger.
func NewTipsLedger() *TipsLedger {
	return &TipsLedger{}
}

// Record adds a tip.
func (l *TipsLedger) Record(t models.Tip) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	l.tips = append(l.tips, t)
}

// SumBySession totals the tips attributed to sessionID, in cents.
func (l *TipsLedger) SumBySession(_ context.Context, sessionID uuid.UUID) (int64, error) {
	if err := l.err("sum"); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total int64
	for _, t := range l.tips {
		if t.SessionID != nil && *t.SessionID == sessionID {
			total += t.AmountCents
		}
	}
	return total, nil
}

// Notifier records live notifications instead of sending them.
type Notifier struct {
	faults
	mu   sync.Mutex
	sent []models.StreamSession
}

// NewNotifier creates a recording notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// NotifyLive records s.
func (n *Notifier) NotifyLive(_ context.Context, s models.StreamSession) error {
	if err := n.err("notify"); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, s)
	return nil
}

// Sent returns the recorded sessions.
func (n *Notifier) Sent() []models.StreamSession {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.StreamSession, len(n.sent))
	copy(out, n.sent)
	return out
}

// ThumbnailStore keeps uploaded thumbnails in memory.
type ThumbnailStore struct {
	faults
	mu      sync.Mutex
	objects map[string][]byte
}

// NewThumbnailStore creates an empty thumbnail store.
func NewThumbnailStore() *ThumbnailStore {
	return &ThumbnailStore{objects: make(map[string][]byte)}
}

// UploadThumbnail reads body and stores it under a fresh key.
func (s *ThumbnailStore) UploadThumbnail(_ context.Context, broadcasterID uuid.UUID, filename, _ string, body io.Reader, _ int64) (string, string, error) {
	if err := s.err("upload"); err != nil {
		return "", "", err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", "", err
	}
	key := "thumbnails/" + broadcasterID.String() + "/" + uuid.NewString() + "-" + filename
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "memory://" + key, key, nil
}

// DeleteThumbnail removes a stored thumbnail.
func (s *ThumbnailStore) DeleteThumbnail(_ context.Context, key string) error {
	if err := s.err("delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Len returns the number of stored thumbnails.
func (s *ThumbnailStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
