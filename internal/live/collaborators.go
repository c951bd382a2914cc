package live

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/aura-live/backend/internal/models"
)

// Participant identifies the caller of a controller operation.
type Participant struct {
	ID          uuid.UUID
	DisplayName string
	Avatar      string
	Role        models.Role
}

// MediaStream is an acquired capture handle. Done is closed if the device is lost while held.
type MediaStream interface {
	ID() string
	Done() <-chan struct{}
}

// CaptureDevice hands out the broadcaster's camera/microphone. Acquire fails with
// ErrPermissionDenied or ErrDevice; Release must be called exactly once per stream.
type CaptureDevice interface {
	Acquire(ctx context.Context, broadcaster Participant) (MediaStream, error)
	Release(stream MediaStream) error
}

// SessionStore persists stream records. Get returns ErrNotFound for unknown ids and
// every other failure is reported as ErrTransient.
type SessionStore interface {
	Create(ctx context.Context, s *models.StreamSession) error
	Get(ctx context.Context, id uuid.UUID) (*models.StreamSession, error)
	UpdateDuration(ctx context.Context, id uuid.UUID, duration string) error
	UpdateViewerCount(ctx context.Context, id uuid.UUID, count int) error
	Finalize(ctx context.Context, id uuid.UUID, endedAt time.Time, summary models.StreamSummary) error
	ListLive(ctx context.Context, limit int) ([]models.StreamSession, error)
	ListEnded(ctx context.Context, before *time.Time, limit int) ([]models.StreamSession, error)
}

// PresenceRegistry is the shared set of viewers attached to a session, plus the
// set of every viewer ever seen. Subscribers are notified after each change.
type PresenceRegistry interface {
	Add(ctx context.Context, sessionID uuid.UUID, v models.Viewer) error
	Remove(ctx context.Context, sessionID, userID uuid.UUID) error
	Count(ctx context.Context, sessionID uuid.UUID) (int, error)
	UniqueCount(ctx context.Context, sessionID uuid.UUID) (int, error)
	List(ctx context.Context, sessionID uuid.UUID) ([]models.Viewer, error)
	Subscribe(sessionID uuid.UUID, onChange func()) (unsubscribe func(), err error)
	Clear(ctx context.Context, sessionID uuid.UUID) error
}

// ChatChannel is the per-session append-only chat log. Subscribers see messages in append order.
type ChatChannel interface {
	Append(ctx context.Context, msg *models.ChatMessage) error
	Get(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error)
	Subscribe(sessionID uuid.UUID, onMessage func(models.ChatMessage)) (unsubscribe func(), err error)
}

// TimeoutStore keeps moderation timeouts keyed by (session, user). Get returns nil, nil when none exists.
type TimeoutStore interface {
	Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.ChatTimeout, error)
	Set(ctx context.Context, t models.ChatTimeout) error
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// TipsLedger sums recorded tips for a session, in cents.
type TipsLedger interface {
	SumBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

// FollowerNotifier tells followers a broadcaster went live. Failures never block the start.
type FollowerNotifier interface {
	NotifyLive(ctx context.Context, s models.StreamSession) error
}

// ThumbnailStore uploads stream thumbnails. It is optional.
type ThumbnailStore interface {
	UploadThumbnail(ctx context.Context, broadcasterID uuid.UUID, filename, contentType string, body io.Reader, size int64) (url, key string, err error)
	DeleteThumbnail(ctx context.Context, key string) error
}

// EventPublisher delivers session events to locally connected clients. It is optional.
type EventPublisher interface {
	BroadcastToSession(sessionID uuid.UUID, event string, payload interface{})
}

// Realtime event names sent through EventPublisher.
const (
	EventChatMessage = "chat_message"
	EventChatDeleted = "chat_deleted"
	EventViewerCount = "viewer_count"
	EventStreamEnded = "stream_ended"
)
