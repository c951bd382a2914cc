package live

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/models"
)

const activeStreamsLimit = 50

// ServiceConfig configures the controllers a Service creates and its listing limits.
type ServiceConfig struct {
	Controller       Config
	HistoryPageSize  int
	ChatHistoryLimit int
}

// HistoryPage is one page of ended streams, newest first. NextBefore is nil on the last page.
type HistoryPage struct {
	Streams    []models.StreamSession `json:"streams"`
	NextBefore *time.Time             `json:"next_before,omitempty"`
}

// Service creates controllers and routes per-session calls to them.
type Service struct {
	deps     Deps
	cfg      ServiceConfig
	registry *Registry
	logger   *zap.Logger
}

// NewService creates a service. Every controller it starts shares deps.
func NewService(deps Deps, cfg ServiceConfig, registry *Registry) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = 12
	}
	if cfg.ChatHistoryLimit <= 0 {
		cfg.ChatHistoryLimit = 100
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{deps: deps, cfg: cfg, registry: registry, logger: deps.Logger}
}

// Registry exposes the running controllers.
func (s *Service) Registry() *Registry { return s.registry }

// GoLive starts a new session for broadcaster. A broadcaster with a running session gets ErrInvalidState.
func (s *Service) GoLive(ctx context.Context, broadcaster Participant, req GoLiveRequest) (*models.StreamSession, error) {
	c := NewController(broadcaster, s.deps, s.cfg.Controller)
	if !s.registry.Reserve(c) {
		return nil, &kindError{kind: ErrInvalidState, msg: "broadcaster is already live"}
	}
	c.SetOnEnded(s.registry.Remove)
	session, err := c.GoLive(ctx, req)
	if err != nil {
		if c.State() == StateEnding {
			// cancelled after the record was created and the end write failed; keep it for Shutdown to retry
			s.registry.Activate(c)
			return nil, err
		}
		s.registry.Remove(c)
		return nil, err
	}
	s.registry.Activate(c)
	return session, nil
}

// End finishes sessionID on behalf of actor, who must be the broadcaster or an admin.
// Ending an already ended stream returns its recorded summary.
func (s *Service) End(ctx context.Context, actor Participant, sessionID uuid.UUID) (*models.StreamSummary, error) {
	c := s.registry.BySession(sessionID)
	if c == nil {
		rec, err := s.deps.Store.Get(ctx, sessionID)
		if err != nil {
			return nil, Transient("load stream", err)
		}
		if rec.Status == models.StreamStatusEnded && rec.Summary != nil {
			return rec.Summary, nil
		}
		return nil, NotFound("stream is not running on this instance")
	}
	if actor.ID != c.Broadcaster().ID && actor.Role != models.RoleAdmin {
		return nil, Forbidden("only the broadcaster can end this stream")
	}
	return c.End(ctx)
}

// EndForBroadcaster ends the user's running session, if any. A session still being set
// up is cancelled instead. Used on logout.
func (s *Service) EndForBroadcaster(ctx context.Context, userID uuid.UUID) error {
	c := s.registry.ByBroadcaster(userID)
	if c == nil {
		return nil
	}
	if c.CancelSetup() {
		s.logger.Info("go-live cancelled on logout", zap.String("broadcaster_id", userID.String()))
		return nil
	}
	if _, err := c.End(ctx); err != nil && !errors.Is(err, ErrInvalidState) {
		return err
	}
	return nil
}

// Shutdown ends every running session. Failures are logged and the remaining sessions still end.
func (s *Service) Shutdown(ctx context.Context) {
	for _, c := range s.registry.All() {
		if _, err := c.End(ctx); err != nil {
			s.logger.Error("end stream on shutdown", zap.String("session_id", c.SessionID().String()), zap.Error(err))
		}
	}
}

// BroadcasterOf returns the broadcaster of a session running on this instance.
func (s *Service) BroadcasterOf(sessionID uuid.UUID) (uuid.UUID, bool) {
	c := s.registry.BySession(sessionID)
	if c == nil {
		return uuid.Nil, false
	}
	return c.Broadcaster().ID, true
}

func (s *Service) controller(ctx context.Context, sessionID uuid.UUID) (*Controller, error) {
	if c := s.registry.BySession(sessionID); c != nil {
		return c, nil
	}
	if _, err := s.deps.Store.Get(ctx, sessionID); err != nil {
		return nil, Transient("load stream", err)
	}
	return nil, NotFound("stream is not live")
}

// Join attaches viewer to sessionID.
func (s *Service) Join(ctx context.Context, sessionID uuid.UUID, viewer Participant) error {
	c, err := s.controller(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.Join(ctx, viewer)
}

// Leave detaches viewerID from sessionID.
func (s *Service) Leave(ctx context.Context, sessionID, viewerID uuid.UUID) error {
	c, err := s.controller(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.Leave(ctx, viewerID)
}

// SendChat posts text to sessionID as author.
func (s *Service) SendChat(ctx context.Context, sessionID uuid.UUID, author Participant, text string) (*models.ChatMessage, error) {
	c, err := s.controller(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.SendChat(ctx, author, text)
}

// DeleteMessage removes messageID from sessionID's chat.
func (s *Service) DeleteMessage(ctx context.Context, sessionID uuid.UUID, actor Participant, messageID uuid.UUID) error {
	c, err := s.controller(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.DeleteMessage(ctx, actor, messageID)
}

// TimeoutUser blocks userID from sessionID's chat for d.
func (s *Service) TimeoutUser(ctx context.Context, sessionID uuid.UUID, actor Participant, userID uuid.UUID, d time.Duration) (*models.ChatTimeout, error) {
	c, err := s.controller(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.TimeoutUser(ctx, actor, userID, d)
}

// Viewers lists who is watching sessionID. A store failure yields an empty list.
func (s *Service) Viewers(ctx context.Context, sessionID uuid.UUID) []models.Viewer {
	viewers, err := s.deps.Presence.List(ctx, sessionID)
	if err != nil {
		s.logger.Warn("list viewers", zap.String("session_id", sessionID.String()), zap.Error(err))
		return []models.Viewer{}
	}
	if viewers == nil {
		viewers = []models.Viewer{}
	}
	return viewers
}

// ChatHistory returns the latest chat messages of sessionID in append order. A store
// failure yields an empty list.
func (s *Service) ChatHistory(ctx context.Context, sessionID uuid.UUID) []models.ChatMessage {
	msgs, err := s.deps.Chat.List(ctx, sessionID, s.cfg.ChatHistoryLimit)
	if err != nil {
		s.logger.Warn("list chat history", zap.String("session_id", sessionID.String()), zap.Error(err))
		return []models.ChatMessage{}
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return msgs
}

// Get returns one stream. Sessions running here report their in-memory counters.
func (s *Service) Get(ctx context.Context, sessionID uuid.UUID) (*models.StreamSession, error) {
	if c := s.registry.BySession(sessionID); c != nil {
		if session := c.Session(); session != nil {
			return session, nil
		}
	}
	rec, err := s.deps.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, Transient("load stream", err)
	}
	return rec, nil
}

// ListLive returns streams currently live, most recently started first.
func (s *Service) ListLive(ctx context.Context) ([]models.StreamSession, error) {
	streams, err := s.deps.Store.ListLive(ctx, activeStreamsLimit)
	if err != nil {
		return nil, Transient("list live streams", err)
	}
	return streams, nil
}

// History returns a page of ended streams started before the cursor.
func (s *Service) History(ctx context.Context, before *time.Time, limit int) (*HistoryPage, error) {
	if limit <= 0 || limit > 100 {
		limit = s.cfg.HistoryPageSize
	}
	streams, err := s.deps.Store.ListEnded(ctx, before, limit)
	if err != nil {
		return nil, Transient("list stream history", err)
	}
	if streams == nil {
		streams = []models.StreamSession{}
	}
	page := &HistoryPage{Streams: streams}
	if len(streams) == limit {
		next := streams[len(streams)-1].StartedAt
		page.NextBefore = &next
	}
	return page, nil
}
