package live

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/models"
)

// State is the controller's lifecycle position.
type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateLive      State = "live"
	StateEnding    State = "ending" // torn down locally; durable end update not yet written
	StateEnded     State = "ended"
)

// DefaultTimeout is used when a moderator does not pick a timeout length.
const DefaultTimeout = 5 * time.Minute

// Config holds session timings.
type Config struct {
	HeartbeatInterval time.Duration
	SampleInterval    time.Duration
	DefaultTimeout    time.Duration
	MaxThumbnailSize  int64
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = time.Second
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 10 * time.Second
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	return c
}

// Deps are the collaborators a controller works against. Tips, Notifier, Thumbnails
// and Events may be nil.
type Deps struct {
	Capture    CaptureDevice
	Store      SessionStore
	Presence   PresenceRegistry
	Chat       ChatChannel
	Timeouts   TimeoutStore
	Tips       TipsLedger
	Notifier   FollowerNotifier
	Thumbnails ThumbnailStore
	Events     EventPublisher
	Logger     *zap.Logger
	Now        func() time.Time
}

// Thumbnail is an optional image uploaded when going live.
type Thumbnail struct {
	Filename    string
	ContentType string
	Body        io.Reader
	Size        int64
}

// GoLiveRequest carries the broadcaster's setup form.
type GoLiveRequest struct {
	Title       string
	Description string
	Category    string
	Privacy     models.PrivacyMode
	ChatEnabled bool
	TipsEnabled bool
	Thumbnail   *Thumbnail
}

func (r *GoLiveRequest) normalize(maxThumbnail int64) error {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.TrimSpace(r.Category)
	if r.Title == "" {
		return Validation("title is required")
	}
	if r.Privacy == "" {
		r.Privacy = models.PrivacyPublic
	}
	if !r.Privacy.Valid() {
		return Validation("privacy must be public, unlisted or private")
	}
	if r.Thumbnail != nil && maxThumbnail > 0 && r.Thumbnail.Size > maxThumbnail {
		return Validation("thumbnail is too large")
	}
	return nil
}

// Controller owns exactly one outgoing live session for one broadcaster,
// from setup to teardown. A controller is never reused: going live again needs a new one.
type Controller struct {
	broadcaster Participant
	deps        Deps
	cfg         Config
	log         *zap.Logger
	now         func() time.Time

	// ops is held shared by viewer, chat and moderation calls and exclusively while
	// End flips the state, so no such call is half-applied when teardown starts.
	ops   sync.RWMutex
	endMu sync.Mutex

	// countMu serializes presence count refreshes so the last refresh wins.
	countMu sync.Mutex

	mu          sync.Mutex
	state       State
	session     *models.StreamSession
	stream      MediaStream
	samples     []Sample
	viewerCount int
	chatCount   int
	endedAt     time.Time
	pending     *models.StreamSummary // computed summary awaiting a durable write
	cancelled   bool                  // setup was cancelled before the stream went live
	onEnded     func(*Controller)

	scheduler      *Scheduler
	viewersChanged chan struct{}
	unsubscribe    []func()
	teardownOnce   sync.Once
	releaseOnce    sync.Once
}

// NewController creates an idle controller for broadcaster.
func NewController(broadcaster Participant, deps Deps, cfg Config) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	log := logger.With(zap.String("broadcaster_id", broadcaster.ID.String()))
	return &Controller{
		broadcaster:    broadcaster,
		deps:           deps,
		cfg:            cfg.withDefaults(),
		log:            log,
		now:            now,
		state:          StateIdle,
		scheduler:      NewScheduler(log),
		viewersChanged: make(chan struct{}, 1),
	}
}

// SetOnEnded registers a callback run once the end of the stream is durably recorded.
func (c *Controller) SetOnEnded(fn func(*Controller)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnded = fn
}

// Broadcaster returns the session owner.
func (c *Controller) Broadcaster() Participant { return c.broadcaster }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the record id, or uuid.Nil before the stream is live.
func (c *Controller) SessionID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return uuid.Nil
	}
	return c.session.ID
}

// Session returns a copy of the session record as the controller last saw it.
func (c *Controller) Session() *models.StreamSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	if c.session.Summary != nil {
		sum := *c.session.Summary
		s.Summary = &sum
	}
	return &s
}

// ViewerCount returns the current number of attached viewers.
func (c *Controller) ViewerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewerCount
}

// ChatCount returns the number of chat messages accepted while live.
func (c *Controller) ChatCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatCount
}

// Samples returns a copy of the analytics series.
func (c *Controller) Samples() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

var errSetupCancelled = &kindError{kind: ErrInvalidState, msg: "setup cancelled"}

// CancelSetup stops a GoLive that has not reached live yet; that GoLive releases the
// device and returns ErrInvalidState. It reports false once the stream is live or past
// it, when End is the way out.
func (c *Controller) CancelSetup() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle && c.state != StateCapturing {
		return false
	}
	c.cancelled = true
	return true
}

func (c *Controller) setupCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// GoLive validates req, acquires the capture device and creates the session record.
// Validation errors leave the controller idle. Capture or store failures return it to
// idle with the device released and nothing persisted. A setup cancelled after the
// record was created is ended through End.
func (c *Controller) GoLive(ctx context.Context, req GoLiveRequest) (*models.StreamSession, error) {
	if err := req.normalize(c.cfg.MaxThumbnailSize); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return nil, errSetupCancelled
	}
	if c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		return nil, &kindError{kind: ErrInvalidState, msg: "stream is " + string(st)}
	}
	c.state = StateCapturing
	c.mu.Unlock()

	stream, err := c.deps.Capture.Acquire(ctx, c.broadcaster)
	if err != nil {
		c.setState(StateIdle)
		if !Classified(err) {
			err = DeviceError(err)
		}
		c.log.Warn("capture failed", zap.Error(err))
		return nil, err
	}

	var thumbURL, thumbKey string
	if req.Thumbnail != nil && c.deps.Thumbnails != nil {
		t := req.Thumbnail
		thumbURL, thumbKey, err = c.deps.Thumbnails.UploadThumbnail(ctx, c.broadcaster.ID, t.Filename, t.ContentType, t.Body, t.Size)
		if err != nil {
			c.abortCapture(stream, "")
			return nil, Transient("upload thumbnail", err)
		}
	}

	if c.setupCancelled() {
		c.abortCapture(stream, thumbKey)
		c.log.Info("setup cancelled before the record was created")
		return nil, errSetupCancelled
	}

	now := c.now()
	name := c.broadcaster.DisplayName
	if name == "" {
		name = "Anonymous"
	}
	s := &models.StreamSession{
		ID:                uuid.New(),
		BroadcasterID:     c.broadcaster.ID,
		BroadcasterName:   name,
		BroadcasterAvatar: c.broadcaster.Avatar,
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Privacy:           req.Privacy,
		ChatEnabled:       req.ChatEnabled,
		TipsEnabled:       req.TipsEnabled,
		ThumbnailURL:      thumbURL,
		Status:            models.StreamStatusLive,
		ViewerCount:       0,
		Duration:          FormatDuration(0),
		StartedAt:         now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := c.deps.Store.Create(ctx, s); err != nil {
		c.abortCapture(stream, thumbKey)
		return nil, Transient("create stream", err)
	}

	// endMu keeps End out until the subscriptions and timers it tears down exist.
	c.endMu.Lock()
	c.mu.Lock()
	c.session = s
	c.stream = stream
	c.state = StateLive
	cancelled := c.cancelled
	c.mu.Unlock()
	c.log = c.log.With(zap.String("session_id", s.ID.String()))

	if cancelled {
		c.endMu.Unlock()
		c.log.Info("setup cancelled after the record was created, ending stream")
		if _, err := c.End(ctx); err != nil {
			return nil, err
		}
		return nil, errSetupCancelled
	}

	c.attach(s)
	c.startTimers(stream)
	c.endMu.Unlock()

	if c.deps.Notifier != nil {
		if err := c.deps.Notifier.NotifyLive(ctx, *s); err != nil {
			c.log.Warn("notify followers failed", zap.Error(err))
		}
	}

	c.log.Info("stream live", zap.String("title", s.Title), zap.Bool("chat_enabled", s.ChatEnabled))
	return c.Session(), nil
}

// abortCapture undoes a partially completed setup and returns to idle.
func (c *Controller) abortCapture(stream MediaStream, thumbKey string) {
	if err := c.deps.Capture.Release(stream); err != nil {
		c.log.Warn("release capture after failed setup", zap.Error(err))
	}
	if thumbKey != "" && c.deps.Thumbnails != nil {
		if err := c.deps.Thumbnails.DeleteThumbnail(context.Background(), thumbKey); err != nil {
			c.log.Warn("delete orphan thumbnail", zap.String("key", thumbKey), zap.Error(err))
		}
	}
	c.setState(StateIdle)
}

// attach opens the presence and chat subscriptions. Failures are logged; the stream stays live.
func (c *Controller) attach(s *models.StreamSession) {
	unsub, err := c.deps.Presence.Subscribe(s.ID, func() { c.refreshViewerCount(context.Background()) })
	if err != nil {
		c.log.Warn("presence subscribe failed", zap.Error(err))
	} else {
		c.unsubscribe = append(c.unsubscribe, unsub)
	}
	c.refreshViewerCount(context.Background())

	if !s.ChatEnabled {
		return
	}
	unsub, err = c.deps.Chat.Subscribe(s.ID, func(msg models.ChatMessage) {
		c.publish(EventChatMessage, msg)
	})
	if err != nil {
		c.log.Warn("chat subscribe failed", zap.Error(err))
		return
	}
	c.unsubscribe = append(c.unsubscribe, unsub)
}

func (c *Controller) startTimers(stream MediaStream) {
	c.scheduler.Every("duration-heartbeat", c.cfg.HeartbeatInterval, c.heartbeat)
	c.scheduler.Every("analytics-sampler", c.cfg.SampleInterval, c.sample)
	c.scheduler.OnSignal("viewer-count-sync", c.viewersChanged, c.syncViewerCount)
	if done := stream.Done(); done != nil {
		c.scheduler.OnSignal("device-watch", done, func(context.Context) {
			c.log.Warn("capture device lost, ending stream")
			go c.endAfterDeviceLoss()
		})
	}
	c.scheduler.Start()
}

func (c *Controller) heartbeat(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateLive {
		c.mu.Unlock()
		return
	}
	id := c.session.ID
	d := FormatDuration(c.now().Sub(c.session.StartedAt))
	c.session.Duration = d
	c.mu.Unlock()

	if err := c.deps.Store.UpdateDuration(ctx, id, d); err != nil && ctx.Err() == nil {
		c.log.Warn("duration heartbeat failed", zap.Error(err))
	}
}

func (c *Controller) sample(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLive {
		return
	}
	c.samples = append(c.samples, Sample{At: c.now(), Viewers: c.viewerCount})
}

func (c *Controller) syncViewerCount(ctx context.Context) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	id, n := c.session.ID, c.viewerCount
	c.mu.Unlock()

	if err := c.deps.Store.UpdateViewerCount(ctx, id, n); err != nil && ctx.Err() == nil {
		c.log.Warn("viewer count update failed", zap.Int("viewers", n), zap.Error(err))
	}
}

// refreshViewerCount re-reads the presence cardinality; concurrent calls converge on the latest value.
func (c *Controller) refreshViewerCount(ctx context.Context) {
	c.countMu.Lock()
	defer c.countMu.Unlock()

	id, ok := c.liveSessionID()
	if !ok {
		return
	}
	n, err := c.deps.Presence.Count(ctx, id)
	if err != nil {
		c.log.Warn("presence count failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	changed := n != c.viewerCount
	c.viewerCount = n
	c.session.ViewerCount = n
	c.mu.Unlock()

	if !changed {
		return
	}
	select {
	case c.viewersChanged <- struct{}{}:
	default:
	}
	c.publish(EventViewerCount, map[string]int{"count": n})
}

// Join attaches viewer to the live session. Joining a stream that is not live fails with
// ErrNotFound and leaves presence untouched.
func (c *Controller) Join(ctx context.Context, viewer Participant) error {
	c.ops.RLock()
	defer c.ops.RUnlock()

	id, ok := c.liveSessionID()
	if !ok {
		return NotFound("stream is not live")
	}
	name := viewer.DisplayName
	if name == "" {
		name = "Anonymous"
	}
	v := models.Viewer{UserID: viewer.ID, DisplayName: name, Avatar: viewer.Avatar, JoinedAt: c.now()}
	if err := c.deps.Presence.Add(ctx, id, v); err != nil {
		return Transient("add viewer", err)
	}
	c.log.Debug("viewer joined", zap.String("user_id", viewer.ID.String()))
	return nil
}

// Leave detaches viewer from the live session.
func (c *Controller) Leave(ctx context.Context, viewerID uuid.UUID) error {
	c.ops.RLock()
	defer c.ops.RUnlock()

	id, ok := c.liveSessionID()
	if !ok {
		return NotFound("stream is not live")
	}
	if err := c.deps.Presence.Remove(ctx, id, viewerID); err != nil {
		return Transient("remove viewer", err)
	}
	c.log.Debug("viewer left", zap.String("user_id", viewerID.String()))
	return nil
}

// SendChat appends a message from author. Empty text is a validation error; an author
// with an unexpired timeout gets ErrTimedOut and nothing is appended.
func (c *Controller) SendChat(ctx context.Context, author Participant, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, Validation("message is empty")
	}

	c.ops.RLock()
	defer c.ops.RUnlock()

	c.mu.Lock()
	live := c.state == StateLive
	var id uuid.UUID
	var chatEnabled bool
	if live {
		id, chatEnabled = c.session.ID, c.session.ChatEnabled
	}
	c.mu.Unlock()
	if !live {
		return nil, NotFound("stream is not live")
	}
	if !chatEnabled {
		return nil, Validation("chat is disabled for this stream")
	}

	t, err := c.deps.Timeouts.Get(ctx, id, author.ID)
	if err != nil {
		return nil, Transient("load timeout", err)
	}
	now := c.now()
	if t != nil && t.Active(now) {
		return nil, &kindError{kind: ErrTimedOut, msg: "until " + t.TimeoutUntil.UTC().Format(time.RFC3339)}
	}

	name := author.DisplayName
	if name == "" {
		name = "Anonymous"
	}
	msg := &models.ChatMessage{
		SessionID:         id,
		AuthorID:          author.ID,
		AuthorDisplayName: name,
		AuthorAvatar:      author.Avatar,
		Text:              text,
		CreatedAt:         now,
	}
	if err := c.deps.Chat.Append(ctx, msg); err != nil {
		return nil, Transient("append chat message", err)
	}

	c.mu.Lock()
	c.chatCount++
	c.mu.Unlock()
	return msg, nil
}

// DeleteMessage hard-deletes a chat message. Authors may delete their own; anyone else
// needs moderator capability.
func (c *Controller) DeleteMessage(ctx context.Context, actor Participant, messageID uuid.UUID) error {
	c.ops.RLock()
	defer c.ops.RUnlock()

	id, ok := c.liveSessionID()
	if !ok {
		return NotFound("stream is not live")
	}
	msg, err := c.deps.Chat.Get(ctx, messageID)
	if err != nil {
		return Transient("load chat message", err)
	}
	if msg.SessionID != id {
		return NotFound("message does not belong to this stream")
	}
	if msg.AuthorID != actor.ID && !c.canModerate(actor) {
		return Forbidden("only moderators can delete other users' messages")
	}
	if err := c.deps.Chat.DeleteByID(ctx, messageID); err != nil {
		return Transient("delete chat message", err)
	}
	c.publish(EventChatDeleted, map[string]string{"id": messageID.String()})
	c.log.Info("chat message deleted", zap.String("message_id", messageID.String()), zap.String("actor_id", actor.ID.String()))
	return nil
}

// TimeoutUser blocks userID from chatting for d (the configured default when d <= 0).
// A new timeout replaces any previous deadline.
func (c *Controller) TimeoutUser(ctx context.Context, actor Participant, userID uuid.UUID, d time.Duration) (*models.ChatTimeout, error) {
	if d <= 0 {
		d = c.cfg.DefaultTimeout
	}

	c.ops.RLock()
	defer c.ops.RUnlock()

	id, ok := c.liveSessionID()
	if !ok {
		return nil, NotFound("stream is not live")
	}
	if !c.canModerate(actor) {
		return nil, Forbidden("only moderators can time out users")
	}
	if userID == c.broadcaster.ID {
		return nil, Validation("the broadcaster cannot be timed out")
	}
	t := models.ChatTimeout{SessionID: id, UserID: userID, TimeoutUntil: c.now().Add(d), IssuedBy: actor.ID}
	if err := c.deps.Timeouts.Set(ctx, t); err != nil {
		return nil, Transient("save timeout", err)
	}
	c.log.Info("user timed out", zap.String("user_id", userID.String()), zap.Duration("for", d))
	return &t, nil
}

// End stops the timers, releases the capture device, computes the summary and records
// the end in one update. If that update fails the summary is kept and the next End
// call retries the same write. Calling End on an ended stream returns its summary.
func (c *Controller) End(ctx context.Context) (*models.StreamSummary, error) {
	c.endMu.Lock()
	defer c.endMu.Unlock()

	c.ops.Lock()
	c.mu.Lock()
	switch c.state {
	case StateEnded:
		sum := *c.session.Summary
		c.mu.Unlock()
		c.ops.Unlock()
		return &sum, nil
	case StateLive:
		c.state = StateEnding
		c.endedAt = c.now()
	case StateEnding:
	default:
		st := c.state
		c.mu.Unlock()
		c.ops.Unlock()
		return nil, &kindError{kind: ErrInvalidState, msg: "stream is " + string(st)}
	}
	id := c.session.ID
	endedAt := c.endedAt
	c.mu.Unlock()
	c.ops.Unlock()

	c.teardown()

	if c.pending == nil {
		sum, err := c.computeSummary(ctx)
		if err != nil {
			c.log.Warn("compute summary failed", zap.Error(err))
			return nil, err
		}
		c.pending = sum
	}
	if err := c.deps.Store.Finalize(ctx, id, endedAt, *c.pending); err != nil {
		c.log.Warn("finalize stream failed, summary kept for retry", zap.Error(err))
		return nil, Transient("finalize stream", err)
	}

	sum := *c.pending
	c.mu.Lock()
	c.state = StateEnded
	c.session.Status = models.StreamStatusEnded
	c.session.EndedAt = &endedAt
	c.session.Duration = sum.Duration
	recorded := sum
	c.session.Summary = &recorded
	c.samples = nil
	onEnded := c.onEnded
	c.mu.Unlock()

	c.cleanup(ctx, id)
	c.publish(EventStreamEnded, sum)
	c.log.Info("stream ended",
		zap.Int("avg_viewers", sum.AverageViewers),
		zap.Int("total_viewers", sum.TotalViewers),
		zap.Int("chat_count", sum.ChatMessageCount),
		zap.String("duration", sum.Duration),
		zap.String("total_tips", sum.TotalTips),
	)
	if onEnded != nil {
		onEnded(c)
	}
	return &sum, nil
}

// teardown stops every timer and subscription and releases the device. It runs once.
func (c *Controller) teardown() {
	c.teardownOnce.Do(func() {
		c.scheduler.Stop()
		for _, unsub := range c.unsubscribe {
			unsub()
		}
		c.unsubscribe = nil
		c.releaseDevice()
	})
}

func (c *Controller) releaseDevice() {
	c.releaseOnce.Do(func() {
		c.mu.Lock()
		stream := c.stream
		c.mu.Unlock()
		if stream == nil {
			return
		}
		if err := c.deps.Capture.Release(stream); err != nil {
			c.log.Warn("release capture device", zap.Error(err))
		}
	})
}

func (c *Controller) computeSummary(ctx context.Context) (*models.StreamSummary, error) {
	c.mu.Lock()
	id := c.session.ID
	samples := make([]Sample, len(c.samples))
	copy(samples, c.samples)
	chatCount := c.chatCount
	elapsed := c.endedAt.Sub(c.session.StartedAt)
	c.mu.Unlock()

	unique, err := c.deps.Presence.UniqueCount(ctx, id)
	if err != nil {
		return nil, Transient("count unique viewers", err)
	}
	var cents int64
	if c.deps.Tips != nil {
		cents, err = c.deps.Tips.SumBySession(ctx, id)
		if err != nil {
			return nil, Transient("sum tips", err)
		}
	}
	return &models.StreamSummary{
		AverageViewers:   AverageViewers(samples),
		TotalViewers:     unique,
		ChatMessageCount: chatCount,
		Duration:         FormatDuration(elapsed),
		TotalTips:        FormatCents(cents),
	}, nil
}

// cleanup drops session-scoped presence and moderation state after the end is recorded.
func (c *Controller) cleanup(ctx context.Context, id uuid.UUID) {
	if err := c.deps.Presence.Clear(ctx, id); err != nil {
		c.log.Warn("clear presence", zap.Error(err))
	}
	if err := c.deps.Timeouts.DeleteBySession(ctx, id); err != nil {
		c.log.Warn("delete session timeouts", zap.Error(err))
	}
}

func (c *Controller) endAfterDeviceLoss() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := c.End(ctx); err != nil {
		c.log.Error("end after device loss", zap.Error(err))
	}
}

func (c *Controller) canModerate(p Participant) bool {
	return p.ID == c.broadcaster.ID || p.Role.CanModerate()
}

func (c *Controller) liveSessionID() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLive {
		return uuid.Nil, false
	}
	return c.session.ID, true
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) publish(event string, payload interface{}) {
	if c.deps.Events == nil {
		return
	}
	c.deps.Events.BroadcastToSession(c.SessionID(), event, payload)
}
