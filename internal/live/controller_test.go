package live_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/internal/storage/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 5, 2, 20, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	capture  *memory.CaptureDevice
	store    *memory.SessionStore
	presence *memory.PresenceRegistry
	chat     *memory.ChatChannel
	timeouts *memory.TimeoutStore
	tips     *memory.TipsLedger
	notifier *memory.Notifier
	thumbs   *memory.ThumbnailStore
	events   *memory.EventLog
	clock    *clock
}

func newFixture() *fixture {
	return &fixture{
		capture:  memory.NewCaptureDevice(),
		store:    memory.NewSessionStore(),
		presence: memory.NewPresenceRegistry(),
		chat:     memory.NewChatChannel(),
		timeouts: memory.NewTimeoutStore(),
		tips:     memory.NewTipsLedger(),
		notifier: memory.NewNotifier(),
		thumbs:   memory.NewThumbnailStore(),
		events:   memory.NewEventLog(),
		clock:    newClock(),
	}
}

func (f *fixture) deps() live.Deps {
	return live.Deps{
		Capture:    f.capture,
		Store:      f.store,
		Presence:   f.presence,
		Chat:       f.chat,
		Timeouts:   f.timeouts,
		Tips:       f.tips,
		Notifier:   f.notifier,
		Thumbnails: f.thumbs,
		Events:     f.events,
		Now:        f.clock.Now,
	}
}

// quiet keeps the periodic tasks from firing during a test.
var quiet = live.Config{HeartbeatInterval: time.Hour, SampleInterval: time.Hour}

var host = live.Participant{ID: uuid.New(), DisplayName: "Host", Role: models.RoleCreator}

func viewer(name string) live.Participant {
	return live.Participant{ID: uuid.New(), DisplayName: name, Role: models.RoleViewer}
}

func gameNight() live.GoLiveRequest {
	return live.GoLiveRequest{Title: "Game Night", Privacy: models.PrivacyPublic, ChatEnabled: true, TipsEnabled: true}
}

func (f *fixture) goLive(t *testing.T, cfg live.Config) (*live.Controller, *models.StreamSession) {
	t.Helper()
	c := live.NewController(host, f.deps(), cfg)
	s, err := c.GoLive(context.Background(), gameNight())
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = c.End(context.Background()) })
	return c, s
}

func TestGoLiveCreatesOneLiveRecord(t *testing.T) {
	f := newFixture()
	c, s := f.goLive(t, quiet)

	assert.Equal(t, live.StateLive, c.State())
	rec, err := f.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StreamStatusLive, rec.Status)
	assert.Equal(t, 0, rec.ViewerCount)
	assert.Equal(t, f.clock.Now(), rec.StartedAt)
	assert.Equal(t, "00:00:00", rec.Duration)
	assert.Equal(t, "Game Night", rec.Title)
	assert.Equal(t, "Host", rec.BroadcasterName)

	all, err := f.store.ListLive(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 1, f.capture.Active())
	require.Len(t, f.notifier.Sent(), 1)
	assert.Equal(t, s.ID, f.notifier.Sent()[0].ID)
}

func TestGoLiveValidation(t *testing.T) {
	tests := []struct {
		name string
		req  live.GoLiveRequest
	}{
		{"empty title", live.GoLiveRequest{Title: ""}},
		{"whitespace title", live.GoLiveRequest{Title: "   \t"}},
		{"unknown privacy", live.GoLiveRequest{Title: "ok", Privacy: "friends"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			c := live.NewController(host, f.deps(), quiet)

			_, err := c.GoLive(context.Background(), tt.req)
			assert.ErrorIs(t, err, live.ErrValidation)
			assert.Equal(t, live.StateIdle, c.State())
			assert.Zero(t, f.capture.Acquired())
			all, _ := f.store.ListLive(context.Background(), 10)
			assert.Empty(t, all)
		})
	}
}

func TestGoLiveDefaultsPrivacyToPublic(t *testing.T) {
	f := newFixture()
	c := live.NewController(host, f.deps(), quiet)
	s, err := c.GoLive(context.Background(), live.GoLiveRequest{Title: "  Late show  "})
	require.NoError(t, err)
	defer c.End(context.Background())

	assert.Equal(t, models.PrivacyPublic, s.Privacy)
	assert.Equal(t, "Late show", s.Title)
}

func TestGoLiveCaptureFailureLeavesNoRecord(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"permission denied", live.PermissionDenied(errors.New("user dismissed prompt")), live.ErrPermissionDenied},
		{"device error", errors.New("no camera found"), live.ErrDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.capture.Fail("acquire", tt.err)
			c := live.NewController(host, f.deps(), quiet)

			_, err := c.GoLive(context.Background(), gameNight())
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, live.StateIdle, c.State())
			all, _ := f.store.ListLive(context.Background(), 10)
			assert.Empty(t, all)
			assert.Empty(t, f.notifier.Sent())

			f.capture.Fail("acquire", nil)
			_, err = c.GoLive(context.Background(), gameNight())
			require.NoError(t, err)
			_, err = c.End(context.Background())
			require.NoError(t, err)
		})
	}
}

func TestGoLiveStoreFailureReleasesDevice(t *testing.T) {
	f := newFixture()
	f.store.Fail("create", errors.New("connection refused"))
	c := live.NewController(host, f.deps(), quiet)

	req := gameNight()
	req.Thumbnail = &live.Thumbnail{Filename: "cover.png", ContentType: "image/png", Body: bytes.NewReader([]byte("png")), Size: 3}
	_, err := c.GoLive(context.Background(), req)

	assert.ErrorIs(t, err, live.ErrTransient)
	assert.Equal(t, live.StateIdle, c.State())
	assert.Equal(t, 1, f.capture.Released())
	assert.Zero(t, f.capture.Active())
	assert.Zero(t, f.thumbs.Len())
}

func TestGoLiveNotifierFailureDoesNotBlock(t *testing.T) {
	f := newFixture()
	f.notifier.Fail("notify", errors.New("queue down"))
	c, _ := f.goLive(t, quiet)
	assert.Equal(t, live.StateLive, c.State())
}

func TestGoLiveTwiceIsInvalid(t *testing.T) {
	f := newFixture()
	c, _ := f.goLive(t, quiet)
	_, err := c.GoLive(context.Background(), gameNight())
	assert.ErrorIs(t, err, live.ErrInvalidState)
}

func TestJoinLeaveTracksViewerCount(t *testing.T) {
	f := newFixture()
	c, s := f.goLive(t, quiet)
	ctx := context.Background()

	viewers := []live.Participant{viewer("a"), viewer("b"), viewer("c"), viewer("d"), viewer("e")}
	for _, v := range viewers {
		require.NoError(t, c.Join(ctx, v))
	}
	// a rejoin refreshes the same entry
	require.NoError(t, c.Join(ctx, viewers[0]))
	require.NoError(t, c.Leave(ctx, viewers[1].ID))
	require.NoError(t, c.Leave(ctx, viewers[2].ID))

	assert.Equal(t, 3, c.ViewerCount())
	unique, err := f.presence.UniqueCount(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, unique)

	assert.Eventually(t, func() bool {
		rec, err := f.store.Get(ctx, s.ID)
		return err == nil && rec.ViewerCount == 3
	}, time.Second, 5*time.Millisecond)

	counts := f.events.Named(live.EventViewerCount)
	require.NotEmpty(t, counts)
	assert.Equal(t, map[string]int{"count": 3}, counts[len(counts)-1].Payload)
}

func TestLeaveNeverGoesNegative(t *testing.T) {
	f := newFixture()
	c, _ := f.goLive(t, quiet)
	require.NoError(t, c.Leave(context.Background(), uuid.New()))
	assert.Equal(t, 0, c.ViewerCount())
}

func TestChatCountsOnlyAppendedMessages(t *testing.T) {
	f := newFixture()
	c, s := f.goLive(t, quiet)
	ctx := context.Background()
	alice, bob := viewer("alice"), viewer("bob")

	_, err := c.TimeoutUser(ctx, host, bob.ID, 0)
	require.NoError(t, err)

	for _, text := range []string{"hi", "gg", "nice"} {
		_, err := c.SendChat(ctx, alice, text)
		require.NoError(t, err)
	}
	_, err = c.SendChat(ctx, alice, "   ")
	assert.ErrorIs(t, err, live.ErrValidation)
	_, err = c.SendChat(ctx, bob, "let me talk")
	assert.ErrorIs(t, err, live.ErrTimedOut)

	assert.Equal(t, 3, c.ChatCount())
	assert.Len(t, f.events.Named(live.EventChatMessage), 3)

	sum, err := c.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.ChatMessageCount)

	msgs, err := f.chat.List(ctx, s.ID, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestChatDisabledRejectsMessages(t *testing.T) {
	f := newFixture()
	c := live.NewController(host, f.deps(), quiet)
	req := gameNight()
	req.ChatEnabled = false
	s, err := c.GoLive(context.Background(), req)
	require.NoError(t, err)
	defer c.End(context.Background())

	_, err = c.SendChat(context.Background(), viewer("a"), "hello")
	assert.ErrorIs(t, err, live.ErrValidation)
	assert.Zero(t, f.chat.Subscribers(s.ID))
}

func TestTimedOutUserRejectedUntilExpiry(t *testing.T) {
	f := newFixture()
	c, s := f.goLive(t, quiet)
	ctx := context.Background()
	troll := viewer("troll")

	to, err := c.TimeoutUser(ctx, host, troll.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(live.DefaultTimeout), to.TimeoutUntil)

	for i := 0; i < 5; i++ {
		_, err := c.SendChat(ctx, troll, "spam")
		assert.ErrorIs(t, err, live.ErrTimedOut)
		f.clock.Advance(time.Minute - time.Second)
	}
	msgs, _ := f.chat.List(ctx, s.ID, 10)
	assert.Empty(t, msgs)

	f.clock.Advance(5 * time.Second)
	require.Equal(t, to.TimeoutUntil, f.clock.Now())
	_, err = c.SendChat(ctx, troll, "sorry")
	require.NoError(t, err)
	assert.Equal(t, 1, c.ChatCount())
}

func TestTimeoutOverwritesPreviousDeadline(t *testing.T) {
	f := newFixture()
	c, _ := f.goLive(t, quiet)
	ctx := context.Background()
	user := viewer("u")

	_, err := c.TimeoutUser(ctx, host, user.ID, 30*time.Minute)
	require.NoError(t, err)
	_, err = c.TimeoutUser(ctx, host, user.ID, time.Minute)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = c.SendChat(ctx, user, "back")
	assert.NoError(t, err)
}

func TestModerationAuthorization(t *testing.T) {
	f := newFixture()
	c, _ := f.goLive(t, quiet)
	ctx := context.Background()
	alice, bob := viewer("alice"), viewer("bob")
	mod := live.Participant{ID: uuid.New(), DisplayName: "mod", Role: models.RoleModerator}

	m1, err := c.SendChat(ctx, alice, "first")
	require.NoError(t, err)
	m2, err := c.SendChat(ctx, alice, "second")
	require.NoError(t, err)
	m3, err := c.SendChat(ctx, alice, "third")
	require.NoError(t, err)

	assert.ErrorIs(t, c.DeleteMessage(ctx, bob, m1.ID), live.ErrForbidden)
	_, err = c.TimeoutUser(ctx, bob, alice.ID, time.Minute)
	assert.ErrorIs(t, err, live.ErrForbidden)
	_, err = c.TimeoutUser(ctx, mod, host.ID, time.Minute)
	assert.ErrorIs(t, err, live.ErrValidation)

	require.NoError(t, c.DeleteMessage(ctx, alice, m1.ID))
	require.NoError(t, c.DeleteMessage(ctx, mod, m2.ID))
	require.NoError(t, c.DeleteMessage(ctx, host, m3.ID))
	assert.ErrorIs(t, c.DeleteMessage(ctx, host, m3.ID), live.ErrNotFound)
	assert.Len(t, f.events.Named(live.EventChatDeleted), 3)

	_, err = c.TimeoutUser(ctx, mod, bob.ID, time.Minute)
	assert.NoError(t, err)
}

func TestEndConcurrentWithJoinsAndChatReleasesOnce(t *testing.T) {
	f := newFixture()
	c, s := f.goLive(t, quiet)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var appended int
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := c.Join(ctx, viewer("v"))
			if err != nil {
				assert.ErrorIs(t, err, live.ErrNotFound)
			}
		}()
		go func() {
			defer wg.Done()
			_, err := c.SendChat(ctx, viewer("c"), "hello")
			if err != nil {
				assert.ErrorIs(t, err, live.ErrNotFound)
				return
			}
			mu.Lock()
			appended++
			mu.Unlock()
		}()
	}
	summaries := make(chan *models.StreamSummary, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum, err := c.End(ctx)
			assert.NoError(t, err)
			summaries <- sum
		}()
	}
	wg.Wait()
	close(summaries)

	assert.Equal(t, 1, f.capture.Released())
	assert.Zero(t, f.capture.Active())
	assert.Equal(t, 1, f.store.FinalizeCalls())
	assert.Zero(t, f.presence.Subscribers(s.ID))
	assert.Zero(t, f.chat.Subscribers(s.ID))

	var first *models.StreamSummary
	for sum := range summaries {
		if first == nil {
			first = sum
			continue
		}
		assert.Equal(t, *first, *sum)
	}
	assert.Equal(t, appended, first.ChatMessageCount)
}

func TestGameNightRoundTrip(t *testing.T) {
	f := newFixture()
	c := live.NewController(host, f.deps(), quiet)
	ctx := context.Background()

	s, err := c.GoLive(ctx, gameNight())
	require.NoError(t, err)

	a, b, d := viewer("a"), viewer("b"), viewer("d")
	for _, v := range []live.Participant{a, b, d} {
		require.NoError(t, c.Join(ctx, v))
	}
	require.NoError(t, c.Leave(ctx, b.ID))

	_, err = c.TimeoutUser(ctx, host, d.ID, 0)
	require.NoError(t, err)
	for _, m := range []struct {
		from live.Participant
		text string
	}{{a, "hi"}, {b, "hello"}, {d, "spam"}, {a, "gg"}, {host, "thanks all"}} {
		_, err := c.SendChat(ctx, m.from, m.text)
		if m.from.ID == d.ID {
			assert.ErrorIs(t, err, live.ErrTimedOut)
			continue
		}
		require.NoError(t, err)
	}

	f.clock.Advance(time.Hour + 2*time.Minute + 3*time.Second)
	samples := c.Samples()
	sum, err := c.End(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.StreamSummary{
		AverageViewers:   live.AverageViewers(samples),
		TotalViewers:     3,
		ChatMessageCount: 4,
		Duration:         "01:02:03",
		TotalTips:        "0.00",
	}, *sum)

	rec, err := f.store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StreamStatusEnded, rec.Status)
	require.NotNil(t, rec.EndedAt)
	assert.Equal(t, f.clock.Now(), *rec.EndedAt)
	require.NotNil(t, rec.Summary)
	assert.Equal(t, *sum, *rec.Summary)
	assert.Zero(t, f.timeouts.Len())
	assert.Len(t, f.events.Named(live.EventStreamEnded), 1)
}

func TestSummaryAveragesSampledViewers(t *testing.T) {
	f := newFixture()
	c, _ := f.goLive(t, live.Config{HeartbeatInterval: time.Hour, SampleInterval: 20 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, c.Join(ctx, viewer("a")))
	require.NoError(t, c.Join(ctx, viewer("b")))
	assert.Eventually(t, func() bool { return len(c.Samples()) >= 3 }, 2*time.Second, time.Millisecond)

	sum, err := c.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.AverageViewers)
	assert.Empty(t, c.Samples())
}

func TestSummaryWithoutSamplesAveragesZero(t *testing.T) {
	f := newFixture()
	c, _ := f.goLive(t, quiet)
	require.NoError(t, c.Join(context.Background(), viewer("a")))

	sum, err := c.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.AverageViewers)
	assert.Equal(t, 1, sum.TotalViewers)
}

func TestSummarySumsSessionTips(t *testing.T) {
	f := newFixture()
	c, s := f.goLive(t, quiet)
	other := uuid.New()
	f.tips.Record(models.Tip{SessionID: &s.ID, AmountCents: 1250})
	f.tips.Record(models.Tip{SessionID: &s.ID, AmountCents: 75})
	f.tips.Record(models.Tip{SessionID: &other, AmountCents: 999})

	sum, err := c.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "13.25", sum.TotalTips)
}

func TestEndRetriesSameSummaryAfterStoreFailure(t *testing.T) {
	f := newFixture()
	c, s := f.goLive(t, quiet)
	ctx := context.Background()

	_, err := c.SendChat(ctx, viewer("a"), "hi")
	require.NoError(t, err)

	f.store.Fail("finalize", errors.New("deadline exceeded"))
	_, err = c.End(ctx)
	assert.ErrorIs(t, err, live.ErrTransient)
	assert.Equal(t, live.StateEnding, c.State())
	assert.Equal(t, 1, f.capture.Released())

	assert.ErrorIs(t, c.Join(ctx, viewer("late")), live.ErrNotFound)

	// a tip landing between attempts does not change the computed summary
	f.tips.Record(models.Tip{SessionID: &s.ID, AmountCents: 500})
	f.clock.Advance(time.Hour)

	f.store.Fail("finalize", nil)
	sum, err := c.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.00", sum.TotalTips)
	assert.Equal(t, "00:00:00", sum.Duration)
	assert.Equal(t, 1, sum.ChatMessageCount)
	assert.Equal(t, 2, f.store.FinalizeCalls())
	assert.Equal(t, 1, f.capture.Released())
	assert.Equal(t, live.StateEnded, c.State())
}

func TestEndIsIdempotent(t *testing.T) {
	f := newFixture()
	c, _ := f.goLive(t, quiet)

	first, err := c.End(context.Background())
	require.NoError(t, err)
	second, err := c.End(context.Background())
	require.NoError(t, err)

	assert.Equal(t, *first, *second)
	assert.Equal(t, 1, f.store.FinalizeCalls())
	assert.Equal(t, 1, f.capture.Released())
}

func TestEndBeforeGoLiveIsInvalid(t *testing.T) {
	f := newFixture()
	c := live.NewController(host, f.deps(), quiet)
	_, err := c.End(context.Background())
	assert.ErrorIs(t, err, live.ErrInvalidState)
}

func TestJoinEndedStreamFailsWithoutPresence(t *testing.T) {
	f := newFixture()
	c, s := f.goLive(t, quiet)
	ctx := context.Background()

	_, err := c.End(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, c.Join(ctx, viewer("late")), live.ErrNotFound)
	}
	n, _ := f.presence.Count(ctx, s.ID)
	assert.Zero(t, n)
	u, _ := f.presence.UniqueCount(ctx, s.ID)
	assert.Zero(t, u)
	_, err = c.SendChat(ctx, viewer("late"), "hello?")
	assert.ErrorIs(t, err, live.ErrNotFound)
}

func TestDeviceLossEndsStream(t *testing.T) {
	f := newFixture()
	c, s := f.goLive(t, quiet)

	f.capture.Lose()
	assert.Eventually(t, func() bool { return c.State() == live.StateEnded }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.capture.Released())

	rec, err := f.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StreamStatusEnded, rec.Status)
}

func TestHeartbeatWritesDuration(t *testing.T) {
	f := newFixture()
	_, s := f.goLive(t, live.Config{HeartbeatInterval: 2 * time.Millisecond, SampleInterval: time.Hour})
	f.clock.Advance(65 * time.Second)

	assert.Eventually(t, func() bool {
		rec, err := f.store.Get(context.Background(), s.ID)
		return err == nil && rec.Duration == "00:01:05"
	}, time.Second, 2*time.Millisecond)
}

func TestHeartbeatFailureKeepsStreamLive(t *testing.T) {
	f := newFixture()
	f.store.Fail("update_duration", errors.New("timeout"))
	c, _ := f.goLive(t, live.Config{HeartbeatInterval: time.Millisecond, SampleInterval: time.Millisecond})

	assert.Eventually(t, func() bool { return len(c.Samples()) >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, live.StateLive, c.State())
}

// recordingStore remembers the id each record carries when it reaches Create.
type recordingStore struct {
	*memory.SessionStore
	mu  sync.Mutex
	ids []uuid.UUID
}

func (s *recordingStore) Create(ctx context.Context, session *models.StreamSession) error {
	s.mu.Lock()
	s.ids = append(s.ids, session.ID)
	s.mu.Unlock()
	return s.SessionStore.Create(ctx, session)
}

func TestGoLiveHandsStoreAFreshID(t *testing.T) {
	f := newFixture()
	store := &recordingStore{SessionStore: f.store}
	deps := f.deps()
	deps.Store = store
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		c := live.NewController(host, deps, quiet)
		s, err := c.GoLive(ctx, gameNight())
		require.NoError(t, err)
		assert.Equal(t, s.ID, c.SessionID())
		_, err = c.End(ctx)
		require.NoError(t, err)
	}

	require.Len(t, store.ids, 2)
	assert.NotEqual(t, uuid.Nil, store.ids[0])
	assert.NotEqual(t, uuid.Nil, store.ids[1])
	assert.NotEqual(t, store.ids[0], store.ids[1])
}

// gatedCapture blocks Acquire until open is closed.
type gatedCapture struct {
	*memory.CaptureDevice
	entered chan struct{}
	open    chan struct{}
}

func newGatedCapture(d *memory.CaptureDevice) *gatedCapture {
	return &gatedCapture{CaptureDevice: d, entered: make(chan struct{}), open: make(chan struct{})}
}

func (g *gatedCapture) Acquire(ctx context.Context, p live.Participant) (live.MediaStream, error) {
	close(g.entered)
	<-g.open
	return g.CaptureDevice.Acquire(ctx, p)
}

// gatedStore blocks Create until open is closed.
type gatedStore struct {
	*memory.SessionStore
	entered chan struct{}
	open    chan struct{}
}

func (g *gatedStore) Create(ctx context.Context, session *models.StreamSession) error {
	close(g.entered)
	<-g.open
	return g.SessionStore.Create(ctx, session)
}

func TestCancelSetupWhileCapturingReleasesDevice(t *testing.T) {
	f := newFixture()
	gate := newGatedCapture(f.capture)
	deps := f.deps()
	deps.Capture = gate
	c := live.NewController(host, deps, quiet)

	errc := make(chan error, 1)
	go func() {
		_, err := c.GoLive(context.Background(), gameNight())
		errc <- err
	}()
	<-gate.entered
	assert.True(t, c.CancelSetup())
	close(gate.open)

	assert.ErrorIs(t, <-errc, live.ErrInvalidState)
	assert.Equal(t, live.StateIdle, c.State())
	assert.Zero(t, f.capture.Active())
	all, err := f.store.ListLive(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCancelSetupAfterRecordCreatedEndsStream(t *testing.T) {
	f := newFixture()
	gate := &gatedStore{SessionStore: f.store, entered: make(chan struct{}), open: make(chan struct{})}
	deps := f.deps()
	deps.Store = gate
	c := live.NewController(host, deps, quiet)

	errc := make(chan error, 1)
	go func() {
		_, err := c.GoLive(context.Background(), gameNight())
		errc <- err
	}()
	<-gate.entered
	assert.True(t, c.CancelSetup())
	close(gate.open)

	assert.ErrorIs(t, <-errc, live.ErrInvalidState)
	assert.Equal(t, live.StateEnded, c.State())
	assert.Zero(t, f.capture.Active())
	rec, err := f.store.Get(context.Background(), c.SessionID())
	require.NoError(t, err)
	assert.Equal(t, models.StreamStatusEnded, rec.Status)
	require.NotNil(t, rec.Summary)
}

func TestCancelSetupOnceLiveDefersToEnd(t *testing.T) {
	f := newFixture()
	c, _ := f.goLive(t, quiet)
	assert.False(t, c.CancelSetup())
	assert.Equal(t, live.StateLive, c.State())
}
