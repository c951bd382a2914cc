package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/capture"
)

// RTP buffer size (MTU-friendly). Used with sync.Pool to avoid per-packet allocs.
const rtpBufferSize = 1500

var rtpBufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, rtpBufferSize)
		return &b
	},
}

// SFU manages one WebRTC publisher (the broadcaster) and its subscribers (viewers) per
// broadcaster. A broadcaster publishes before going live; the live controller claims the
// publication through capture.Slots.
type SFU struct {
	studios map[uuid.UUID]*studio
	mu      sync.RWMutex
	log     *zap.Logger
	cfg     webrtc.Configuration
}

type studio struct {
	broadcasterID uuid.UUID
	publisher     *webrtc.PeerConnection
	tracks        []*relayTrack
	subscribers   map[string]*subscriberPeer
	claimed       bool
	lost          chan struct{}
	lostOnce      *sync.Once
	mu            sync.RWMutex
	log           *zap.Logger
}

type relayTrack struct {
	remote *webrtc.TrackRemote
	locals []*webrtc.TrackLocalStaticRTP
	mu     sync.Mutex
}

type subscriberPeer struct {
	pc *webrtc.PeerConnection
}

// NewSFU creates an SFU with the given ICE (STUN/TURN) server URLs.
func NewSFU(log *zap.Logger, iceURLs []string) *SFU {
	if log == nil {
		log = zap.NewNop()
	}
	return &SFU{
		studios: make(map[uuid.UUID]*studio),
		log:     log,
		cfg:     webrtc.Configuration{ICEServers: parseICEServers(iceURLs)},
	}
}

var _ capture.Slots = (*SFU)(nil)

func (s *SFU) getOrCreateStudio(broadcasterID uuid.UUID) *studio {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.studios[broadcasterID]; ok {
		return st
	}
	st := &studio{
		broadcasterID: broadcasterID,
		subscribers:   make(map[string]*subscriberPeer),
		lost:          make(chan struct{}),
		lostOnce:      &sync.Once{},
		log:           s.log.With(zap.String("broadcaster_id", broadcasterID.String())),
	}
	s.studios[broadcasterID] = st
	return st
}

func (s *SFU) getStudio(broadcasterID uuid.UUID) *studio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.studios[broadcasterID]
}

func newPeerConnection(cfg webrtc.Configuration) (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return api.NewPeerConnection(cfg)
}

// HandlePublisherOffer handles the broadcaster's SDP offer and sends back an answer.
// A publication already claimed by a live stream cannot be replaced.
func (s *SFU) HandlePublisherOffer(broadcasterID uuid.UUID, sdp webrtc.SessionDescription, sendToClient func(event string, payload interface{})) error {
	st := s.getOrCreateStudio(broadcasterID)

	st.mu.Lock()
	if st.claimed {
		st.mu.Unlock()
		sendToClient("webrtc_error", map[string]string{"message": "stream_in_progress"})
		return nil
	}
	if st.publisher != nil {
		old := st.publisher
		st.publisher = nil
		st.tracks = nil
		st.mu.Unlock()
		_ = old.Close()
		st.mu.Lock()
	}

	pc, err := newPeerConnection(s.cfg)
	if err != nil {
		st.mu.Unlock()
		return err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, _ := json.Marshal(c.ToJSON())
		sendToClient("webrtc_ice", map[string]interface{}{"target": "publisher", "candidate": json.RawMessage(b)})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		relay := &relayTrack{remote: track}
		st.mu.Lock()
		st.tracks = append(st.tracks, relay)
		st.mu.Unlock()
		st.relayTrackToSubscribers(relay)
		go relay.readAndForward()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state != webrtc.PeerConnectionStateFailed && state != webrtc.PeerConnectionStateClosed {
			return
		}
		st.mu.RLock()
		current := st.publisher == pc
		claimed := st.claimed
		once, lost := st.lostOnce, st.lost
		st.mu.RUnlock()
		if current && claimed {
			st.log.Warn("publisher connection lost", zap.String("state", state.String()))
			once.Do(func() { close(lost) })
		}
	})

	if err := pc.SetRemoteDescription(sdp); err != nil {
		_ = pc.Close()
		st.mu.Unlock()
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		st.mu.Unlock()
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		st.mu.Unlock()
		return err
	}
	st.publisher = pc
	st.mu.Unlock()

	sendToClient("webrtc_publisher_answer", map[string]interface{}{
		"type": answer.Type.String(),
		"sdp":  answer.SDP,
	})
	return nil
}

// Claim marks the broadcaster's publication as held by a live stream. The returned
// channel is closed if the publisher connection fails while claimed.
func (s *SFU) Claim(broadcasterID uuid.UUID) (string, <-chan struct{}, error) {
	st := s.getStudio(broadcasterID)
	if st == nil {
		return "", nil, capture.ErrNoPublisher
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.publisher == nil || len(st.tracks) == 0 {
		return "", nil, capture.ErrNoPublisher
	}
	if st.claimed {
		return "", nil, capture.ErrSlotBusy
	}
	st.claimed = true
	st.lost = make(chan struct{})
	st.lostOnce = &sync.Once{}
	return st.tracks[0].remote.StreamID(), st.lost, nil
}

func (rt *relayTrack) readAndForward() {
	for {
		ptr := rtpBufferPool.Get().(*[]byte)
		buf := *ptr
		n, _, err := rt.remote.Read(buf)
		if err != nil {
			rtpBufferPool.Put(ptr)
			return
		}
		// Copy subscribers under lock, write without it so one slow subscriber doesn't block others.
		rt.mu.Lock()
		locals := make([]*webrtc.TrackLocalStaticRTP, len(rt.locals))
		copy(locals, rt.locals)
		rt.mu.Unlock()
		for _, local := range locals {
			_, _ = local.Write(buf[:n])
		}
		rtpBufferPool.Put(ptr)
	}
}

func (st *studio) relayTrackToSubscribers(relay *relayTrack) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, sub := range st.subscribers {
		if sub.pc == nil {
			continue
		}
		local, err := webrtc.NewTrackLocalStaticRTP(relay.remote.Codec().RTPCodecCapability, relay.remote.ID(), relay.remote.StreamID())
		if err != nil {
			continue
		}
		relay.mu.Lock()
		relay.locals = append(relay.locals, local)
		relay.mu.Unlock()
		_, _ = sub.pc.AddTrack(local)
	}
}

// HandlePublisherICE adds an ICE candidate to the publisher PC.
func (s *SFU) HandlePublisherICE(broadcasterID uuid.UUID, candidate webrtc.ICECandidateInit) error {
	st := s.getStudio(broadcasterID)
	if st == nil {
		return nil
	}
	st.mu.RLock()
	pc := st.publisher
	st.mu.RUnlock()
	if pc != nil {
		return pc.AddICECandidate(candidate)
	}
	return nil
}

// HandleSubscribe creates a viewer PC on the broadcaster's studio and sends an offer.
func (s *SFU) HandleSubscribe(broadcasterID uuid.UUID, clientID string, sendToClient func(event string, payload interface{})) error {
	st := s.getStudio(broadcasterID)
	if st == nil {
		sendToClient("webrtc_error", map[string]string{"message": "no_stream"})
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.publisher == nil || len(st.tracks) == 0 {
		sendToClient("webrtc_error", map[string]string{"message": "no_stream"})
		return nil
	}

	pc, err := newPeerConnection(s.cfg)
	if err != nil {
		return err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, _ := json.Marshal(c.ToJSON())
		sendToClient("webrtc_ice", map[string]interface{}{"target": "subscriber", "candidate": json.RawMessage(b)})
	})

	for _, relay := range st.tracks {
		local, err := webrtc.NewTrackLocalStaticRTP(relay.remote.Codec().RTPCodecCapability, relay.remote.ID(), relay.remote.StreamID())
		if err != nil {
			continue
		}
		relay.mu.Lock()
		relay.locals = append(relay.locals, local)
		relay.mu.Unlock()
		_, _ = pc.AddTrack(local)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return err
	}
	st.subscribers[clientID] = &subscriberPeer{pc: pc}
	sendToClient("webrtc_subscriber_offer", map[string]interface{}{
		"type": offer.Type.String(),
		"sdp":  offer.SDP,
	})
	return nil
}

// HandleSubscriberAnswer sets the viewer's SDP answer.
func (s *SFU) HandleSubscriberAnswer(broadcasterID uuid.UUID, clientID string, sdp webrtc.SessionDescription) error {
	st := s.getStudio(broadcasterID)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	sub, ok := st.subscribers[clientID]
	st.mu.Unlock()
	if !ok || sub.pc == nil {
		return nil
	}
	return sub.pc.SetRemoteDescription(sdp)
}

// HandleSubscriberICE adds an ICE candidate to the viewer PC.
func (s *SFU) HandleSubscriberICE(broadcasterID uuid.UUID, clientID string, candidate webrtc.ICECandidateInit) error {
	st := s.getStudio(broadcasterID)
	if st == nil {
		return nil
	}
	st.mu.RLock()
	sub, ok := st.subscribers[clientID]
	st.mu.RUnlock()
	if !ok || sub.pc == nil {
		return nil
	}
	return sub.pc.AddICECandidate(candidate)
}

// UnregisterClient removes a viewer and closes their PC.
func (s *SFU) UnregisterClient(broadcasterID uuid.UUID, clientID string) {
	st := s.getStudio(broadcasterID)
	if st == nil {
		return
	}
	st.mu.Lock()
	sub, ok := st.subscribers[clientID]
	delete(st.subscribers, clientID)
	st.mu.Unlock()
	if ok && sub.pc != nil {
		_ = sub.pc.Close()
	}
}

// ClosePublisher stops the broadcaster's publication and every viewer PC, then drops the studio.
func (s *SFU) ClosePublisher(broadcasterID uuid.UUID) {
	s.mu.Lock()
	st := s.studios[broadcasterID]
	delete(s.studios, broadcasterID)
	s.mu.Unlock()
	if st == nil {
		return
	}
	st.mu.Lock()
	pc := st.publisher
	subs := st.subscribers
	st.publisher = nil
	st.tracks = nil
	st.claimed = false
	st.subscribers = make(map[string]*subscriberPeer)
	st.mu.Unlock()
	if pc != nil {
		_ = pc.Close()
	}
	for _, sub := range subs {
		if sub.pc != nil {
			_ = sub.pc.Close()
		}
	}
	st.log.Debug("publisher closed")
}

var defaultICE = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

func parseICEServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return defaultICE
	}
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		out = append(out, webrtc.ICEServer{URLs: []string{u}})
	}
	if len(out) == 0 {
		return defaultICE
	}
	return out
}
