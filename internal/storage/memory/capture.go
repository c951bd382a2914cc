package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/aura-live/backend/internal/live"
)

// Stream is a fake media stream handle.
type Stream struct {
	id   string
	done chan struct{}
	once sync.Once
}

// ID returns the stream id.
func (s *Stream) ID() string { return s.id }

// Done is closed when the device is lost.
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) lose() { s.once.Do(func() { close(s.done) }) }

// CaptureDevice hands out fake streams and counts acquisitions and releases.
type CaptureDevice struct {
	faults
	mu       sync.Mutex
	active   map[string]*Stream
	acquired int
	released int
}

// NewCaptureDevice creates a capture device that always grants access.
func NewCaptureDevice() *CaptureDevice {
	return &CaptureDevice{active: make(map[string]*Stream)}
}

// Acquire returns a new stream, or the error set with Fail("acquire", ...).
func (d *CaptureDevice) Acquire(_ context.Context, _ live.Participant) (live.MediaStream, error) {
	if err := d.err("acquire"); err != nil {
		return nil, err
	}
	s := &Stream{id: uuid.NewString(), done: make(chan struct{})}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active[s.id] = s
	d.acquired++
	return s, nil
}

// Release returns the stream to the device.
func (d *CaptureDevice) Release(stream live.MediaStream) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released++
	if _, ok := d.active[stream.ID()]; !ok {
		return errors.New("stream not acquired")
	}
	delete(d.active, stream.ID())
	return nil
}

// Lose simulates the device disappearing under every active stream.
func (d *CaptureDevice) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.active {
		s.lose()
	}
}

// Acquired counts successful acquisitions.
func (d *CaptureDevice) Acquired() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

// Released counts Release calls.
func (d *CaptureDevice) Released() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Active returns the number of streams currently held.
func (d *CaptureDevice) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// Event is one published realtime event.
type Event struct {
	SessionID uuid.UUID
	Name      string
	Payload   interface{}
}

// EventLog records published events.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

// NewEventLog creates an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// BroadcastToSession records the event.
func (l *EventLog) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{SessionID: sessionID, Name: event, Payload: payload})
}

// Named returns the recorded events with the given name.
func (l *EventLog) Named(name string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
