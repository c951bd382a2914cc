// Package capture hands the broadcaster's published WebRTC media to the live controller.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/live"
)

// Errors returned by a Slots implementation.
var (
	ErrNoPublisher = errors.New("no camera or microphone is being published")
	ErrSlotBusy    = errors.New("publisher is already live")
)

// Slots is the SFU's per-broadcaster publisher slot. Claim returns the publication id and
// a channel closed when the publisher connection is lost.
type Slots interface {
	Claim(broadcasterID uuid.UUID) (id string, done <-chan struct{}, err error)
	ClosePublisher(broadcasterID uuid.UUID)
}

type stream struct {
	id          string
	broadcaster uuid.UUID
	done        <-chan struct{}
	once        sync.Once
}

func (s *stream) ID() string            { return s.id }
func (s *stream) Done() <-chan struct{} { return s.done }

// Device implements live.CaptureDevice over the SFU publisher slot.
type Device struct {
	slots  Slots
	logger *zap.Logger
}

// NewDevice creates a capture device.
func NewDevice(slots Slots, logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Device{slots: slots, logger: logger}
}

// Acquire claims the broadcaster's publisher slot. Roles that cannot broadcast get
// ErrPermissionDenied; a missing or busy publication is a device error.
func (d *Device) Acquire(_ context.Context, broadcaster live.Participant) (live.MediaStream, error) {
	if !broadcaster.Role.CanBroadcast() {
		return nil, live.PermissionDenied(fmt.Errorf("role %q may not publish media", broadcaster.Role))
	}
	id, done, err := d.slots.Claim(broadcaster.ID)
	if err != nil {
		return nil, live.DeviceError(err)
	}
	d.logger.Debug("publisher slot claimed", zap.String("user_id", broadcaster.ID.String()), zap.String("stream_id", id))
	return &stream{id: id, broadcaster: broadcaster.ID, done: done}, nil
}

// Release closes the publisher connection. Releasing twice is a no-op.
func (d *Device) Release(ms live.MediaStream) error {
	s, ok := ms.(*stream)
	if !ok {
		return fmt.Errorf("capture: foreign stream %T", ms)
	}
	s.once.Do(func() {
		d.slots.ClosePublisher(s.broadcaster)
		d.logger.Debug("publisher slot released", zap.String("user_id", s.broadcaster.String()), zap.String("stream_id", s.id))
	})
	return nil
}
