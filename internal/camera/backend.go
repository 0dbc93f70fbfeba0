package camera

import (
	"context"
	"fmt"
	"sync"

	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/logging"
)

// Backend is the platform camera service.
type Backend interface {
	CameraIDs() ([]string, error)
	Characteristics(id string) (Characteristics, error)
	// Open starts opening a device. Exactly one of OnOpened or OnError is
	// delivered on looper unless Open itself returns an error.
	Open(id string, looper *Looper, cb DeviceCallbacks) error
}

// DeviceCallbacks receive device state changes.
type DeviceCallbacks struct {
	OnOpened       func(Device)
	OnDisconnected func(Device)
	OnError        func(Device, ErrorCode)
}

// Device is an open camera.
type Device interface {
	ID() string
	// CreateSession starts configuring a session. Exactly one of
	// OnConfigured or OnConfigureFailed is delivered on looper.
	CreateSession(cfg SessionConfig, looper *Looper, cb SessionCallbacks) error
	Close() error
}

// SessionCallbacks receive session state changes.
type SessionCallbacks struct {
	OnConfigured      func(Session)
	OnConfigureFailed func(Session)
	// OnClosed is delivered after the session stopped delivering frames.
	OnClosed func(Session)
}

// Session is a configured capture session.
type Session interface {
	Device() Device
	SetRepeatingRequest(req CaptureRequest) error
	StopRepeating() error
	Close() error
}

// SessionKind selects how outputs are configured.
type SessionKind int

// Session kinds.
const (
	// SessionLegacy configures bare output targets; every output uses the
	// standard dynamic range.
	SessionLegacy SessionKind = iota
	// SessionDynamicRange configures each output with a dynamic range profile.
	SessionDynamicRange
)

func (k SessionKind) String() string {
	if k == SessionDynamicRange {
		return "dynamic-range"
	}
	return "legacy"
}

// OutputConfig is one session output.
type OutputConfig struct {
	Window       gpu.Window
	DynamicRange DynamicRange
}

// SessionConfig describes the outputs of a session.
type SessionConfig struct {
	Kind    SessionKind
	Outputs []OutputConfig
}

// Windows returns the output targets.
func (c SessionConfig) Windows() []gpu.Window {
	wins := make([]gpu.Window, len(c.Outputs))
	for i, o := range c.Outputs {
		wins[i] = o.Window
	}
	return wins
}

// FindByFacing returns the first camera with the requested facing.
func FindByFacing(b Backend, facing Facing) (string, error) {
	ids, err := b.CameraIDs()
	if err != nil {
		return "", fmt.Errorf("list cameras: %w", err)
	}
	for _, id := range ids {
		ch, err := b.Characteristics(id)
		if err != nil {
			return "", fmt.Errorf("camera %s characteristics: %w", id, err)
		}
		if ch.Facing == facing {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoCamera, facing)
}

// OpenDevice opens camera id and blocks until it is open or has failed.
// Device errors are returned as *DeviceAcquisitionError. onDisconnected, if
// set, runs on looper when an open device is disconnected.
//
// If ctx ends first, a device that opens later is closed.
func OpenDevice(ctx context.Context, b Backend, id string, looper *Looper, onDisconnected func(Device)) (Device, error) {
	logger := logging.GetLogger("camera")

	type result struct {
		dev Device
		err error
	}
	resCh := make(chan result, 1)
	var mu sync.Mutex
	var resolved, abandoned bool

	// resolve hands r to the waiting caller. It reports false when the
	// caller is gone or already has a result.
	resolve := func(r result) bool {
		mu.Lock()
		defer mu.Unlock()
		if resolved || abandoned {
			return false
		}
		resolved = true
		resCh <- r
		return true
	}

	cb := DeviceCallbacks{
		OnOpened: func(d Device) {
			logger.Info("Camera device acquired", "camera", d.ID())
			if !resolve(result{dev: d}) {
				logger.Warn("Camera opened after caller gave up, closing", "camera", d.ID())
				_ = d.Close()
			}
		},
		OnDisconnected: func(d Device) {
			logger.Warn("Camera disconnected", "camera", d.ID())
			if onDisconnected != nil {
				onDisconnected(d)
			}
		},
		OnError: func(d Device, code ErrorCode) {
			err := &DeviceAcquisitionError{CameraID: id, Code: code}
			logger.Error("Camera device error", "camera", id, "reason", code.Reason(), "error", err)
			if !resolve(result{err: err}) && d != nil {
				_ = d.Close()
			}
		},
	}

	if err := b.Open(id, looper, cb); err != nil {
		return nil, fmt.Errorf("open camera %s: %w", id, err)
	}

	select {
	case r := <-resCh:
		return r.dev, r.err
	case <-ctx.Done():
		mu.Lock()
		abandoned = true
		mu.Unlock()
		select {
		case r := <-resCh:
			return r.dev, r.err
		default:
		}
		return nil, ctx.Err()
	}
}

// CreateSession configures a session on dev and blocks until it is
// configured. A configuration failure is returned as
// *SessionConfigurationError. onClosed, if set, runs on looper once the
// session has closed.
func CreateSession(ctx context.Context, dev Device, cfg SessionConfig, looper *Looper, onClosed func(Session)) (Session, error) {
	type result struct {
		s   Session
		err error
	}
	resCh := make(chan result, 1)
	var mu sync.Mutex
	var resolved, abandoned bool
	resolve := func(r result) bool {
		mu.Lock()
		defer mu.Unlock()
		if resolved || abandoned {
			return false
		}
		resolved = true
		resCh <- r
		return true
	}

	cb := SessionCallbacks{
		OnConfigured: func(s Session) {
			if !resolve(result{s: s}) {
				_ = s.Close()
			}
		},
		OnConfigureFailed: func(Session) {
			resolve(result{err: &SessionConfigurationError{CameraID: dev.ID()}})
		},
		OnClosed: onClosed,
	}
	if err := dev.CreateSession(cfg, looper, cb); err != nil {
		return nil, &SessionConfigurationError{CameraID: dev.ID(), Err: err}
	}

	select {
	case r := <-resCh:
		return r.s, r.err
	case <-ctx.Done():
		mu.Lock()
		abandoned = true
		mu.Unlock()
		select {
		case r := <-resCh:
			return r.s, r.err
		default:
		}
		return nil, ctx.Err()
	}
}
