// Package sim is a simulated camera backend. It produces solid test-pattern
// frames into the targets of the active repeating request, either on a timer
// or on demand through EmitFrame.
package sim

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/shadercam/internal/camera"
	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/logging"
)

// ErrUnknownCamera is returned by Characteristics and Open for unknown ids.
var ErrUnknownCamera = errors.New("unknown camera")

// Options configure a simulated backend.
type Options struct {
	// Cameras defaults to DefaultCameras().
	Cameras []camera.Characteristics
	// OpenErrors makes Open fail for a camera id with the given code.
	OpenErrors map[string]camera.ErrorCode
	// ConfigureFails makes every session configuration fail.
	ConfigureFails bool
	// FrameInterval is the delay between generated frames. Zero derives it
	// from the request frame rate; a negative value disables the timer so
	// frames only flow through EmitFrame.
	FrameInterval time.Duration
	// OpenDelay delays the open callbacks.
	OpenDelay time.Duration
}

// DefaultCameras returns a back and a front camera with a 16:9 sensor.
func DefaultCameras() []camera.Characteristics {
	sizes := []camera.Size{
		{Width: 3840, Height: 2160},
		{Width: 1920, Height: 1080},
		{Width: 1440, Height: 1080},
		{Width: 1280, Height: 720},
		{Width: 640, Height: 480},
	}
	return []camera.Characteristics{
		{
			ID:                "0",
			Facing:            camera.FacingBack,
			SensorOrientation: 90,
			ActiveArray:       camera.Size{Width: 4000, Height: 2250},
			OutputSizes:       sizes,
			Capabilities: camera.Capabilities{
				DynamicRangeProfiles:    []camera.DynamicRange{camera.DynamicRangeHLG10, camera.DynamicRangeHDR10},
				ZoomRatioRange:          [2]float32{0.6, 10},
				PreviewStabilization:    true,
				MaxResolutionSensorMode: true,
			},
		},
		{
			ID:                "1",
			Facing:            camera.FacingFront,
			SensorOrientation: 270,
			ActiveArray:       camera.Size{Width: 3200, Height: 1800},
			OutputSizes:       sizes[1:],
			Capabilities: camera.Capabilities{
				ZoomRatioRange: [2]float32{1, 4},
			},
		},
	}
}

// Backend is a simulated camera service.
type Backend struct {
	opts   Options
	logger logging.Logger

	mu       sync.Mutex
	open     map[string]*Device
	requests []camera.CaptureRequest
	opens    int
}

// New creates a simulated backend.
func New(opts Options) *Backend {
	if opts.Cameras == nil {
		opts.Cameras = DefaultCameras()
	}
	return &Backend{
		opts:   opts,
		logger: logging.GetLogger("camera"),
		open:   make(map[string]*Device),
	}
}

// CameraIDs implements camera.Backend.
func (b *Backend) CameraIDs() ([]string, error) {
	ids := make([]string, len(b.opts.Cameras))
	for i, c := range b.opts.Cameras {
		ids[i] = c.ID
	}
	return ids, nil
}

// Characteristics implements camera.Backend.
func (b *Backend) Characteristics(id string) (camera.Characteristics, error) {
	for _, c := range b.opts.Cameras {
		if c.ID == id {
			return c, nil
		}
	}
	return camera.Characteristics{}, fmt.Errorf("%w: %s", ErrUnknownCamera, id)
}

// Open implements camera.Backend. A camera that is already open fails with
// camera.ErrorCameraInUse.
func (b *Backend) Open(id string, looper *camera.Looper, cb camera.DeviceCallbacks) error {
	ch, err := b.Characteristics(id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	code, fail := b.opts.OpenErrors[id]
	if _, busy := b.open[id]; busy && !fail {
		code, fail = camera.ErrorCameraInUse, true
	}
	d := &Device{backend: b, ch: ch, cb: cb, looper: looper}
	if !fail {
		b.open[id] = d
		b.opens++
	}
	b.mu.Unlock()

	deliver := func() {
		if fail {
			if cb.OnError != nil {
				cb.OnError(d, code)
			}
			return
		}
		if cb.OnOpened != nil {
			cb.OnOpened(d)
		}
	}
	if b.opts.OpenDelay > 0 {
		time.AfterFunc(b.opts.OpenDelay, func() {
			// Nobody is left to receive the device.
			if !looper.Post(deliver) && !fail {
				b.release(d)
			}
		})
		return nil
	}
	if !looper.Post(deliver) {
		return errors.New("looper is not running")
	}
	return nil
}

// OpenCount returns how many devices were successfully opened.
func (b *Backend) OpenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// IsOpen reports whether camera id is currently open.
func (b *Backend) IsOpen(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.open[id]
	return ok
}

// Requests returns every repeating request issued so far, oldest first.
func (b *Backend) Requests() []camera.CaptureRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.requests)
}

// LastRequest returns the most recent repeating request.
func (b *Backend) LastRequest() (camera.CaptureRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return camera.CaptureRequest{}, false
	}
	return b.requests[len(b.requests)-1], true
}

// Disconnect simulates the device being taken away.
func (b *Backend) Disconnect(id string) {
	b.mu.Lock()
	d := b.open[id]
	b.mu.Unlock()
	if d == nil {
		return
	}
	d.looper.Post(func() {
		if d.cb.OnDisconnected != nil {
			d.cb.OnDisconnected(d)
		}
	})
}

// EmitFrame delivers one frame from every open camera with a repeating
// request. It returns the number of buffers queued.
func (b *Backend) EmitFrame() int {
	b.mu.Lock()
	var sessions []*Session
	for _, d := range b.open {
		if s := d.activeSession(); s != nil {
			sessions = append(sessions, s)
		}
	}
	b.mu.Unlock()

	n := 0
	for _, s := range sessions {
		n += s.emit()
	}
	return n
}

func (b *Backend) recordRequest(req camera.CaptureRequest) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
}

func (b *Backend) release(d *Device) {
	b.mu.Lock()
	if b.open[d.ch.ID] == d {
		delete(b.open, d.ch.ID)
	}
	b.mu.Unlock()
}

// Device is a simulated open camera.
type Device struct {
	backend *Backend
	ch      camera.Characteristics
	cb      camera.DeviceCallbacks
	looper  *camera.Looper

	mu      sync.Mutex
	session *Session
	closed  bool
}

// ID implements camera.Device.
func (d *Device) ID() string {
	return d.ch.ID
}

// CreateSession implements camera.Device. Creating a session closes the
// previous one.
func (d *Device) CreateSession(cfg camera.SessionConfig, looper *camera.Looper, cb camera.SessionCallbacks) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return camera.ErrClosed
	}
	prev := d.session
	s := &Session{device: d, cfg: cfg, cb: cb, looper: looper}
	ok := !d.backend.opts.ConfigureFails && validOutputs(d.ch, cfg)
	if ok {
		d.session = s
	}
	d.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	looper.Post(func() {
		if ok {
			if cb.OnConfigured != nil {
				cb.OnConfigured(s)
			}
			return
		}
		if cb.OnConfigureFailed != nil {
			cb.OnConfigureFailed(s)
		}
	})
	return nil
}

func validOutputs(ch camera.Characteristics, cfg camera.SessionConfig) bool {
	if len(cfg.Outputs) == 0 {
		return false
	}
	for _, o := range cfg.Outputs {
		if o.Window == nil {
			return false
		}
		if w, h := o.Window.Size(); w <= 0 || h <= 0 {
			return false
		}
		if cfg.Kind == camera.SessionLegacy && o.DynamicRange != camera.DynamicRangeStandard {
			return false
		}
		if !ch.SupportsDynamicRange(o.DynamicRange) {
			return false
		}
	}
	return true
}

// Close implements camera.Device. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	s := d.session
	d.session = nil
	d.mu.Unlock()

	if s != nil {
		_ = s.Close()
	}
	d.backend.release(d)
	return nil
}

func (d *Device) activeSession() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// Session is a simulated capture session.
type Session struct {
	device *Device
	cfg    camera.SessionConfig
	cb     camera.SessionCallbacks
	looper *camera.Looper

	mu      sync.Mutex
	request *camera.CaptureRequest
	stop    chan struct{}
	frames  int64
	closed  bool
}

// Device implements camera.Session.
func (s *Session) Device() camera.Device {
	return s.device
}

// Config returns the session configuration.
func (s *Session) Config() camera.SessionConfig {
	return s.cfg
}

// SetRepeatingRequest implements camera.Session. Every target must be one of
// the configured outputs.
func (s *Session) SetRepeatingRequest(req camera.CaptureRequest) error {
	for _, t := range req.Targets {
		if !slices.Contains(s.cfg.Windows(), t) {
			return errors.New("request target is not a session output")
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return camera.ErrClosed
	}
	s.stopProducerLocked()
	s.request = &req
	interval := s.device.backend.opts.FrameInterval
	if interval == 0 {
		fps := max(req.FPSRange[1], 1)
		interval = time.Second / time.Duration(fps)
	}
	if interval > 0 {
		s.stop = make(chan struct{})
		go s.produce(interval, s.stop)
	}
	s.mu.Unlock()

	s.device.backend.recordRequest(req)
	s.device.backend.logger.Debug("Repeating request set", "camera", s.device.ID(), "request", req.String())
	return nil
}

// StopRepeating implements camera.Session.
func (s *Session) StopRepeating() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return camera.ErrClosed
	}
	s.stopProducerLocked()
	s.request = nil
	return nil
}

// Close implements camera.Session. OnClosed is delivered once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopProducerLocked()
	s.request = nil
	s.mu.Unlock()

	s.device.mu.Lock()
	if s.device.session == s {
		s.device.session = nil
	}
	s.device.mu.Unlock()

	if s.cb.OnClosed != nil {
		s.looper.Post(func() { s.cb.OnClosed(s) })
	}
	return nil
}

// Frames returns the number of frames produced.
func (s *Session) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Session) stopProducerLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Session) produce(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.emit()
		}
	}
}

func (s *Session) emit() int {
	s.mu.Lock()
	if s.closed || s.request == nil {
		s.mu.Unlock()
		return 0
	}
	req := *s.request
	s.frames++
	n := s.frames
	s.mu.Unlock()

	queued := 0
	top, bottom := Pattern(s.device.ch.Facing)
	for _, w := range req.Targets {
		width, height := w.Size()
		if width <= 0 || height <= 0 {
			continue
		}
		buf := gpu.NewBuffer(width, height)
		FillHalves(buf, top, bottom)
		buf.Timestamp = time.Duration(n) * time.Second / time.Duration(max(req.FPSRange[1], 1))
		buf.Dataspace = gpu.DataspaceCameraYUV
		if err := w.QueueBuffer(buf); err != nil {
			if !errors.Is(err, gpu.ErrSurfaceTexRelease) {
				s.device.backend.logger.Warn("Failed to queue camera frame", "camera", s.device.ID(), "error", err)
			}
			continue
		}
		queued++
	}
	return queued
}

// Pattern returns the top and bottom colors of the test frame for a facing.
func Pattern(f camera.Facing) (top, bottom [4]byte) {
	if f == camera.FacingFront {
		return [4]byte{0, 255, 0, 255}, [4]byte{255, 255, 255, 255}
	}
	return [4]byte{255, 0, 0, 255}, [4]byte{0, 0, 255, 255}
}

// FillHalves paints the top half of buf with top and the rest with bottom.
func FillHalves(buf *gpu.Buffer, top, bottom [4]byte) {
	for y := 0; y < buf.Height; y++ {
		c := bottom
		if y < buf.Height/2 {
			c = top
		}
		row := buf.Pix[y*buf.Width*4 : (y+1)*buf.Width*4]
		for x := 0; x < buf.Width; x++ {
			copy(row[x*4:], c[:])
		}
	}
}
