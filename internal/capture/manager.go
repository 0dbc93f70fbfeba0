// Package capture drives one camera end to end. The Manager opens the camera,
// builds the frame pipeline, the encoder and the photo reader around it, and
// runs the recording and photo protocols on top.
//
// Initialization runs in the background and resolves an InitAttempt.
// Initialization, teardown and recording toggles are serialized; photo,
// orientation and shader requests only enqueue work on the pipeline.
// Observable state is a single State value, published on every change as an
// events.StateChangedEvent.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/shadercam/internal/camera"
	"github.com/smazurov/shadercam/internal/encoder"
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/gate"
	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/logging"
	"github.com/smazurov/shadercam/internal/media"
	"github.com/smazurov/shadercam/internal/metrics"
	"github.com/smazurov/shadercam/internal/pipeline"
	"github.com/smazurov/shadercam/internal/shader"
	"github.com/sourcegraph/conc/panics"
)

// Defaults for the Config timings.
const (
	DefaultMinRecording    = 1000 * time.Millisecond
	DefaultPhotoSettle     = 200 * time.Millisecond
	DefaultInitTimeout     = 10 * time.Second
	DefaultTeardownTimeout = 5 * time.Second
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Config configures a Manager.
type Config struct {
	Backend camera.Backend
	// NewDevice returns a fresh GPU device for each pipeline.
	NewDevice func() gpu.Device
	// Compositor receives preview buffers for pipeline.ProfileHLGWorkaround.
	Compositor gpu.Compositor
	Profile    pipeline.ColorProfile

	Library *shader.Library
	Shader  string

	Facing        camera.Facing
	Quality       camera.Quality
	Stabilization bool

	Codec       encoder.Codec
	SoftwareMux bool
	Encoder     encoder.Options

	Store     *media.Store
	Publisher media.Publisher // nil keeps files in the store only
	Bus       EventPublisher

	MinRecording    time.Duration
	PhotoSettle     time.Duration
	InitTimeout     time.Duration
	TeardownTimeout time.Duration

	// OnInitialized runs after every successful initialization.
	OnInitialized func()
}

// InitAttempt is the result of one Init call.
type InitAttempt struct {
	done chan struct{}
	err  error
}

func newInitAttempt() *InitAttempt {
	return &InitAttempt{done: make(chan struct{})}
}

func resolvedAttempt(err error) *InitAttempt {
	a := newInitAttempt()
	a.resolve(err)
	return a
}

func (a *InitAttempt) resolve(err error) {
	a.err = err
	close(a.done)
}

func (a *InitAttempt) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Done is closed once the attempt resolved.
func (a *InitAttempt) Done() <-chan struct{} {
	return a.done
}

// Err returns the attempt's error. Only valid after Done is closed.
func (a *InitAttempt) Err() error {
	if !a.finished() {
		return nil
	}
	return a.err
}

// Wait blocks until the attempt resolved or ctx ends.
func (a *InitAttempt) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager owns the camera session and everything built around it.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	// opMu serializes initialization, teardown and recording toggles.
	opMu sync.Mutex

	mu         sync.Mutex
	res        *resources
	attempt    *InitAttempt
	initCancel context.CancelFunc
	destroyed  bool
	facing     camera.Facing
	window     gpu.Window
	viewport   camera.Size

	stateMu sync.Mutex
	state   State

	// recording is true between encoder start and the recording being
	// marked complete.
	recording  atomic.Bool
	recStarted *gate.Gate
	recStart   time.Time
	timer      *elapsedTimer
}

// NewManager validates cfg and returns an uninitialized manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Backend == nil {
		return nil, errors.New("capture: camera backend is required")
	}
	if cfg.NewDevice == nil {
		return nil, errors.New("capture: GPU device factory is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("capture: media store is required")
	}
	if cfg.Library == nil {
		cfg.Library = shader.NewLibrary("")
	}
	if cfg.Shader == "" {
		cfg.Shader = shader.Default
	}
	if cfg.MinRecording <= 0 {
		cfg.MinRecording = DefaultMinRecording
	}
	if cfg.Encoder.MinDuration <= 0 {
		cfg.Encoder.MinDuration = cfg.MinRecording
	}
	if cfg.PhotoSettle <= 0 {
		cfg.PhotoSettle = DefaultPhotoSettle
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = DefaultTeardownTimeout
	}

	m := &Manager{
		cfg:        cfg,
		logger:     logging.GetLogger("capture"),
		facing:     cfg.Facing,
		recStarted: gate.New("recording-started"),
	}
	m.state = State{
		IsFrontFacing: cfg.Facing == camera.FacingFront,
		Shader:        cfg.Shader,
	}
	return m, nil
}

// Init starts initializing the camera for facing, rendering the preview into
// win. It returns immediately; the attempt resolves once the camera streams
// or initialization failed. A call while an attempt is in flight returns
// that attempt.
func (m *Manager) Init(win gpu.Window, viewport camera.Size) *InitAttempt {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return resolvedAttempt(ErrDestroyed)
	}
	if a := m.attempt; a != nil && !a.finished() {
		m.mu.Unlock()
		m.logger.Info("Init is in progress")
		return a
	}
	a := newInitAttempt()
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.InitTimeout)
	m.attempt, m.initCancel = a, cancel
	m.window, m.viewport = win, viewport
	facing := m.facing
	m.mu.Unlock()

	m.setReady(false)
	go func() {
		defer cancel()
		a.resolve(m.runInit(ctx, win, viewport, facing))
	}()
	return a
}

func (m *Manager) runInit(ctx context.Context, win gpu.Window, viewport camera.Size, facing camera.Facing) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.teardownLocked("reinitialize")

	start := time.Now()
	res, err := m.initialize(ctx, win, viewport, facing)
	if err != nil {
		m.logger.Error("Capture initialization failed", "facing", facing, "error", err)
		m.teardown(res)
		m.reportInitFailure(err)
		return err
	}

	m.mu.Lock()
	m.res = res
	m.mu.Unlock()
	metrics.RecordSessionInit("ok")
	m.setReady(true)
	m.logger.Info("Capture initialized",
		"camera", res.session.id,
		"facing", facing,
		"profile", m.cfg.Profile,
		"duration", time.Since(start))

	if m.cfg.OnInitialized != nil {
		m.cfg.OnInitialized()
	}
	return nil
}

func (m *Manager) initialize(ctx context.Context, win gpu.Window, viewport camera.Size, facing camera.Facing) (*resources, error) {
	res := &resources{}
	id, err := camera.FindByFacing(m.cfg.Backend, facing)
	if err != nil {
		return res, err
	}
	ch, err := m.cfg.Backend.Characteristics(id)
	if err != nil {
		return res, fmt.Errorf("camera %s characteristics: %w", id, err)
	}
	previewSize, err := camera.BestPreviewSize(ch, viewport)
	if err != nil {
		return res, fmt.Errorf("camera %s: %w", id, err)
	}
	res.previewSize = previewSize

	params := camera.RecorderParamsFor(ch, m.cfg.Quality)
	caps := camera.Negotiate(ch, dynamicRangeFor(m.cfg.Profile), m.cfg.Stabilization)
	m.logger.Info("Camera selected",
		"camera", id,
		"facing", facing,
		"preview", previewSize,
		"recorder", fmt.Sprintf("%dx%d@%d", params.Width, params.Height, params.FPS),
		"session", caps.Kind,
		"dynamic_range", caps.DynamicRange)

	res.session = &cameraSession{
		id:     id,
		facing: facing,
		ch:     ch,
		looper: camera.NewLooper("camera-" + id),
	}
	if err := m.initializePipeline(ctx, res, win, viewport, params, caps); err != nil {
		return res, err
	}
	if err := m.initializeCamera(ctx, res, caps, params.FPS); err != nil {
		return res, err
	}
	return res, nil
}

func (m *Manager) initializePipeline(ctx context.Context, res *resources, win gpu.Window, viewport camera.Size, params camera.RecorderParams, caps camera.Negotiated) error {
	out, err := m.cfg.Store.CreateVideoFile()
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	res.outputFile = out

	orientation := m.State().Orientation
	enc, err := encoder.New(encoder.Config{
		Width:           params.Width,
		Height:          params.Height,
		Bitrate:         params.Bitrate,
		FPS:             params.FPS,
		DynamicRange:    caps.DynamicRange,
		Orientation:     orientation,
		OutputPath:      out,
		UseSoftwareMux:  m.cfg.SoftwareMux,
		Codec:           m.cfg.Codec,
		AudioBitrate:    params.AudioBitrate,
		AudioSampleRate: params.AudioSampleRate,
	}, m.cfg.Encoder)
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	res.enc = enc

	// The photo surface is portrait like the encoder surface.
	res.photo = media.NewPhotoReader(params.Height, params.Width, m.cfg.Store, media.PhotoOptions{
		Orientation: func() int { return m.State().Orientation },
		OnPhoto:     m.photoSaved,
		OnError:     m.photoFailed,
	})

	pipe, err := pipeline.New(pipeline.Config{
		Device:      m.cfg.NewDevice(),
		Compositor:  m.cfg.Compositor,
		Profile:     m.cfg.Profile,
		Width:       params.Width,
		Height:      params.Height,
		Library:     m.cfg.Library,
		Shader:      m.State().Shader,
		Orientation: orientation,
		Encoder:     enc,
		OnError:     m.pipelineFailed,
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	res.pipe = pipe
	pipe.SetPreviewSize(viewport.Width, viewport.Height)
	pipe.CreateResources(win)
	return pipe.WaitResources(ctx)
}

func (m *Manager) initializeCamera(ctx context.Context, res *resources, caps camera.Negotiated, fps int) error {
	cs := res.session
	cs.setState(sessionOpening)
	dev, err := camera.OpenDevice(ctx, m.cfg.Backend, cs.id, cs.looper, func(d camera.Device) {
		m.deviceDisconnected(cs, d)
	})
	if err != nil {
		cs.setState(sessionClosed)
		return err
	}
	cs.device = dev

	targets, err := res.pipe.PreviewTargets(ctx)
	if err != nil {
		return err
	}
	res.targets = targets
	res.builder = camera.NewRequestBuilder(caps, fps)

	sess, err := camera.CreateSession(ctx, dev, res.builder.SessionConfig(targets), cs.looper, func(camera.Session) {
		m.sessionClosed(res)
	})
	if err != nil {
		return err
	}
	cs.session = sess
	cs.setState(sessionOpen)

	req := res.builder.Build(targets, m.State().Orientation)
	if err := sess.SetRepeatingRequest(req); err != nil {
		return fmt.Errorf("camera %s repeating request: %w", cs.id, err)
	}
	m.logger.Debug("Repeating request set", "camera", cs.id, "request", req.String())
	return nil
}

func (m *Manager) reportInitFailure(err error) {
	if errors.Is(err, context.Canceled) {
		metrics.RecordSessionInit("canceled")
		return
	}
	metrics.RecordSessionInit("error")

	kind := "init_failed"
	var (
		acqErr   *camera.DeviceAcquisitionError
		cfgErr   *camera.SessionConfigurationError
		resErr   *pipeline.ResourceCreationError
		capErr   *pipeline.UnsupportedCapabilityError
		shaderEr *shader.CompilationError
	)
	switch {
	case errors.As(err, &acqErr):
		kind = "device_acquisition"
		metrics.RecordCameraError(acqErr.Reason())
	case errors.As(err, &cfgErr):
		kind = "session_configuration"
		metrics.RecordCameraError("session_configuration")
	case errors.As(err, &shaderEr):
		kind = "shader_compilation"
	case errors.As(err, &capErr):
		kind = "unsupported_capability"
	case errors.As(err, &resErr):
		kind = "resource_creation"
	}
	m.publishUserError(kind, "Camera could not be started", err)
}

// current returns the published resources, or nil before initialization.
func (m *Manager) current() *resources {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.res
}

// PreviewSize returns the camera preview size chosen for the viewport.
func (m *Manager) PreviewSize() (camera.Size, bool) {
	res := m.current()
	if res == nil {
		return camera.Size{}, false
	}
	return res.previewSize, true
}

// Stop tears the session down. An initialization in flight is canceled.
// Safe to call more than once and concurrently.
func (m *Manager) Stop() {
	m.cancelInit()
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.setReady(false)
	m.teardownLocked("stop")
}

// Destroy stops the manager for good. Later Init calls fail with
// ErrDestroyed.
func (m *Manager) Destroy() {
	m.mu.Lock()
	m.destroyed = true
	m.mu.Unlock()
	m.Stop()
}

// SurfaceDestroyed releases the preview surface and tears the session down.
// It does nothing while uninitialized.
func (m *Manager) SurfaceDestroyed() {
	if !m.State().IsInitialized {
		return
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if res := m.current(); res != nil && res.pipe != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.TeardownTimeout)
		res.pipe.DestroyWindowSurface()
		if err := res.pipe.WaitDestroyWindowSurface(ctx); err != nil {
			m.logger.Warn("Window surface release timed out", "error", err)
		}
		cancel()
	}
	m.setReady(false)
	m.teardownLocked("surface destroyed")
}

func (m *Manager) cancelInit() {
	m.mu.Lock()
	cancel := m.initCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// teardownLocked releases the published resources. opMu must be held.
func (m *Manager) teardownLocked(reason string) {
	m.mu.Lock()
	res := m.res
	m.res = nil
	m.mu.Unlock()
	if res == nil {
		return
	}
	m.logger.Info("Tearing down capture session", "camera", res.session.id, "reason", reason)
	m.teardown(res)
}

// teardown releases res, which may be partially built. Every step runs even
// when an earlier one failed.
func (m *Manager) teardown(res *resources) {
	if res == nil {
		return
	}
	if m.recording.Swap(false) {
		m.logger.Warn("Tearing down while recording, stopping recording")
		if res.pipe != nil {
			res.pipe.StopRecording()
		}
	}
	if m.State().RecordingStarted {
		metrics.SetRecordingActive(false)
		m.recStarted.Reset()
	}
	m.stopTimer()
	m.update(func(s *State) { s.RecordingStarted = false })

	if cs := res.session; cs != nil {
		m.closeCamera(cs)
	}

	if res.pipe != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.TeardownTimeout)
		res.pipe.ClearFrameListener()
		if err := res.pipe.WaitClearFrameListener(ctx); err != nil {
			m.logger.Warn("Clearing frame listener timed out", "error", err)
		}
		res.pipe.Cleanup()
		if err := res.pipe.WaitCleanup(ctx); err != nil {
			m.logger.Warn("Pipeline cleanup timed out", "error", err)
		}
		cancel()
	}
	if res.photo != nil {
		res.photo.Close()
	}
	if res.enc != nil {
		m.guard("release encoder", func() error {
			res.enc.Release()
			return nil
		})
	}
	if res.outputFile != "" {
		m.guard("remove empty output", func() error {
			removed, err := media.RemoveIfEmpty(res.outputFile)
			if removed {
				m.logger.Debug("Removed empty output file", "path", res.outputFile)
			}
			return err
		})
	}
}

func (m *Manager) closeCamera(cs *cameraSession) {
	cs.setState(sessionClosing)
	if cs.session != nil {
		m.guard("stop repeating", cs.session.StopRepeating)
		m.guard("close session", cs.session.Close)
	}
	if cs.device != nil {
		m.guard("close device", cs.device.Close)
	}
	// Quit drains callbacks posted by the closes above.
	cs.looper.Quit()
	cs.setState(sessionClosed)
}

// guard runs one teardown step. Errors and panics are logged and swallowed.
func (m *Manager) guard(step string, fn func() error) {
	var pc panics.Catcher
	var err error
	pc.Try(func() { err = fn() })
	if r := pc.Recovered(); r != nil {
		m.logger.Error("Teardown step panicked", "step", step, "panic", r.Value)
		return
	}
	if err != nil && !errors.Is(err, camera.ErrClosed) {
		m.logger.Warn("Teardown step failed", "step", step, "error", err)
	}
}

func (m *Manager) deviceDisconnected(cs *cameraSession, d camera.Device) {
	m.logger.Warn("Camera device disconnected", "camera", d.ID(), "state", cs.getState())
	cs.setState(sessionClosed)
	metrics.RecordCameraError("disconnected")
	m.publishUserError("camera_disconnected", "Camera was disconnected", nil)
}

// sessionClosed runs on the camera looper once the session stopped
// delivering frames.
func (m *Manager) sessionClosed(res *resources) {
	m.logger.Debug("Capture session closed", "camera", res.session.id)
	if m.recording.Swap(false) {
		m.logger.Warn("Session closed while recording, marking recording complete")
		res.pipe.StopRecording()
	}
}

func (m *Manager) pipelineFailed(err error) {
	m.logger.Error("Pipeline failed", "error", err)
	m.publishUserError("pipeline_failed", "Frame pipeline failed", err)
}

func (m *Manager) publishUserError(kind, message string, err error) {
	if m.cfg.Bus == nil {
		return
	}
	ev := events.UserErrorEvent{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.cfg.Bus.Publish(ev)
}

func (m *Manager) publish(ev events.Event) {
	if m.cfg.Bus != nil {
		m.cfg.Bus.Publish(ev)
	}
}

// dynamicRangeFor is the dynamic range the camera outputs are configured
// with for a pipeline profile.
func dynamicRangeFor(p pipeline.ColorProfile) camera.DynamicRange {
	switch p {
	case pipeline.ProfilePQ:
		return camera.DynamicRangeHDR10
	case pipeline.ProfileHLG, pipeline.ProfileHLGWorkaround:
		return camera.DynamicRangeHLG10
	default:
		return camera.DynamicRangeStandard
	}
}

func mediaID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
