// Package pipeline runs the GPU frame pipeline: camera frames are pulled into
// an external texture, copied into an intermediate render texture, then drawn
// through the selected shader to the preview, the encoder and, on request, the
// still-photo surface.
//
// All GPU state is owned by a single worker goroutine locked to its OS thread.
// Callers only enqueue tasks and wait on gates.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smazurov/shadercam/internal/gate"
	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/logging"
	"github.com/smazurov/shadercam/internal/metrics"
	"github.com/smazurov/shadercam/internal/shader"
)

// State is the externally visible pipeline state.
type State int32

// Pipeline states.
const (
	StateUninitialized State = iota
	StateResourcesCreated
	StateRecording
	StateTakingPhoto
	StateFailed
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateResourcesCreated:
		return "resources_created"
	case StateRecording:
		return "recording"
	case StateTakingPhoto:
		return "taking_photo"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

// FrameSink is notified after each frame is rendered to the encoder surface.
type FrameSink interface {
	FrameAvailable()
}

// Config configures a pipeline.
type Config struct {
	Device gpu.Device
	// Compositor receives preview buffers for ProfileHLGWorkaround.
	Compositor gpu.Compositor
	Profile    ColorProfile

	// Width and Height are the camera (recorder) frame size.
	Width  int
	Height int

	Library     *shader.Library
	Shader      string
	Orientation int

	Encoder FrameSink
	// OnError is called from the worker goroutine for fatal errors that have
	// no waiting caller, e.g. a failed resource build.
	OnError func(error)

	QueueSize int
}

// Pipeline is a running frame pipeline.
type Pipeline struct {
	cfg    Config
	dev    gpu.Device
	logger *slog.Logger

	tasks chan task
	done  chan struct{}

	frameQueued  atomic.Bool
	recording    atomic.Bool
	photoPending atomic.Bool
	state        atomic.Int32

	resourcesReady  *gate.Gate
	cleanupDone     *gate.Gate
	listenerCleared *gate.Gate
	windowDestroyed *gate.Gate

	mu         sync.Mutex
	resErr     error
	targets    []gpu.Window
	previewW   int
	previewH   int
	shaderName string

	// Owned by the worker goroutine.
	res         resources
	orientation int
}

// New validates cfg and starts the worker goroutine.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Device == nil {
		return nil, errors.New("pipeline: device is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.New("pipeline: frame size must be positive")
	}
	if cfg.Library == nil {
		cfg.Library = shader.NewLibrary("")
	}
	if cfg.Shader == "" {
		cfg.Shader = shader.Default
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}

	p := &Pipeline{
		cfg:             cfg,
		dev:             cfg.Device,
		logger:          logging.GetLogger("pipeline"),
		tasks:           make(chan task, cfg.QueueSize),
		done:            make(chan struct{}),
		resourcesReady:  gate.New("resources-ready"),
		cleanupDone:     gate.New("cleanup"),
		listenerCleared: gate.New("clear-frame-listener"),
		windowDestroyed: gate.New("destroy-window-surface"),
		shaderName:      cfg.Shader,
		orientation:     cfg.Orientation,
	}

	started := make(chan struct{})
	go p.run(started)
	<-started
	return p, nil
}

// Profile returns the pipeline color profile.
func (p *Pipeline) Profile() ColorProfile {
	return p.cfg.Profile
}

// State returns the current pipeline state.
func (p *Pipeline) State() State {
	s := State(p.state.Load())
	if s != StateResourcesCreated {
		return s
	}
	if p.recording.Load() {
		return StateRecording
	}
	if p.photoPending.Load() {
		return StateTakingPhoto
	}
	return s
}

// Shader returns the name of the active shader.
func (p *Pipeline) Shader() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shaderName
}

// SetPreviewSize sets the preview window size used for the preview viewport.
func (p *Pipeline) SetPreviewSize(width, height int) {
	p.mu.Lock()
	p.previewW, p.previewH = width, height
	p.mu.Unlock()
}

func (p *Pipeline) previewSize() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.previewW, p.previewH
}

// StartRecording turns on forwarding of frames to the encoder surface.
func (p *Pipeline) StartRecording() {
	p.recording.Store(true)
}

// StopRecording turns off encoder forwarding.
func (p *Pipeline) StopRecording() {
	p.recording.Store(false)
	p.logger.Debug("Recording forwarding stopped")
}

// IsRecording reports whether frames are forwarded to the encoder.
func (p *Pipeline) IsRecording() bool {
	return p.recording.Load()
}

// CreateResources builds the GPU context and surfaces for the preview window.
func (p *Pipeline) CreateResources(win gpu.Window) {
	p.enqueue(createResourcesTask{window: win})
}

// WaitResources blocks until resource creation finished and returns its
// error, if any.
func (p *Pipeline) WaitResources(ctx context.Context) error {
	if err := p.resourcesReady.Wait(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resErr
}

// PreviewTargets returns the windows the camera should render into.
func (p *Pipeline) PreviewTargets(ctx context.Context) ([]gpu.Window, error) {
	if err := p.WaitResources(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]gpu.Window(nil), p.targets...), nil
}

// DestroyWindowSurface releases the preview surface.
func (p *Pipeline) DestroyWindowSurface() {
	if !p.enqueue(destroyWindowSurfaceTask{}) {
		p.windowDestroyed.Open()
	}
}

// WaitDestroyWindowSurface blocks until the preview surface is released.
func (p *Pipeline) WaitDestroyWindowSurface(ctx context.Context) error {
	return p.windowDestroyed.Wait(ctx)
}

// ActionDown attaches the encoder input window.
func (p *Pipeline) ActionDown(encoder gpu.Window) {
	p.enqueue(actionDownTask{window: encoder})
}

// ActionTakePhoto requests that the next frame also be rendered to photo.
func (p *Pipeline) ActionTakePhoto(photo gpu.Window) {
	p.enqueue(actionTakePhotoTask{window: photo})
}

// ClearFrameListener detaches the camera frame listener.
func (p *Pipeline) ClearFrameListener() {
	if !p.enqueue(clearFrameListenerTask{}) {
		p.listenerCleared.Open()
	}
}

// WaitClearFrameListener blocks until the frame listener is detached.
func (p *Pipeline) WaitClearFrameListener(ctx context.Context) error {
	return p.listenerCleared.Wait(ctx)
}

// Cleanup releases every GPU resource and stops the worker.
func (p *Pipeline) Cleanup() {
	if !p.enqueue(cleanupTask{}) {
		p.cleanupDone.Open()
	}
}

// WaitCleanup blocks until Cleanup has run.
func (p *Pipeline) WaitCleanup(ctx context.Context) error {
	return p.cleanupDone.Wait(ctx)
}

// SetOrientation updates the orientation uniform in degrees.
func (p *Pipeline) SetOrientation(degrees int) {
	p.enqueue(setOrientationTask{degrees: degrees})
}

// SetInitialOrientation records the orientation at recording start.
func (p *Pipeline) SetInitialOrientation(degrees int) {
	p.enqueue(setInitialOrientationTask{degrees: degrees})
}

// ChangeShader recompiles the preview, encode and photo programs from the
// named shader. It runs on the worker and returns its result. On failure the
// pipeline is marked failed.
func (p *Pipeline) ChangeShader(ctx context.Context, name string) error {
	reply := make(chan error, 1)
	if !p.enqueue(changeShaderTask{name: name, reply: reply}) {
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the worker goroutine has exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// onFrameAvailable is the camera texture listener. It runs on the producer
// goroutine and keeps at most one frame task queued.
func (p *Pipeline) onFrameAvailable() {
	if !p.frameQueued.CompareAndSwap(false, true) {
		metrics.RecordFrameCoalesced()
		return
	}
	if !p.enqueue(frameAvailableTask{}) {
		p.frameQueued.Store(false)
	}
}

func (p *Pipeline) enqueue(t task) bool {
	select {
	case <-p.done:
		p.logger.Debug("Worker stopped, dropping task", "task", t.taskName())
		return false
	default:
	}
	select {
	case p.tasks <- t:
		return true
	case <-p.done:
		p.logger.Debug("Worker stopped, dropping task", "task", t.taskName())
		return false
	}
}
