package pipeline

import (
	"runtime"

	"github.com/smazurov/shadercam/internal/gpu"
)

// task is the closed set of messages the worker processes.
type task interface {
	taskName() string
}

type (
	createResourcesTask struct{ window gpu.Window }
	destroyWindowSurfaceTask struct{}
	actionDownTask struct{ window gpu.Window }
	actionTakePhotoTask struct{ window gpu.Window }
	clearFrameListenerTask struct{}
	cleanupTask struct{}
	frameAvailableTask struct{}
	setOrientationTask struct{ degrees int }
	setInitialOrientationTask struct{ degrees int }
	changeShaderTask struct {
		name  string
		reply chan<- error
	}
)

func (createResourcesTask) taskName() string       { return "create_resources" }
func (destroyWindowSurfaceTask) taskName() string  { return "destroy_window_surface" }
func (actionDownTask) taskName() string            { return "action_down" }
func (actionTakePhotoTask) taskName() string       { return "action_take_photo" }
func (clearFrameListenerTask) taskName() string    { return "clear_frame_listener" }
func (cleanupTask) taskName() string               { return "cleanup" }
func (frameAvailableTask) taskName() string        { return "frame_available" }
func (setOrientationTask) taskName() string        { return "set_orientation" }
func (setInitialOrientationTask) taskName() string { return "set_initial_orientation" }
func (changeShaderTask) taskName() string          { return "change_shader" }

// run is the worker loop. Tasks are handled strictly in arrival order; the
// loop exits after cleanup.
func (p *Pipeline) run(started chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(p.done)

	p.logger.Debug("Pipeline worker started")
	close(started)

	for t := range p.tasks {
		if stop := p.handle(t); stop {
			p.logger.Debug("Pipeline worker exiting")
			return
		}
	}
}

func (p *Pipeline) handle(t task) (stop bool) {
	switch t := t.(type) {
	case createResourcesTask:
		p.createResources(t.window)
	case destroyWindowSurfaceTask:
		p.destroyWindowSurface()
	case actionDownTask:
		p.actionDown(t.window)
	case actionTakePhotoTask:
		p.actionTakePhoto(t.window)
	case clearFrameListenerTask:
		p.clearFrameListener()
	case cleanupTask:
		p.cleanup()
		return true
	case frameAvailableTask:
		p.frameQueued.Store(false)
		p.processFrame()
	case setOrientationTask:
		p.logger.Debug("Setting renderer orientation", "degrees", t.degrees)
		p.orientation = t.degrees
	case setInitialOrientationTask:
		// Encode and photo stages always render rotated; the initial
		// orientation only goes to the encoder as container metadata.
		p.logger.Debug("Initial orientation", "degrees", t.degrees)
	case changeShaderTask:
		err := p.changeShader(t.name)
		t.reply <- err
	}
	return false
}
