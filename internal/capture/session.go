package capture

import (
	"sync"

	"github.com/smazurov/shadercam/internal/camera"
	"github.com/smazurov/shadercam/internal/encoder"
	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/media"
	"github.com/smazurov/shadercam/internal/pipeline"
)

type sessionState int

const (
	sessionClosed sessionState = iota
	sessionOpening
	sessionOpen
	sessionClosing
)

func (s sessionState) String() string {
	switch s {
	case sessionOpening:
		return "opening"
	case sessionOpen:
		return "open"
	case sessionClosing:
		return "closing"
	default:
		return "closed"
	}
}

// cameraSession is one opened camera and its capture session. The looper
// runs every backend callback for it.
type cameraSession struct {
	id     string
	facing camera.Facing
	ch     camera.Characteristics
	looper *camera.Looper

	device  camera.Device
	session camera.Session

	mu    sync.Mutex
	state sessionState
}

func (c *cameraSession) setState(s sessionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *cameraSession) getState() sessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// resources is everything one initialization builds. Fields are written
// while the init runs and only read once it has been published.
type resources struct {
	session     *cameraSession
	pipe        *pipeline.Pipeline
	enc         *encoder.Encoder
	photo       *media.PhotoReader
	builder     *camera.RequestBuilder
	targets     []gpu.Window
	previewSize camera.Size
	outputFile  string
}
