package cmd

import (
	"fmt"

	"github.com/smazurov/shadercam/internal/camera/sim"
	"github.com/smazurov/shadercam/internal/capture"
	"github.com/smazurov/shadercam/internal/config"
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/gpu/soft"
	"github.com/smazurov/shadercam/internal/logging"
	"github.com/smazurov/shadercam/internal/media"
	"github.com/smazurov/shadercam/internal/preview"
	"github.com/smazurov/shadercam/internal/shader"
)

// Runtime is the assembled capture stack shared by the server and the
// record command.
type Runtime struct {
	Settings *config.Settings
	Bus      *events.Bus
	Library  *shader.Library
	Store    *media.Store
	Preview  *preview.Sink
	Manager  *capture.Manager
}

// NewRuntime wires the camera backend, GPU device, shader library, media
// store and capture manager described by settings.
func NewRuntime(settings *config.Settings, bus *events.Bus) (*Runtime, error) {
	logger := logging.GetLogger("main")

	store, err := media.NewStore(settings.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("open media store: %w", err)
	}

	var publisher media.Publisher
	if settings.PublishDir != "" {
		publisher = media.NewDirPublisher(settings.PublishDir)
		logger.Info("Publishing media", "dir", settings.PublishDir)
	}

	library := shader.NewLibrary(settings.ShaderDir)
	sink := preview.NewSink(settings.Viewport.Width, settings.Viewport.Height)

	backend := sim.New(sim.Options{FrameInterval: settings.FrameInterval})

	var eventSink capture.EventPublisher
	if bus != nil {
		eventSink = bus
	}

	manager, err := capture.NewManager(capture.Config{
		Backend:       backend,
		NewDevice:     func() gpu.Device { return soft.New(soft.Options{}) },
		Compositor:    sink,
		Profile:       settings.Profile,
		Library:       library,
		Shader:        settings.Shader,
		Facing:        settings.Facing,
		Quality:       settings.Quality,
		Stabilization: settings.Stabilization,
		Codec:         settings.Codec,
		SoftwareMux:   settings.SoftwareMux,
		Encoder:       settings.Encoder,
		Store:         store,
		Publisher:     publisher,
		Bus:           eventSink,
		MinRecording:  settings.MinRecording,
		PhotoSettle:   settings.PhotoSettle,
		OnInitialized: func() {
			logger.Info("Camera initialized")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create capture manager: %w", err)
	}

	return &Runtime{
		Settings: settings,
		Bus:      bus,
		Library:  library,
		Store:    store,
		Preview:  sink,
		Manager:  manager,
	}, nil
}

// Start begins initialization into the preview sink.
func (r *Runtime) Start() *capture.InitAttempt {
	return r.Manager.Init(r.Preview, r.Settings.Viewport)
}

// Close releases the preview window, then destroys the manager.
func (r *Runtime) Close() {
	r.Manager.SurfaceDestroyed()
	r.Manager.Destroy()
}
