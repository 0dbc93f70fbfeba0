// Package api exposes the capture manager over HTTP with huma.
package api

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/shadercam/internal/api/models"
	"github.com/smazurov/shadercam/internal/camera"
	"github.com/smazurov/shadercam/internal/capture"
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/logging"
	"github.com/smazurov/shadercam/internal/version"
	"github.com/smazurov/shadercam/ui"
)

// Camera is the part of capture.Manager the API drives.
type Camera interface {
	State() capture.State
	Init(win gpu.Window, viewport camera.Size) *capture.InitAttempt
	Stop()
	TakePhoto() error
	ToggleRecording(ctx context.Context) error
	ChangeCamera() *capture.InitAttempt
	OrientationChanged(r camera.Rotation)
	ChangeShader(ctx context.Context, name string) error
}

// Preview is the window the preview is rendered into.
type Preview interface {
	gpu.Window
	WriteJPEG(w io.Writer, quality int) error
	Frames() uint64
}

// ShaderLister lists the available shaders.
type ShaderLister interface {
	Names() ([]string, error)
}

// Options configure the server.
type Options struct {
	AuthUsername string
	AuthPassword string
	CORSOrigin   string // "" allows any origin

	Camera   Camera
	Preview  Preview
	Viewport camera.Size
	Shaders  ShaderLister
	EventBus *events.Bus

	PrometheusHandler http.Handler // optional
}

// Server is the huma API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	camera     Camera
	eventBus   *events.Bus
	logger     *slog.Logger
}

// basicAuthMiddleware enforces HTTP basic auth on operations that declare a
// security requirement. SSE clients that cannot set headers may pass the
// base64 credentials in the auth query parameter.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	unauthorized := func(ctx huma.Context, msg string, errs ...error) {
		ctx.SetHeader("WWW-Authenticate", `Basic realm="shadercam"`)
		huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		var encoded string
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				unauthorized(ctx, "Invalid authentication type")
				return
			}
			encoded = header[len(prefix):]
		} else {
			encoded = ctx.Query("auth")
		}
		if encoded == "" {
			unauthorized(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			unauthorized(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			unauthorized(ctx, "Invalid credentials format")
			return
		}
		if user != username || pass != password {
			unauthorized(ctx, "Invalid credentials")
			return
		}
		next(ctx)
	}
}

// NewServer creates the API server and registers every route.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig(opts.CORSOrigin)
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("shadercam API", version.String())
	config.Info.Description = "Camera capture with a live GPU shader chain, recording and photos"
	// Relative server paths work behind any host
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	eventBus := opts.EventBus
	if eventBus == nil {
		eventBus = events.New()
	}

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		camera:   opts.Camera,
		eventBus: eventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Scraped without auth
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()

	frontend := ui.Handler()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api") {
			http.NotFound(w, r)
			return
		}
		frontend.ServeHTTP(w, r)
	})

	return server
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// API returns the huma API.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves on addr until Stop.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting shadercam API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and all connections, SSE streams included.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
				Modified:  info.Modified,
			},
		}, nil
	})

	s.registerCameraRoutes()
	s.registerShaderRoutes()
	s.registerPreviewRoutes()
	s.registerOptionsRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// withAuth returns the basic auth security requirement.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
