package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/shadercam/internal/api/models"
	"github.com/smazurov/shadercam/internal/camera"
	"github.com/smazurov/shadercam/internal/capture"
	"github.com/smazurov/shadercam/internal/gate"
	"github.com/smazurov/shadercam/internal/pipeline"
	"github.com/smazurov/shadercam/internal/preview"
	"github.com/smazurov/shadercam/internal/shader"
)

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        "/api/state",
		Summary:     "Capture State",
		Description: "Get the observable capture state: readiness, recording, orientation and shader",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.StateResponse, error) {
		return &models.StateResponse{Body: s.camera.State().Event()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-camera",
		Method:      http.MethodPost,
		Path:        "/api/camera/start",
		Summary:     "Start Camera",
		Description: "Open the camera and build the pipeline. Returns once initialization finished.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422, 500, 503, 504},
	}, func(ctx context.Context, _ *struct{}) (*models.StateResponse, error) {
		if err := s.camera.Init(s.options.Preview, s.options.Viewport).Wait(ctx); err != nil {
			return nil, s.mapCaptureError(err)
		}
		return &models.StateResponse{Body: s.camera.State().Event()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-camera",
		Method:      http.MethodPost,
		Path:        "/api/camera/stop",
		Summary:     "Stop Camera",
		Description: "Tear down the camera session and pipeline. An active recording is abandoned.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.StateResponse, error) {
		s.camera.Stop()
		return &models.StateResponse{Body: s.camera.State().Event()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "switch-camera",
		Method:      http.MethodPost,
		Path:        "/api/camera/switch",
		Summary:     "Switch Camera",
		Description: "Flip between the back and front camera and reinitialize",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422, 500, 503, 504},
	}, func(ctx context.Context, _ *struct{}) (*models.StateResponse, error) {
		if err := s.camera.ChangeCamera().Wait(ctx); err != nil {
			return nil, s.mapCaptureError(err)
		}
		return &models.StateResponse{Body: s.camera.State().Event()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-orientation",
		Method:      http.MethodPut,
		Path:        "/api/camera/orientation",
		Summary:     "Set Orientation",
		Description: "Report a display rotation. Applies to the preview, capture requests, photos and the next recording.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 422},
	}, func(_ context.Context, input *models.OrientationRequest) (*models.StateResponse, error) {
		r, err := camera.RotationFromDegrees(input.Body.Degrees)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		s.camera.OrientationChanged(r)
		return &models.StateResponse{Body: s.camera.State().Event()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "take-photo",
		Method:      http.MethodPost,
		Path:        "/api/photo",
		Summary:     "Take Photo",
		Description: "Capture the next processed frame as a JPEG. The result arrives as a photo-captured event.",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(_ context.Context, _ *struct{}) (*models.ActionResponse, error) {
		if err := s.camera.TakePhoto(); err != nil {
			return nil, s.mapCaptureError(err)
		}
		return &models.ActionResponse{
			Body: models.ActionData{Status: "ok", Message: "Photo requested"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "toggle-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/toggle",
		Summary:     "Toggle Recording",
		Description: "Start a recording, or stop the active one. Stopping waits for the file to be finalized.",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500, 504},
	}, func(ctx context.Context, _ *struct{}) (*models.ActionResponse, error) {
		wasRecording := s.camera.State().RecordingStarted
		if err := s.camera.ToggleRecording(ctx); err != nil {
			return nil, s.mapCaptureError(err)
		}
		msg := "Recording started"
		if wasRecording {
			msg = "Recording stopped"
		}
		return &models.ActionResponse{
			Body: models.ActionData{Status: "ok", Message: msg},
		}, nil
	})
}

// mapCaptureError converts capture errors to HTTP errors.
func (s *Server) mapCaptureError(err error) error {
	var (
		acquisition  *camera.DeviceAcquisitionError
		compilation  *shader.CompilationError
		unsupported  *pipeline.UnsupportedCapabilityError
		timeout      *gate.TimeoutError
		outputLost   *capture.OutputNotFoundError
		configureErr *camera.SessionConfigurationError
	)

	switch {
	case errors.Is(err, capture.ErrNotInitialized):
		return huma.Error409Conflict("camera is not initialized")
	case errors.Is(err, capture.ErrDestroyed):
		return huma.Error409Conflict("capture manager was destroyed")
	case errors.Is(err, shader.ErrUnknownShader):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, preview.ErrNoFrame):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, camera.ErrNoCamera):
		return huma.Error404NotFound(err.Error())
	case errors.As(err, &acquisition):
		return huma.Error503ServiceUnavailable("camera unavailable: " + acquisition.Code.Reason())
	case errors.As(err, &compilation):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.As(err, &unsupported):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.As(err, &configureErr):
		return huma.Error500InternalServerError(err.Error())
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(err.Error())
	case errors.As(err, &outputLost):
		return huma.Error500InternalServerError("recording was not saved")
	default:
		s.logger.Error("Capture operation failed", "error", err)
		return huma.Error500InternalServerError("capture operation failed", err)
	}
}
