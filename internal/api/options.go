package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/shadercam/internal/api/models"
	"github.com/smazurov/shadercam/internal/ffmpeg"
)

// registerOptionsRoutes registers the encoder option catalogue.
func (s *Server) registerOptionsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-ffmpeg-options",
		Method:      http.MethodGet,
		Path:        "/api/options",
		Summary:     "Get FFmpeg Options",
		Description: "Get the ffmpeg feature flags accepted by encoder.options, with categories and conflicts",
		Tags:        []string{"configuration"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.OptionsResponse, error) {
		return &models.OptionsResponse{
			Body: models.OptionsData{
				Options:  ffmpeg.AllOptions,
				Defaults: ffmpeg.GetDefaultOptions(),
			},
		}, nil
	})
}
