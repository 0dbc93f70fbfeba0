package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/shadercam/internal/api/models"
)

func (s *Server) registerShaderRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-shaders",
		Method:      http.MethodGet,
		Path:        "/api/shaders",
		Summary:     "List Shaders",
		Description: "List the built-in shaders plus overrides from the shader directory",
		Tags:        []string{"shaders"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.ShaderListResponse, error) {
		names, err := s.options.Shaders.Names()
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list shaders", err)
		}
		return &models.ShaderListResponse{
			Body: models.ShaderListData{
				Shaders: names,
				Active:  s.camera.State().Shader,
				Count:   len(names),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "select-shader",
		Method:      http.MethodPut,
		Path:        "/api/shaders/active",
		Summary:     "Select Shader",
		Description: "Switch the live shader. A shader that fails to compile stops the camera.",
		Tags:        []string{"shaders"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 422, 500},
	}, func(ctx context.Context, input *models.ShaderRequest) (*models.StateResponse, error) {
		if err := s.camera.ChangeShader(ctx, input.Body.Name); err != nil {
			return nil, s.mapCaptureError(err)
		}
		return &models.StateResponse{Body: s.camera.State().Event()}, nil
	})
}
