package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/shadercam/internal/api/models"
)

// previewQuality is the JPEG quality of preview snapshots.
const previewQuality = 80

func (s *Server) registerPreviewRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-preview",
		Method:      http.MethodGet,
		Path:        "/api/preview.jpg",
		Summary:     "Preview Snapshot",
		Description: "The latest preview frame as a JPEG",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "JPEG image",
				Content:     map[string]*huma.MediaType{"image/jpeg": {}},
			},
		},
	}, func(_ context.Context, _ *struct{}) (*models.PreviewResponse, error) {
		var buf bytes.Buffer
		if err := s.options.Preview.WriteJPEG(&buf, previewQuality); err != nil {
			return nil, s.mapCaptureError(err)
		}
		return &models.PreviewResponse{
			ContentType:  "image/jpeg",
			CacheControl: "no-store",
			FrameCount:   strconv.FormatUint(s.options.Preview.Frames(), 10),
			Body:         buf.Bytes(),
		}, nil
	})
}
