package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smazurov/shadercam/internal/metrics"
)

func TestHTTPHandler(t *testing.T) {
	handler := HTTPHandler()
	if handler == nil {
		t.Fatal("expected non-nil handler")
	}

	metrics.SetEncoderFPS("http-test-recording", 25.0)
	defer metrics.DeleteEncoderMetrics("http-test-recording")
	metrics.RecordFrame(metrics.StagePreview)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	for _, name := range []string{"shadercam_encoder_fps", "shadercam_pipeline_frames_rendered_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in response", name)
		}
	}
}
