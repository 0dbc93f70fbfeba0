package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/shadercam/internal/camera"
	"github.com/smazurov/shadercam/internal/camera/sim"
	"github.com/smazurov/shadercam/internal/capture"
	"github.com/smazurov/shadercam/internal/encoder"
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/gpu/soft"
	"github.com/smazurov/shadercam/internal/logging"
	"github.com/smazurov/shadercam/internal/media"
	"github.com/smazurov/shadercam/internal/preview"
	"github.com/smazurov/shadercam/internal/shader"
)

var testViewport = camera.Size{Width: 4, Height: 8}

// smallCameras keep software rendering cheap.
func smallCameras() []camera.Characteristics {
	profiles := map[camera.Quality]camera.RecorderParams{
		camera.Quality1080P: {Width: 8, Height: 4, Bitrate: 100_000},
	}
	sizes := []camera.Size{{Width: 8, Height: 4}}
	return []camera.Characteristics{
		{ID: "0", Facing: camera.FacingBack, SensorOrientation: 90, ActiveArray: camera.Size{Width: 16, Height: 8}, OutputSizes: sizes, Profiles: profiles},
		{ID: "1", Facing: camera.FacingFront, SensorOrientation: 270, ActiveArray: camera.Size{Width: 16, Height: 8}, OutputSizes: sizes, Profiles: profiles},
	}
}

type testServer struct {
	*httptest.Server
	manager *capture.Manager
	preview *preview.Sink
	bus     *events.Bus
}

func newTestServer(t *testing.T, auth bool) *testServer {
	t.Helper()

	store, err := media.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	bus := events.New()
	library := shader.NewLibrary("")
	m, err := capture.NewManager(capture.Config{
		Backend:   sim.New(sim.Options{Cameras: smallCameras()}),
		NewDevice: func() gpu.Device { return soft.New(soft.Options{}) },
		Library:   library,
		Quality:   camera.Quality1080P,
		Store:     store,
		Bus:       bus,
		Encoder: encoder.Options{
			Command: func(cfg encoder.Config, _ string) ([]string, error) {
				return []string{"sh", "-c", "cat > '" + cfg.OutputPath + "'"}, nil
			},
			FinishTimeout: 2 * time.Second,
		},
		MinRecording: 50 * time.Millisecond,
		InitTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Destroy)

	sink := preview.NewSink(testViewport.Width, testViewport.Height)
	opts := &Options{
		Camera:   m,
		Preview:  sink,
		Viewport: testViewport,
		Shaders:  library,
		EventBus: bus,
	}
	if auth {
		opts.AuthUsername = "admin"
		opts.AuthPassword = "secret"
	}
	ts := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, manager: m, preview: sink, bus: bus}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decodeState(t *testing.T, data []byte) events.StateChangedEvent {
	t.Helper()
	var st events.StateChangedEvent
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode state %s: %v", data, err)
	}
	return st
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t, true)

	// Neither needs credentials
	for _, path := range []string{"/api/health", "/api/version"} {
		resp, _ := ts.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, true)

	resp, _ := ts.do(t, http.MethodGet, "/api/state", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without credentials = %d, want 401", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); !strings.Contains(got, "Basic") {
		t.Errorf("WWW-Authenticate = %q", got)
	}

	tests := []struct {
		name  string
		setup func(*http.Request)
		want  int
	}{
		{"header", func(r *http.Request) { r.SetBasicAuth("admin", "secret") }, http.StatusOK},
		{"wrong password", func(r *http.Request) { r.SetBasicAuth("admin", "nope") }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer x") }, http.StatusUnauthorized},
		{"query", func(r *http.Request) {
			r.URL.RawQuery = "auth=" + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
		}, http.StatusOK},
		{"bad base64", func(r *http.Request) { r.URL.RawQuery = "auth=%%%" }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/state", nil)
			if err != nil {
				t.Fatal(err)
			}
			tt.setup(req)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestActionsBeforeStart(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/api/photo", http.StatusConflict},
		{http.MethodPost, "/api/recording/toggle", http.StatusConflict},
		{http.MethodPost, "/api/camera/switch", http.StatusConflict},
		{http.MethodGet, "/api/preview.jpg", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		resp, body := ts.do(t, tt.method, tt.path, nil)
		if resp.StatusCode != tt.want {
			t.Errorf("%s %s status = %d, want %d (%s)", tt.method, tt.path, resp.StatusCode, tt.want, body)
		}
	}

	resp, body := ts.do(t, http.MethodGet, "/api/state", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status = %d", resp.StatusCode)
	}
	if st := decodeState(t, body); st.IsInitialized {
		t.Error("IsInitialized = true before start")
	}
}

func TestCameraLifecycle(t *testing.T) {
	ts := newTestServer(t, false)

	resp, body := ts.do(t, http.MethodPost, "/api/camera/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d (%s)", resp.StatusCode, body)
	}
	st := decodeState(t, body)
	if !st.IsInitialized || !st.IsReadyToPhoto || !st.IsReadyToVideo {
		t.Errorf("state after start = %+v", st)
	}

	resp, body = ts.do(t, http.MethodPut, "/api/camera/orientation", map[string]int{"degrees": 90})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("orientation status = %d (%s)", resp.StatusCode, body)
	}
	if st := decodeState(t, body); st.Orientation != 90 {
		t.Errorf("Orientation = %d, want 90", st.Orientation)
	}

	resp, _ = ts.do(t, http.MethodPut, "/api/camera/orientation", map[string]int{"degrees": 45})
	if resp.StatusCode < 400 || resp.StatusCode >= 500 {
		t.Errorf("orientation 45 status = %d, want a client error", resp.StatusCode)
	}

	resp, body = ts.do(t, http.MethodPost, "/api/camera/switch", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("switch status = %d (%s)", resp.StatusCode, body)
	}
	if st := decodeState(t, body); !st.IsFrontFacing || !st.IsInitialized {
		t.Errorf("state after switch = %+v", st)
	}

	resp, body = ts.do(t, http.MethodPost, "/api/camera/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}
	if st := decodeState(t, body); st.IsInitialized {
		t.Error("IsInitialized = true after stop")
	}
}

func TestRecordingToggle(t *testing.T) {
	ts := newTestServer(t, false)
	finished := make(chan events.RecordingFinishedEvent, 1)
	unsub := ts.bus.Subscribe(func(e events.RecordingFinishedEvent) { finished <- e })
	defer unsub()

	if resp, body := ts.do(t, http.MethodPost, "/api/camera/start", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d (%s)", resp.StatusCode, body)
	}

	var action struct{ Message string }
	resp, body := ts.do(t, http.MethodPost, "/api/recording/toggle", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d (%s)", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &action); err != nil || action.Message != "Recording started" {
		t.Errorf("toggle message = %q, %v", action.Message, err)
	}

	resp, body = ts.do(t, http.MethodPost, "/api/recording/toggle", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second toggle status = %d (%s)", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &action); err != nil || action.Message != "Recording stopped" {
		t.Errorf("toggle message = %q, %v", action.Message, err)
	}

	select {
	case e := <-finished:
		if e.Path == "" || e.Bytes <= 0 {
			t.Errorf("RecordingFinishedEvent = %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no recording-finished event")
	}
}

func TestShaderRoutes(t *testing.T) {
	ts := newTestServer(t, false)

	resp, body := ts.do(t, http.MethodGet, "/api/shaders", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list struct {
		Shaders []string
		Active  string
		Count   int
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != len(list.Shaders) || list.Count == 0 {
		t.Errorf("list = %+v", list)
	}

	// Remembered until the camera starts
	resp, body = ts.do(t, http.MethodPut, "/api/shaders/active", map[string]string{"name": "sepia"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select status = %d (%s)", resp.StatusCode, body)
	}
	if st := decodeState(t, body); st.Shader != "sepia" {
		t.Errorf("Shader = %q, want sepia", st.Shader)
	}

	resp, _ = ts.do(t, http.MethodPut, "/api/shaders/active", map[string]string{"name": "missing"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown shader status = %d, want 404", resp.StatusCode)
	}

	resp, _ = ts.do(t, http.MethodPut, "/api/shaders/active", map[string]string{"name": "../etc"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("invalid name status = %d, want 422", resp.StatusCode)
	}
}

func TestPreviewSnapshot(t *testing.T) {
	ts := newTestServer(t, false)
	if err := ts.preview.QueueBuffer(gpu.NewBuffer(testViewport.Width, testViewport.Height)); err != nil {
		t.Fatal(err)
	}

	resp, body := ts.do(t, http.MethodGet, "/api/preview.jpg", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", got)
	}
	if got := resp.Header.Get("X-Frame-Count"); got != "1" {
		t.Errorf("X-Frame-Count = %q, want 1", got)
	}
	img, err := jpeg.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != testViewport.Width || b.Dy() != testViewport.Height {
		t.Errorf("image = %dx%d, want %v", b.Dx(), b.Dy(), testViewport)
	}
}

func TestLogRoutes(t *testing.T) {
	logging.Initialize(logging.Config{Level: "info", Format: "text"})
	ts := newTestServer(t, false)

	logging.GetLogger("pipeline").Info("first entry")
	resp, body := ts.do(t, http.MethodGet, "/api/logs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logs status = %d", resp.StatusCode)
	}
	var logs struct {
		Entries []events.LogEntryEvent
		Count   int
	}
	if err := json.Unmarshal(body, &logs); err != nil {
		t.Fatal(err)
	}
	if logs.Count == 0 {
		t.Fatal("no buffered entries")
	}
	last := logs.Entries[len(logs.Entries)-1].Seq

	resp, body = ts.do(t, http.MethodGet, "/api/logs?since="+jsonNumber(last), nil)
	if err := json.Unmarshal(body, &logs); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("since status = %d, %v", resp.StatusCode, err)
	}
	for _, e := range logs.Entries {
		if e.Seq <= last {
			t.Errorf("entry seq %d not after %d", e.Seq, last)
		}
	}

	resp, body = ts.do(t, http.MethodPut, "/api/logs/levels/pipeline", map[string]string{"level": "debug"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set level status = %d (%s)", resp.StatusCode, body)
	}
	var levels struct{ Levels map[string]string }
	if err := json.Unmarshal(body, &levels); err != nil {
		t.Fatal(err)
	}
	if got := levels.Levels["pipeline"]; got != "debug" {
		t.Errorf("pipeline level = %q, want debug", got)
	}
}

func jsonNumber(n uint64) string {
	data, _ := json.Marshal(n)
	return string(data)
}

func TestEventsStreamStartsWithState(t *testing.T) {
	ts := newTestServer(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitFor := func(prefix string) string {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("timeout waiting for %q", prefix)
			}
		}
	}

	if got := waitFor("event:"); !strings.Contains(got, "state-changed") {
		t.Errorf("first event = %q, want state-changed", got)
	}
	waitFor("data:")

	ts.bus.Publish(events.UserErrorEvent{Kind: "photo_failed", Message: "Photo failed"})
	if got := waitFor("event:"); !strings.Contains(got, "user-error") {
		t.Errorf("event = %q, want user-error", got)
	}
	if got := waitFor("data:"); !strings.Contains(got, "photo_failed") {
		t.Errorf("data = %q", got)
	}
}

func TestOptionsCatalogue(t *testing.T) {
	ts := newTestServer(t, false)
	resp, body := ts.do(t, http.MethodGet, "/api/options", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "faststart") {
		t.Errorf("options body lacks faststart: %s", body)
	}
}

func TestFrontendFallback(t *testing.T) {
	ts := newTestServer(t, false)

	resp, body := ts.do(t, http.MethodGet, "/some/client/route", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "shadercam") {
		t.Errorf("fallback status = %d", resp.StatusCode)
	}
	resp, _ = ts.do(t, http.MethodGet, "/api/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown api path status = %d, want 404", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, true)

	// Preflights carry no credentials
	resp, _ := ts.do(t, http.MethodOptions, "/api/camera/start", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("OPTIONS status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PUT") {
		t.Errorf("Allow-Methods = %q, want it to include PUT", got)
	}

	resp, _ = ts.do(t, http.MethodGet, "/api/health", nil)
	if got := resp.Header.Get("Access-Control-Expose-Headers"); got != "X-Frame-Count" {
		t.Errorf("Expose-Headers = %q, want X-Frame-Count", got)
	}
}

func TestCORSConfigOrigin(t *testing.T) {
	tests := []struct {
		origin   string
		want     string
		wantVary bool
	}{
		{"", "*", false},
		{"*", "*", false},
		{"http://panel.local", "http://panel.local", true},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			headers := DefaultCORSConfig(tt.origin).headers()
			got := map[string]string{}
			for _, kv := range headers {
				got[kv[0]] = kv[1]
			}
			if got["Access-Control-Allow-Origin"] != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got["Access-Control-Allow-Origin"], tt.want)
			}
			if _, vary := got["Vary"]; vary != tt.wantVary {
				t.Errorf("Vary present = %v, want %v", vary, tt.wantVary)
			}
		})
	}
}
