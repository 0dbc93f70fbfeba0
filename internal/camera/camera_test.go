package camera

import (
	"sync"
	"testing"
	"time"
)

func TestRotationDegrees(t *testing.T) {
	tests := []struct {
		rotation Rotation
		want     int
	}{
		{Rotation0, 0},
		{Rotation90, 90},
		{Rotation180, 180},
		{Rotation270, 270},
		{Rotation(7), 0},
	}
	for _, tt := range tests {
		if got := tt.rotation.Degrees(); got != tt.want {
			t.Errorf("Rotation(%d).Degrees() = %d, want %d", tt.rotation, got, tt.want)
		}
	}
}

func TestRotationFromDegrees(t *testing.T) {
	for _, r := range []Rotation{Rotation0, Rotation90, Rotation180, Rotation270} {
		got, err := RotationFromDegrees(r.Degrees())
		if err != nil || got != r {
			t.Errorf("RotationFromDegrees(%d) = %v, %v, want %v", r.Degrees(), got, err, r)
		}
	}
	if _, err := RotationFromDegrees(45); err == nil {
		t.Error("RotationFromDegrees(45) succeeded")
	}
}

func TestErrorCodeReason(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrorCameraDevice, "fatal-device"},
		{ErrorCameraDisabled, "disabled-by-policy"},
		{ErrorCameraInUse, "in-use"},
		{ErrorCameraService, "fatal-service"},
		{ErrorMaxCamerasInUse, "max-cameras-exceeded"},
		{ErrorCode(99), "unknown"},
	}
	for _, tt := range tests {
		err := &DeviceAcquisitionError{CameraID: "0", Code: tt.code}
		if got := err.Reason(); got != tt.want {
			t.Errorf("Reason() = %q, want %q", got, tt.want)
		}
	}
}

func TestNegotiate(t *testing.T) {
	full := Characteristics{Capabilities: Capabilities{
		DynamicRangeProfiles:    []DynamicRange{DynamicRangeHLG10},
		ZoomRatioRange:          [2]float32{0.5, 8},
		PreviewStabilization:    true,
		MaxResolutionSensorMode: true,
	}}
	narrowZoom := Characteristics{Capabilities: Capabilities{ZoomRatioRange: [2]float32{1, 4}}}

	tests := []struct {
		name          string
		ch            Characteristics
		want          DynamicRange
		stabilization bool
		expected      Negotiated
	}{
		{
			name:          "full capabilities with HLG",
			ch:            full,
			want:          DynamicRangeHLG10,
			stabilization: true,
			expected: Negotiated{
				Kind: SessionDynamicRange, DynamicRange: DynamicRangeHLG10,
				ZoomRatio: 0.6, Stabilization: true, MaxResolution: true,
			},
		},
		{
			name:     "unsupported range falls back to standard",
			ch:       full,
			want:     DynamicRangeHDR10,
			expected: Negotiated{Kind: SessionDynamicRange, ZoomRatio: 0.6, MaxResolution: true},
		},
		{
			name:          "legacy camera",
			ch:            Characteristics{},
			want:          DynamicRangeHLG10,
			stabilization: true,
			expected:      Negotiated{Kind: SessionLegacy},
		},
		{
			name:     "zoom clamped to range",
			ch:       narrowZoom,
			expected: Negotiated{ZoomRatio: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Negotiate(tt.ch, tt.want, tt.stabilization)
			if got != tt.expected {
				t.Errorf("Negotiate() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestRequestBuilder(t *testing.T) {
	b := NewRequestBuilder(Negotiated{Kind: SessionDynamicRange, DynamicRange: DynamicRangeHLG10, ZoomRatio: 0.6}, 30)

	cfg := b.SessionConfig(nil)
	if cfg.Kind != SessionDynamicRange || len(cfg.Outputs) != 0 {
		t.Errorf("SessionConfig(nil) = %+v", cfg)
	}

	req := b.Build(nil, 270)
	if req.FPSRange != [2]int{30, 30} {
		t.Errorf("FPSRange = %v, want [30 30]", req.FPSRange)
	}
	if req.OrientationTag != 270 {
		t.Errorf("OrientationTag = %d, want 270", req.OrientationTag)
	}
	if req.ZoomRatio != 0.6 {
		t.Errorf("ZoomRatio = %v, want 0.6", req.ZoomRatio)
	}
	if req.Template != TemplateVideoSnapshot {
		t.Errorf("Template = %v, want %v", req.Template, TemplateVideoSnapshot)
	}
}

func TestBestPreviewSize(t *testing.T) {
	ch := Characteristics{
		ActiveArray: Size{Width: 4000, Height: 2250},
		OutputSizes: []Size{
			{Width: 640, Height: 480},
			{Width: 3840, Height: 2160},
			{Width: 1440, Height: 1080},
			{Width: 1280, Height: 720},
			{Width: 1920, Height: 1080},
		},
	}

	tests := []struct {
		name     string
		ch       Characteristics
		viewport Size
		want     Size
		wantErr  bool
	}{
		{"hd viewport capped at 1080p", ch, Size{Width: 1440, Height: 3120}, Size{Width: 1920, Height: 1080}, false},
		{"small viewport", ch, Size{Width: 800, Height: 1300}, Size{Width: 1280, Height: 720}, false},
		{
			"no native aspect falls back to largest",
			Characteristics{ActiveArray: Size{Width: 4000, Height: 2250}, OutputSizes: []Size{{Width: 640, Height: 480}}},
			Size{Width: 1080, Height: 1920},
			Size{Width: 640, Height: 480},
			false,
		},
		{"nothing fits", ch, Size{Width: 100, Height: 100}, Size{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BestPreviewSize(tt.ch, tt.viewport)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BestPreviewSize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BestPreviewSize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecorderParamsFor(t *testing.T) {
	got := RecorderParamsFor(Characteristics{}, Quality1080P)
	want := RecorderParams{Width: 1920, Height: 1080, Bitrate: 10_000_000, FPS: 30, AudioBitrate: 96_000, AudioSampleRate: 48_000}
	if got != want {
		t.Errorf("RecorderParamsFor() = %+v, want %+v", got, want)
	}

	ch := Characteristics{Profiles: map[Quality]RecorderParams{
		Quality1080P: {Width: 1920, Height: 1080, Bitrate: 17_000_000, FPS: 60, AudioBitrate: 128_000, AudioSampleRate: 44_100},
	}}
	got = RecorderParamsFor(ch, Quality1080P)
	if got.Bitrate != 17_000_000 || got.AudioSampleRate != 44_100 {
		t.Errorf("camera profile not applied: %+v", got)
	}
	if got.FPS != 30 {
		t.Errorf("FPS = %d, want 30", got.FPS)
	}
}

func TestParseQuality(t *testing.T) {
	if q, err := ParseQuality("720P"); err != nil || q != Quality720P {
		t.Errorf("ParseQuality(720P) = %v, %v", q, err)
	}
	if q, err := ParseQuality(""); err != nil || q != Quality1080P {
		t.Errorf("ParseQuality(\"\") = %v, %v", q, err)
	}
	if _, err := ParseQuality("8k"); err == nil {
		t.Error("ParseQuality(8k) expected error")
	}
}

func TestLooperRunsInOrder(t *testing.T) {
	l := NewLooper("test")
	defer l.Quit()

	var mu sync.Mutex
	var got []int
	for i := range 10 {
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	l.Sync()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("callbacks ran out of order: %v", got)
		}
	}
	if len(got) != 10 {
		t.Errorf("ran %d callbacks, want 10", len(got))
	}
}

func TestLooperSurvivesPanicAndQuits(t *testing.T) {
	l := NewLooper("test")
	l.Post(func() { panic("boom") })

	ran := make(chan struct{})
	l.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("looper stopped after panic")
	}

	l.Quit()
	l.Quit()
	if l.Post(func() {}) {
		t.Error("Post() after Quit = true, want false")
	}
	l.Sync()
}
