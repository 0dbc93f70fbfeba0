package encoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/shadercam/internal/camera"
	"github.com/smazurov/shadercam/internal/gate"
	"github.com/smazurov/shadercam/internal/gpu"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Width:      4,
		Height:     2,
		Bitrate:    10_000_000,
		FPS:        30,
		OutputPath: filepath.Join(t.TempDir(), "out.raw"),
		Codec:      CodecH264,
	}
}

// shellCommand writes stdin to the output file and then runs tail.
func shellCommand(tail string) CommandFunc {
	return func(cfg Config, _ string) ([]string, error) {
		script := "cat > '" + cfg.OutputPath + "'"
		if tail != "" {
			script += "; " + tail
		}
		return []string{"sh", "-c", script}, nil
	}
}

func newTestEncoder(t *testing.T, cfg Config, command CommandFunc) *Encoder {
	t.Helper()
	e, err := New(cfg, Options{Command: command, FinishTimeout: time.Second})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(e.Release)
	return e
}

// push queues one frame and waits until the writer consumed it.
func push(t *testing.T, e *Encoder, fill byte) {
	t.Helper()
	w, h := e.InputSurface().Size()
	buf := gpu.NewBuffer(w, h)
	for i := range buf.Pix {
		buf.Pix[i] = fill
	}
	want := e.Stats().Written + 1
	if err := e.InputSurface().QueueBuffer(buf); err != nil {
		t.Fatalf("QueueBuffer() failed: %v", err)
	}
	e.FrameAvailable()
	deadline := time.Now().Add(time.Second)
	for e.Stats().Written < want {
		if time.Now().After(deadline) {
			t.Fatalf("frame not written, stats = %+v", e.Stats())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestInputSurfaceIsPortrait(t *testing.T) {
	e := newTestEncoder(t, testConfig(t), shellCommand(""))
	if w, h := e.InputSurface().Size(); w != 2 || h != 4 {
		t.Errorf("Size() = %dx%d, want 2x4", w, h)
	}
}

func TestRecordFrames(t *testing.T) {
	cfg := testConfig(t)
	e := newTestEncoder(t, cfg, shellCommand(""))

	if err := e.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !e.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	push(t, e, 1)
	push(t, e, 2)
	push(t, e, 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.WaitForFirstFrame(ctx); err != nil {
		t.Fatalf("WaitForFirstFrame() failed: %v", err)
	}

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	data, err := os.ReadFile(cfg.OutputPath)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if len(data) != 3*2*4*4 {
		t.Fatalf("output size = %d, want %d", len(data), 3*2*4*4)
	}
	if data[0] != 1 || data[len(data)-1] != 3 {
		t.Errorf("frames out of order: first=%d last=%d", data[0], data[len(data)-1])
	}
	if stats := e.Stats(); stats.Written != 3 {
		t.Errorf("Written = %d, want 3", stats.Written)
	}
}

func TestShutdownErrors(t *testing.T) {
	t.Run("not started", func(t *testing.T) {
		e := newTestEncoder(t, testConfig(t), shellCommand(""))
		if err := e.Shutdown(); !errors.Is(err, ErrNotStarted) {
			t.Errorf("Shutdown() = %v, want %v", err, ErrNotStarted)
		}
	})

	t.Run("no frames", func(t *testing.T) {
		e := newTestEncoder(t, testConfig(t), shellCommand(""))
		if err := e.Start(); err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		if err := e.Shutdown(); !errors.Is(err, ErrNoFrames) {
			t.Errorf("Shutdown() = %v, want %v", err, ErrNoFrames)
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		e := newTestEncoder(t, testConfig(t), shellCommand("exit 3"))
		if err := e.Start(); err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		push(t, e, 1)
		err := e.Shutdown()
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != 3 {
			t.Errorf("Shutdown() = %v, want exit code 3", err)
		}
	})

	t.Run("command error", func(t *testing.T) {
		e := newTestEncoder(t, testConfig(t), func(Config, string) ([]string, error) {
			return nil, errors.New("boom")
		})
		if err := e.Start(); err == nil || !strings.Contains(err.Error(), "boom") {
			t.Errorf("Start() = %v, want command error", err)
		}
		if e.IsRunning() {
			t.Error("IsRunning() = true after failed start")
		}
	})
}

func TestSetOutputFileRotatesRecording(t *testing.T) {
	cfg := testConfig(t)
	e := newTestEncoder(t, cfg, shellCommand(""))

	if err := e.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := e.SetOutputFile("/tmp/other"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("SetOutputFile() while running = %v, want %v", err, ErrAlreadyStarted)
	}
	if err := e.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v, want %v", err, ErrAlreadyStarted)
	}
	push(t, e, 7)
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	next := filepath.Join(t.TempDir(), "next.raw")
	if err := e.SetOutputFile(next); err != nil {
		t.Fatalf("SetOutputFile() failed: %v", err)
	}
	if e.Stats().Written != 0 {
		t.Error("SetOutputFile() did not reset frame counters")
	}

	// The first-frame gate is closed again for the new recording.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.WaitForFirstFrame(ctx); err == nil {
		t.Error("WaitForFirstFrame() succeeded before any frame of the new recording")
	}
	var timeout *gate.TimeoutError
	if err := e.WaitForFirstFrame(ctx); err != nil && !errors.As(err, &timeout) && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForFirstFrame() = %v, want timeout", err)
	}

	if err := e.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	push(t, e, 8)
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	if fi, err := os.Stat(next); err != nil || fi.Size() != 2*4*4 {
		t.Errorf("next output = %v, %v, want one frame", fi, err)
	}
}

func TestFramesOutsideRecordingIgnored(t *testing.T) {
	e := newTestEncoder(t, testConfig(t), shellCommand(""))

	if err := e.InputSurface().QueueBuffer(gpu.NewBuffer(2, 4)); err != nil {
		t.Errorf("QueueBuffer() before Start = %v, want nil", err)
	}
	e.FrameAvailable()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := e.WaitForFirstFrame(ctx); err == nil {
		t.Error("first frame gate opened while not recording")
	}
	if stats := e.Stats(); stats.Written != 0 || stats.Dropped != 0 {
		t.Errorf("Stats() = %+v, want zero", stats)
	}
}

func TestWrongSizeFrameDropped(t *testing.T) {
	e := newTestEncoder(t, testConfig(t), shellCommand(""))
	if err := e.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := e.InputSurface().QueueBuffer(gpu.NewBuffer(4, 2)); err != nil {
		t.Fatalf("QueueBuffer() failed: %v", err)
	}
	push(t, e, 1)
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	if stats := e.Stats(); stats.Written != 1 || stats.Dropped != 1 {
		t.Errorf("Stats() = %+v, want 1 written and 1 dropped", stats)
	}
}

func TestShutdownPadsToMinDuration(t *testing.T) {
	tests := []struct {
		name        string
		minDuration time.Duration
		pushed      int
		wantFrames  int64
	}{
		{"disabled", 0, 2, 2},
		{"one second at 30fps", time.Second, 2, 30},
		{"rounds up", 1010 * time.Millisecond, 1, 31},
		{"already long enough", 50 * time.Millisecond, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			e, err := New(cfg, Options{Command: shellCommand(""), FinishTimeout: time.Second, MinDuration: tt.minDuration})
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}
			t.Cleanup(e.Release)

			if err := e.Start(); err != nil {
				t.Fatalf("Start() failed: %v", err)
			}
			for i := range tt.pushed {
				push(t, e, byte(i+1))
			}
			if err := e.Shutdown(); err != nil {
				t.Fatalf("Shutdown() failed: %v", err)
			}

			stats := e.Stats()
			if stats.Written != tt.wantFrames {
				t.Errorf("Written = %d, want %d", stats.Written, tt.wantFrames)
			}
			if want := tt.wantFrames - int64(tt.pushed); stats.Padded != want {
				t.Errorf("Padded = %d, want %d", stats.Padded, want)
			}

			data, err := os.ReadFile(cfg.OutputPath)
			if err != nil {
				t.Fatalf("ReadFile() failed: %v", err)
			}
			const frameBytes = 2 * 4 * 4
			if got := int64(len(data) / frameBytes); got != tt.wantFrames {
				t.Errorf("output frames = %d, want %d", got, tt.wantFrames)
			}
			if encoded := time.Duration(len(data)/frameBytes) * time.Second / time.Duration(cfg.FPS); encoded < tt.minDuration {
				t.Errorf("encoded duration = %v, want at least %v", encoded, tt.minDuration)
			}
			if last := data[len(data)-1]; last != byte(tt.pushed) {
				t.Errorf("padding frame = %d, want copy of last frame %d", last, tt.pushed)
			}
		})
	}
}

func TestShutdownWithoutFramesIsNotPadded(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg, Options{Command: shellCommand(""), FinishTimeout: time.Second, MinDuration: time.Second})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(e.Release)

	if err := e.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := e.Shutdown(); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Shutdown() = %v, want %v", err, ErrNoFrames)
	}
	if fi, err := os.Stat(cfg.OutputPath); err == nil && fi.Size() != 0 {
		t.Errorf("output size = %d, want 0", fi.Size())
	}
}

func TestFirstFrameNeedsWrittenFrame(t *testing.T) {
	e := newTestEncoder(t, testConfig(t), shellCommand(""))
	if err := e.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	// Rendered but the wrong size: dropped by the writer.
	if err := e.InputSurface().QueueBuffer(gpu.NewBuffer(4, 2)); err != nil {
		t.Fatalf("QueueBuffer() failed: %v", err)
	}
	e.FrameAvailable()
	deadline := time.Now().Add(time.Second)
	for e.Stats().Dropped == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("frame not dropped, stats = %+v", e.Stats())
		}
		time.Sleep(2 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.WaitForFirstFrame(ctx); err == nil {
		t.Error("WaitForFirstFrame() succeeded although no frame was written")
	}
	if stats := e.Stats(); stats.Rendered != 1 || stats.Written != 0 {
		t.Errorf("Stats() = %+v, want 1 rendered and 0 written", stats)
	}

	push(t, e, 1)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := e.WaitForFirstFrame(ctx2); err != nil {
		t.Errorf("WaitForFirstFrame() after a written frame = %v", err)
	}
}

func TestRelease(t *testing.T) {
	e := newTestEncoder(t, testConfig(t), shellCommand(""))
	if err := e.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	push(t, e, 1)

	e.Release()
	e.Release()

	if e.IsRunning() {
		t.Error("IsRunning() = true after Release")
	}
	if err := e.InputSurface().QueueBuffer(gpu.NewBuffer(2, 4)); !errors.Is(err, ErrReleased) {
		t.Errorf("QueueBuffer() after Release = %v, want %v", err, ErrReleased)
	}
	if err := e.Start(); !errors.Is(err, ErrReleased) {
		t.Errorf("Start() after Release = %v, want %v", err, ErrReleased)
	}
}

func TestSetInitialOrientation(t *testing.T) {
	var got Config
	cfg := testConfig(t)
	e := newTestEncoder(t, cfg, func(c Config, s string) ([]string, error) {
		got = c
		return shellCommand("")(c, s)
	})

	e.SetInitialOrientation(270)
	if err := e.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	e.SetInitialOrientation(90) // ignored while recording
	push(t, e, 1)
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	if got.Orientation != 270 {
		t.Errorf("recording orientation = %d, want 270", got.Orientation)
	}
	if e.Config().Orientation != 270 {
		t.Errorf("Config().Orientation = %d, want 270", e.Config().Orientation)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero width", func(c *Config) { c.Width = 0 }, true},
		{"zero fps", func(c *Config) { c.FPS = 0 }, true},
		{"no output", func(c *Config) { c.OutputPath = "" }, true},
		{"bad orientation", func(c *Config) { c.Orientation = 45 }, true},
		{"orientation 180", func(c *Config) { c.Orientation = 180 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if _, err := New(Config{}, Options{}); err == nil {
		t.Error("New() with empty config should fail")
	}
}

func TestFFmpegCommand(t *testing.T) {
	cfg := Config{
		Width:           1920,
		Height:          1080,
		Bitrate:         10_000_000,
		FPS:             30,
		DynamicRange:    camera.DynamicRangeHLG10,
		Orientation:     90,
		OutputPath:      "/tmp/rec.mp4",
		UseSoftwareMux:  true,
		Codec:           CodecHEVC,
		AudioBitrate:    96_000,
		AudioSampleRate: 48_000,
	}
	args, err := FFmpegCommand(Options{Preset: "veryfast"})(cfg, "/tmp/p.sock")
	if err != nil {
		t.Fatalf("FFmpegCommand() failed: %v", err)
	}
	if args[0] != "ffmpeg" {
		t.Errorf("argv[0] = %q, want ffmpeg", args[0])
	}
	cmd := strings.Join(args, " ")
	for _, want := range []string{
		"-video_size 1080x1920",
		"-c:v libx265",
		"-color_trc arib-std-b67",
		"rotate=90",
		"sample_rate=48000",
		"-b:a 96000",
		"-preset veryfast",
		"-progress unix:///tmp/p.sock",
		"-movflags +faststart",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q: %s", want, cmd)
		}
	}

	cfg.UseSoftwareMux = false
	cfg.DynamicRange = camera.DynamicRangeStandard
	args, err = FFmpegCommand(Options{Binary: "/opt/ffmpeg", EncoderName: "h264_vaapi"})(cfg, "")
	if err != nil {
		t.Fatalf("FFmpegCommand() failed: %v", err)
	}
	if args[0] != "/opt/ffmpeg" {
		t.Errorf("argv[0] = %q, want /opt/ffmpeg", args[0])
	}
	if !slices.Contains(args, "h264_vaapi") {
		t.Errorf("encoder override missing: %v", args)
	}
	for _, absent := range []string{"-progress", "-c:a", "-color_trc"} {
		if slices.Contains(args, absent) {
			t.Errorf("unexpected %s in %v", absent, args)
		}
	}
}
