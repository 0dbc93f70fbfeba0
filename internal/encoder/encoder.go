package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/smazurov/shadercam/internal/ffmpeg"
	"github.com/smazurov/shadercam/internal/gate"
	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/logging"
	"github.com/smazurov/shadercam/internal/metrics"
	"github.com/smazurov/shadercam/internal/metrics/collectors"
	"github.com/smazurov/shadercam/internal/process"
)

// Errors returned by the encoder.
var (
	ErrNotStarted     = errors.New("encoder not started")
	ErrAlreadyStarted = errors.New("encoder already started")
	ErrReleased       = errors.New("encoder released")
	ErrNoFrames       = errors.New("encoder received no frames")
)

// ExitError reports a non-zero encoder exit.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("encoder exited with code %d", e.Code)
}

// Stats counts frames for the current recording. Written includes the
// Padded copies of the last frame appended by Shutdown.
type Stats struct {
	Rendered int64
	Written  int64
	Dropped  int64
	Padded   int64
}

// Encoder records frames queued on its input surface.
type Encoder struct {
	logger  logging.Logger
	opts    Options
	command CommandFunc
	surface *inputSurface

	firstFrame *gate.Gate

	mu         sync.RWMutex
	cfg        Config
	running    bool
	released   bool
	id         string
	proc       *process.Process
	frames     chan *gpu.Buffer
	writerDone chan struct{}
	collector  *collectors.ProgressCollector
	writeErr   error
	writeErrMu sync.Mutex
	padTo      int64 // set before frames is closed
	rendered   atomic.Int64
	written    atomic.Int64
	dropped    atomic.Int64
	padded     atomic.Int64
	startedAt  time.Time
}

// New creates an encoder for cfg. Nothing runs until Start.
func New(cfg Config, opts Options) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.FinishTimeout <= 0 {
		opts.FinishTimeout = DefaultFinishTimeout
	}
	command := opts.Command
	if command == nil {
		command = FFmpegCommand(opts)
	}
	e := &Encoder{
		logger:     logging.GetLogger("encoder"),
		opts:       opts,
		command:    command,
		cfg:        cfg,
		firstFrame: gate.New("encoder-first-frame"),
	}
	e.surface = &inputSurface{enc: e, width: cfg.Height, height: cfg.Width}
	return e, nil
}

// Config returns the current recording configuration.
func (e *Encoder) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// InputSurface returns the window the pipeline renders encoder frames into.
func (e *Encoder) InputSurface() gpu.Window {
	return e.surface
}

// SetInitialOrientation sets the rotation written to the next recording.
func (e *Encoder) SetInitialOrientation(degrees int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.logger.Warn("Ignoring orientation change while recording", "degrees", degrees)
		return
	}
	e.cfg.Orientation = degrees
}

// SetOutputFile points the next recording at path and resets per-recording
// state.
func (e *Encoder) SetOutputFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyStarted
	}
	e.cfg.OutputPath = path
	e.firstFrame.Reset()
	e.rendered.Store(0)
	e.written.Store(0)
	e.dropped.Store(0)
	e.padded.Store(0)
	return nil
}

// Start launches the encoder process.
func (e *Encoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.released:
		return ErrReleased
	case e.running:
		return ErrAlreadyStarted
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	e.id = uuid.NewString()
	var socket string
	if e.opts.ProgressDir != "" {
		socket = filepath.Join(e.opts.ProgressDir, "shadercam-progress-"+e.id[:8]+".sock")
		e.collector = collectors.NewProgressCollector(socket, e.id)
		if err := e.collector.Start(context.Background()); err != nil {
			e.logger.Warn("Progress reporting disabled", "error", err)
			e.collector = nil
			socket = ""
		}
	}

	args, err := e.command(e.cfg, socket)
	if err != nil {
		e.stopCollector()
		return fmt.Errorf("build encoder command: %w", err)
	}

	proc := process.New(e.id, args, e.logger)
	proc.SetLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel)
	proc.SetTimeouts(5*time.Second, 5*time.Second)
	stdin, err := proc.Start()
	if err != nil {
		e.stopCollector()
		return fmt.Errorf("start encoder: %w", err)
	}

	e.proc = proc
	e.frames = make(chan *gpu.Buffer, 2)
	e.writerDone = make(chan struct{})
	e.writeErr = nil
	e.running = true
	e.startedAt = time.Now()
	go e.writeFrames(stdin, e.frames, e.writerDone)

	e.logger.Info("Encoder started",
		"id", e.id,
		"output", e.cfg.OutputPath,
		"size", fmt.Sprintf("%dx%d", e.surface.width, e.surface.height),
		"bitrate", humanize.SI(float64(e.cfg.Bitrate), "bps"),
		"fps", e.cfg.FPS,
		"dynamic_range", e.cfg.DynamicRange.String(),
		"orientation", e.cfg.Orientation)
	return nil
}

// IsRunning reports whether a recording is in progress.
func (e *Encoder) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// FrameAvailable is called after a frame was rendered to the input surface.
func (e *Encoder) FrameAvailable() {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if running {
		e.rendered.Add(1)
	}
}

// WaitForFirstFrame blocks until the first frame of the current recording
// was written to the encoder process.
func (e *Encoder) WaitForFirstFrame(ctx context.Context) error {
	return e.firstFrame.Wait(ctx)
}

// Stats returns frame counters for the current or last recording.
func (e *Encoder) Stats() Stats {
	return Stats{
		Rendered: e.rendered.Load(),
		Written:  e.written.Load(),
		Dropped:  e.dropped.Load(),
		Padded:   e.padded.Load(),
	}
}

// minFrames is the frame count covering d at fps, rounded up.
func minFrames(d time.Duration, fps int) int64 {
	if d <= 0 || fps <= 0 {
		return 0
	}
	return (int64(d)*int64(fps) + int64(time.Second) - 1) / int64(time.Second)
}

// Shutdown finalizes the current recording. Frames are encoded at a fixed
// rate, so when fewer than Options.MinDuration worth were written the last
// frame is repeated to fill the gap. The output is valid only when it
// returns nil.
func (e *Encoder) Shutdown() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.running = false
	e.padTo = minFrames(e.opts.MinDuration, e.cfg.FPS)
	close(e.frames)
	proc, writerDone, output := e.proc, e.writerDone, e.cfg.OutputPath
	e.mu.Unlock()

	<-writerDone
	code := proc.Finish(e.opts.FinishTimeout)

	e.mu.Lock()
	e.stopCollector()
	e.proc = nil
	e.mu.Unlock()

	stats := e.Stats()
	attrs := []any{
		"id", proc.Info().ID,
		"exit_code", code,
		"frames", stats.Written,
		"dropped", stats.Dropped,
		"padded", stats.Padded,
		"encoded", encodedDuration(stats.Written, e.cfg.FPS),
		"duration", time.Since(e.startedAt).Round(time.Millisecond),
	}
	if fi, err := os.Stat(output); err == nil {
		attrs = append(attrs, "size", humanize.Bytes(uint64(fi.Size())))
	}
	e.logger.Info("Encoder stopped", attrs...)

	e.writeErrMu.Lock()
	writeErr := e.writeErr
	e.writeErrMu.Unlock()

	switch {
	case code != 0:
		return &ExitError{Code: code}
	case writeErr != nil:
		return fmt.Errorf("write frames: %w", writeErr)
	case stats.Written == 0:
		return ErrNoFrames
	}
	return nil
}

// Release stops any recording and rejects further frames.
func (e *Encoder) Release() {
	if e.IsRunning() {
		if err := e.Shutdown(); err != nil {
			e.logger.Warn("Encoder shutdown during release failed", "error", err)
		}
	}
	e.mu.Lock()
	e.released = true
	e.mu.Unlock()
}

// stopCollector must be called with mu held.
func (e *Encoder) stopCollector() {
	if e.collector != nil {
		e.collector.Stop()
		e.collector = nil
	}
}

func (e *Encoder) queue(buf *gpu.Buffer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.released {
		return ErrReleased
	}
	if !e.running {
		return nil
	}
	select {
	case e.frames <- buf:
	default:
		e.dropped.Add(1)
		metrics.RecordEncoderFrame(false)
	}
	return nil
}

func encodedDuration(frames int64, fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(fps)
}

func (e *Encoder) writeFrames(w io.Writer, frames <-chan *gpu.Buffer, done chan<- struct{}) {
	defer close(done)
	failed := false
	var last *gpu.Buffer
	for buf := range frames {
		if failed {
			continue
		}
		if buf.Width != e.surface.width || buf.Height != e.surface.height {
			e.logger.Warn("Dropping frame with unexpected size",
				"got", fmt.Sprintf("%dx%d", buf.Width, buf.Height),
				"want", fmt.Sprintf("%dx%d", e.surface.width, e.surface.height))
			e.dropped.Add(1)
			metrics.RecordEncoderFrame(false)
			continue
		}
		if _, err := w.Write(buf.Pix); err != nil {
			e.logger.Error("Failed to write frame to encoder", "error", err)
			e.writeErrMu.Lock()
			e.writeErr = err
			e.writeErrMu.Unlock()
			failed = true
			continue
		}
		last = buf
		e.written.Add(1)
		e.firstFrame.Open()
		metrics.RecordEncoderFrame(true)
	}

	if failed || last == nil {
		return
	}
	for e.written.Load() < e.padTo {
		if _, err := w.Write(last.Pix); err != nil {
			e.logger.Error("Failed to pad recording", "error", err)
			e.writeErrMu.Lock()
			e.writeErr = err
			e.writeErrMu.Unlock()
			return
		}
		e.written.Add(1)
		e.padded.Add(1)
	}
}

// inputSurface is the consumer end the pipeline renders into.
type inputSurface struct {
	enc    *Encoder
	width  int
	height int
}

func (s *inputSurface) Size() (int, int) {
	return s.width, s.height
}

func (s *inputSurface) QueueBuffer(buf *gpu.Buffer) error {
	return s.enc.queue(buf)
}
