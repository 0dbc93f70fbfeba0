package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/media"
	"github.com/smazurov/shadercam/internal/metrics"
)

// ToggleRecording starts a recording, or stops and saves the running one.
// Stopping blocks until the encoder wrote its first frame and the recording
// is at least MinRecording long, then finalizes the file.
func (m *Manager) ToggleRecording(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	res := m.current()
	st := m.State()
	if res == nil || !st.IsInitialized {
		m.logger.Warn("Recording toggled before initialization")
		return ErrNotInitialized
	}
	if !st.RecordingStarted {
		return m.startRecording(res)
	}
	return m.stopRecording(ctx, res)
}

// IsRecording reports whether frames are currently being recorded.
func (m *Manager) IsRecording() bool {
	return m.recording.Load()
}

func (m *Manager) startRecording(res *resources) error {
	m.update(func(s *State) { s.IsReadyToVideo = false })
	m.recStart = time.Now()
	m.startTimer(m.recStart)
	m.logger.Info("Starting recording", "path", res.outputFile)

	orientation := m.State().Orientation
	res.enc.SetInitialOrientation(orientation)
	res.pipe.SetInitialOrientation(orientation)
	res.pipe.ActionDown(res.enc.InputSurface())

	m.update(func(s *State) { s.RecordingStarted = true })
	if err := res.enc.Start(); err != nil {
		m.stopTimer()
		m.update(func(s *State) {
			s.RecordingStarted = false
			s.IsReadyToVideo = true
		})
		m.publishUserError("encoder_start", "Recording could not be started", err)
		return fmt.Errorf("start encoder: %w", err)
	}
	m.recStarted.Open()
	m.recording.Store(true)
	res.pipe.StartRecording()
	metrics.SetRecordingActive(true)

	m.update(func(s *State) { s.IsReadyToVideo = true })
	return nil
}

func (m *Manager) stopRecording(ctx context.Context, res *resources) error {
	m.update(func(s *State) { s.IsReadyToVideo = false })
	m.stopTimer()

	if err := m.recStarted.Wait(ctx); err != nil {
		m.logger.Warn("Recording start was not confirmed", "error", err)
	}
	// At least one frame must reach the encoder or the file is empty.
	if err := res.enc.WaitForFirstFrame(ctx); err != nil {
		m.logger.Warn("No frame reached the encoder", "error", err)
	}
	if elapsed := time.Since(m.recStart); elapsed < m.cfg.MinRecording {
		time.Sleep(m.cfg.MinRecording - elapsed)
	}

	m.recording.Store(false)
	res.pipe.StopRecording()
	m.recStarted.Reset()
	metrics.SetRecordingActive(false)
	m.update(func(s *State) { s.RecordingStarted = false })

	path := res.outputFile
	duration := time.Since(m.recStart)
	m.logger.Info("Recording stopped", "path", path, "duration", duration.Round(time.Millisecond))

	result := m.finishRecording(ctx, path, duration, res.enc.Shutdown())
	if err := m.rotateOutput(res); err != nil {
		result = errors.Join(result, err)
	}
	m.update(func(s *State) { s.IsReadyToVideo = true })
	return result
}

func (m *Manager) finishRecording(ctx context.Context, path string, duration time.Duration, shutdownErr error) error {
	if shutdownErr != nil {
		err := &EncoderShutdownError{Path: path, Err: shutdownErr}
		m.logger.Error("Recording failed", "path", path, "error", shutdownErr)
		metrics.RecordRecording(metrics.RecordingShutdownFailed)
		m.publishUserError("encoder_shutdown", "Recording could not be saved", err)
		if _, rmErr := media.RemoveIfEmpty(path); rmErr != nil {
			m.logger.Warn("Failed to remove empty output", "path", path, "error", rmErr)
		}
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		nf := &OutputNotFoundError{Path: path}
		m.logger.Error("Recording output missing", "path", path, "error", err)
		metrics.RecordRecording(metrics.RecordingMissingOutput)
		m.publishUserError("output_not_found", "Recorded file not found", nf)
		return nf
	}

	saved := path
	if m.cfg.Publisher != nil {
		p, err := m.cfg.Publisher.Publish(context.WithoutCancel(ctx), path, media.KindVideo)
		if err != nil {
			m.logger.Warn("Publishing recording failed", "path", path, "error", err)
		} else {
			saved = p
		}
	}

	size := humanize.Bytes(uint64(info.Size()))
	metrics.RecordRecording(metrics.RecordingSaved)
	m.logger.Info("Recording saved", "path", saved, "size", size)
	m.publish(events.RecordingFinishedEvent{
		ID:        mediaID(path),
		Path:      saved,
		Bytes:     info.Size(),
		Size:      size,
		Duration:  duration.Round(100 * time.Millisecond).String(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return nil
}

// rotateOutput points the encoder at a fresh file for the next recording.
func (m *Manager) rotateOutput(res *resources) error {
	next, err := m.cfg.Store.CreateVideoFile()
	if err != nil {
		m.logger.Error("Failed to create next output file", "error", err)
		return fmt.Errorf("create output file: %w", err)
	}
	if err := res.enc.SetOutputFile(next); err != nil {
		_ = os.Remove(next)
		return fmt.Errorf("set output file: %w", err)
	}
	res.outputFile = next
	return nil
}

type elapsedTimer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startTimer refreshes ElapsedTime every second. opMu must be held.
func (m *Manager) startTimer(start time.Time) {
	m.stopTimer()
	ctx, cancel := context.WithCancel(context.Background())
	t := &elapsedTimer{cancel: cancel, done: make(chan struct{})}
	m.timer = t

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			m.update(func(s *State) { s.ElapsedTime = FormatElapsed(time.Since(start)) })
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// stopTimer stops the ticker and clears ElapsedTime. opMu must be held.
func (m *Manager) stopTimer() {
	if t := m.timer; t != nil {
		t.cancel()
		<-t.done
		m.timer = nil
	}
	m.update(func(s *State) { s.ElapsedTime = "" })
}
