package capture

import (
	"context"
	"time"

	"github.com/smazurov/shadercam/internal/camera"
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/media"
	"github.com/smazurov/shadercam/internal/metrics"
	"github.com/smazurov/shadercam/internal/pipeline"
)

// Shader change sources.
const (
	SourceAPI     = "api"
	SourceWatcher = "watcher"
)

// TakePhoto renders the next frame into the photo reader. Photo readiness is
// restored after PhotoSettle.
func (m *Manager) TakePhoto() error {
	res := m.current()
	if res == nil || !m.State().IsInitialized {
		return ErrNotInitialized
	}
	m.update(func(s *State) { s.IsReadyToPhoto = false })
	res.pipe.ActionTakePhoto(res.photo)
	time.AfterFunc(m.cfg.PhotoSettle, func() {
		m.update(func(s *State) {
			if s.IsInitialized {
				s.IsReadyToPhoto = true
			}
		})
	})
	return nil
}

// ChangeCamera switches to the other facing and initializes it again.
func (m *Manager) ChangeCamera() *InitAttempt {
	if !m.State().IsInitialized {
		return resolvedAttempt(ErrNotInitialized)
	}
	m.mu.Lock()
	if m.facing == camera.FacingFront {
		m.facing = camera.FacingBack
	} else {
		m.facing = camera.FacingFront
	}
	front := m.facing == camera.FacingFront
	win, viewport := m.window, m.viewport
	m.mu.Unlock()

	m.logger.Info("Switching camera", "front", front)
	m.update(func(s *State) { s.IsFrontFacing = front })
	m.Stop()
	return m.Init(win, viewport)
}

// OrientationChanged records the display rotation. While initialized the
// pipeline and the repeating request follow it without restarting the
// session.
func (m *Manager) OrientationChanged(r camera.Rotation) {
	degrees := r.Degrees()
	m.logger.Debug("Orientation changed", "degrees", degrees)
	m.update(func(s *State) { s.Orientation = degrees })

	res := m.current()
	if res == nil || !m.State().IsInitialized {
		return
	}
	res.pipe.SetOrientation(degrees)
	if res.session.session == nil || res.builder == nil {
		return
	}
	req := res.builder.Build(res.targets, degrees)
	if err := res.session.session.SetRepeatingRequest(req); err != nil {
		m.logger.Warn("Failed to update repeating request", "camera", res.session.id, "error", err)
	}
}

// ChangeShader switches the shader chain to name. While uninitialized the
// name is only remembered for the next initialization. A shader that fails
// to compile fails the pipeline and the session is torn down.
func (m *Manager) ChangeShader(ctx context.Context, name string) error {
	return m.applyShader(ctx, name, SourceAPI)
}

// ReloadShader recompiles the active shader, e.g. after its file changed.
func (m *Manager) ReloadShader(ctx context.Context) error {
	return m.applyShader(ctx, m.State().Shader, SourceWatcher)
}

func (m *Manager) applyShader(ctx context.Context, name, source string) error {
	if _, err := m.cfg.Library.Load(name); err != nil {
		m.publishShader(name, source, err)
		return err
	}

	res := m.current()
	if res == nil || !m.State().IsInitialized {
		m.update(func(s *State) { s.Shader = name })
		m.publishShader(name, source, nil)
		return nil
	}

	if err := res.pipe.ChangeShader(ctx, name); err != nil {
		m.logger.Error("Shader change failed", "shader", name, "source", source, "error", err)
		m.publishShader(name, source, err)
		if res.pipe.State() == pipeline.StateFailed {
			m.publishUserError("shader_compilation", "Shader could not be applied", err)
			m.Stop()
		}
		return err
	}
	m.update(func(s *State) { s.Shader = name })
	m.publishShader(name, source, nil)
	m.logger.Info("Shader changed", "shader", name, "source", source)
	return nil
}

func (m *Manager) publishShader(name, source string, err error) {
	ev := events.ShaderChangedEvent{
		Shader:    name,
		Source:    source,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.publish(ev)
}

// photoSaved runs on the photo reader goroutine.
func (m *Manager) photoSaved(p media.Photo) {
	metrics.RecordPhoto()
	saved := p.Path
	if m.cfg.Publisher != nil {
		path, err := m.cfg.Publisher.Publish(context.Background(), p.Path, media.KindPhoto)
		if err != nil {
			m.logger.Warn("Publishing photo failed", "path", p.Path, "error", err)
		} else {
			saved = path
		}
	}
	m.logger.Info("Photo saved", "path", saved, "width", p.Width, "height", p.Height, "orientation", p.Orientation)
	m.publish(events.PhotoCapturedEvent{
		ID:          mediaID(p.Path),
		Path:        saved,
		Width:       p.Width,
		Height:      p.Height,
		Orientation: p.Orientation,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}

func (m *Manager) photoFailed(err error) {
	m.logger.Error("Photo capture failed", "error", err)
	m.publishUserError("photo_failed", "Photo could not be saved", err)
}
