package capture

import (
	"fmt"
	"time"

	"github.com/smazurov/shadercam/internal/events"
)

// State is the observable state of the manager.
type State struct {
	IsFrontFacing    bool
	IsInitialized    bool
	IsReadyToPhoto   bool
	IsReadyToVideo   bool
	RecordingStarted bool
	ElapsedTime      string
	Orientation      int
	Shader           string
}

// Event converts the state into its bus event.
func (s State) Event() events.StateChangedEvent {
	return events.StateChangedEvent{
		IsFrontFacing:    s.IsFrontFacing,
		IsInitialized:    s.IsInitialized,
		IsReadyToPhoto:   s.IsReadyToPhoto,
		IsReadyToVideo:   s.IsReadyToVideo,
		RecordingStarted: s.RecordingStarted,
		ElapsedTime:      s.ElapsedTime,
		Orientation:      s.Orientation,
		Shader:           s.Shader,
		Timestamp:        time.Now().Format(time.RFC3339),
	}
}

// FormatElapsed renders a duration as MM:SS, or H:MM:SS from one hour on.
func FormatElapsed(d time.Duration) string {
	total := max(int64(d/time.Second), 0)
	h, m, s := total/3600, total%3600/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// State returns a snapshot of the observable state.
func (m *Manager) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

// update applies fn to the state and publishes the result if it changed.
func (m *Manager) update(fn func(*State)) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	prev := m.state
	fn(&m.state)
	if m.state == prev {
		return
	}
	if m.cfg.Bus != nil {
		m.cfg.Bus.Publish(m.state.Event())
	}
}

func (m *Manager) setReady(initialized bool) {
	m.update(func(s *State) {
		s.IsInitialized = initialized
		s.IsReadyToPhoto = initialized
		s.IsReadyToVideo = initialized
	})
}
