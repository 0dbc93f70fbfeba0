package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/shadercam/internal/events"
)

// Tally follows capture state on the bus: solid while recording, off while
// the camera is ready and blinking while it is not running.
type Tally struct {
	indicator Indicator
	bus       *events.Bus
	logger    *slog.Logger

	mu          sync.Mutex
	current     Pattern
	unsubscribe func()
}

// NewTally creates a tally for indicator.
func NewTally(indicator Indicator, bus *events.Bus, logger *slog.Logger) *Tally {
	return &Tally{indicator: indicator, bus: bus, logger: logger}
}

// PatternFor maps a capture state to the indicator pattern.
func PatternFor(e events.StateChangedEvent) Pattern {
	switch {
	case e.RecordingStarted:
		return PatternSolid
	case e.IsInitialized:
		return PatternOff
	default:
		return PatternBlink
	}
}

// Start shows the initial pattern and begins following state changes.
func (t *Tally) Start(initial events.StateChangedEvent) {
	t.apply(PatternFor(initial))
	t.mu.Lock()
	t.unsubscribe = t.bus.Subscribe(func(e events.StateChangedEvent) {
		t.apply(PatternFor(e))
	})
	t.mu.Unlock()
	t.logger.Info("Recording indicator started", "led", t.indicator.Name())
}

// Stop unsubscribes and switches the LED off.
func (t *Tally) Stop() {
	t.mu.Lock()
	unsub := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	t.apply(PatternOff)
}

func (t *Tally) apply(p Pattern) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p == t.current {
		return
	}
	if err := t.indicator.Show(p); err != nil {
		t.logger.Warn("Failed to set recording indicator", "pattern", p, "error", err)
		return
	}
	t.current = p
	t.logger.Debug("Recording indicator changed", "pattern", p)
}
