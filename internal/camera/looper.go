package camera

import (
	"sync"

	"github.com/smazurov/shadercam/internal/logging"
	"github.com/sourcegraph/conc/panics"
)

// Looper is a goroutine that runs posted callbacks in order. Camera backends
// deliver every device and session callback through the looper passed to
// them.
type Looper struct {
	name  string
	queue chan func()
	done  chan struct{}

	mu   sync.Mutex
	quit bool
}

// NewLooper starts a looper goroutine.
func NewLooper(name string) *Looper {
	l := &Looper{
		name:  name,
		queue: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go l.loop()
	return l
}

// Name returns the looper name.
func (l *Looper) Name() string {
	return l.name
}

func (l *Looper) loop() {
	defer close(l.done)
	logger := logging.GetLogger("camera")
	for fn := range l.queue {
		var pc panics.Catcher
		pc.Try(fn)
		if r := pc.Recovered(); r != nil {
			logger.Error("Looper callback panicked", "looper", l.name, "panic", r.Value)
		}
	}
}

// Post schedules fn. It returns false once the looper is quitting.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quit {
		return false
	}
	l.queue <- fn
	return true
}

// Sync blocks until every callback posted before the call has run.
func (l *Looper) Sync() {
	done := make(chan struct{})
	if !l.Post(func() { close(done) }) {
		<-l.done
		return
	}
	<-done
}

// Quit stops accepting callbacks, lets the queued ones finish and waits for
// the goroutine to exit. Safe to call more than once.
func (l *Looper) Quit() {
	l.mu.Lock()
	if !l.quit {
		l.quit = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.done
}

// Done is closed once the looper goroutine has exited.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}
