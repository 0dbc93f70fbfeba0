package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a burst of writes must settle before the
// loader runs.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a file, or the files of a directory, and hands freshly
// loaded values to typed handlers. The loader receives the path of the file
// that changed and runs on every settled change, so handlers never see
// stale data.
//
// Files are watched through their parent directory so editors that replace
// the file on save keep triggering reloads.
type Watcher[T any] struct {
	path     string
	dir      bool
	debounce time.Duration
	loader   func(path string) (T, error)
	filter   func(path string) bool
	onError  func(error)
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers map[int]func(T)
	nextID   int

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets the settle time for bursts of changes.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler sets a callback for loader errors. Errors are logged
// either way.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = handler
	}
}

// WithFilter restricts which changed files trigger a load.
func WithFilter[T any](filter func(path string) bool) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.filter = filter
	}
}

// NewWatcher creates a watcher for path, which may be a file or a directory.
func NewWatcher[T any](
	path string,
	loader func(path string) (T, error),
	logger *slog.Logger,
	opts ...WatcherOption[T],
) *Watcher[T] {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		loader:   loader,
		logger:   logger,
		handlers: make(map[int]func(T)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers a handler and returns a function removing it.
func (w *Watcher[T]) OnReload(handler func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = handler
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching.
func (w *Watcher[T]) Start() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	w.dir = info.IsDir()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	target := w.path
	if !w.dir {
		target = filepath.Dir(w.path)
	}
	if addErr := watcher.Add(target); addErr != nil {
		watcher.Close()
		return addErr
	}
	w.watcher = watcher

	w.logger.Info("Watching for changes", "path", w.path, "debounce", w.debounce)
	go w.watch()
	return nil
}

// Stop stops watching and waits for the loop to exit. Safe to call without
// Start.
func (w *Watcher[T]) Stop() error {
	w.cancel()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher[T]) relevant(name string) bool {
	name = filepath.Clean(name)
	if !w.dir && name != w.path {
		return false
	}
	return w.filter == nil || w.filter(name)
}

func (w *Watcher[T]) watch() {
	defer close(w.done)

	// Pending paths keep their own debounce so two files edited together
	// are both reloaded.
	pending := make(map[string]*time.Timer)
	fired := make(chan string)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Watcher stopped", "path", w.path)
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.relevant(event.Name) {
				continue
			}
			w.logger.Debug("Change detected", "file", event.Name, "op", event.Op.String())

			name := filepath.Clean(event.Name)
			if t, exists := pending[name]; exists {
				t.Stop()
			}
			pending[name] = time.AfterFunc(w.debounce, func() {
				select {
				case fired <- name:
				case <-w.ctx.Done():
				}
			})

		case name := <-fired:
			delete(pending, name)
			w.loadAndNotify(name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher[T]) loadAndNotify(path string) {
	value, err := w.loader(path)
	if err != nil {
		w.logger.Warn("Failed to load changed file", "file", path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.RLock()
	handlers := make([]func(T), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.mu.RUnlock()

	for _, handler := range handlers {
		handler(value)
	}
}

// NewShaderWatcher watches a shader directory and reports the name of every
// fragment shader that changes.
func NewShaderWatcher(dir string, logger *slog.Logger, opts ...WatcherOption[string]) *Watcher[string] {
	opts = append([]WatcherOption[string]{WithFilter[string](func(path string) bool {
		return filepath.Ext(path) == ".frag"
	})}, opts...)
	return NewWatcher(dir, shaderName, logger, opts...)
}

func shaderName(path string) (string, error) {
	return strings.TrimSuffix(filepath.Base(path), ".frag"), nil
}
