package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 1500 * time.Millisecond

// Watcher reloads a config file when it changes and passes the new value to
// every handler. The parent directory is watched, so editors that save by
// renaming a temp file over the original are seen too.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[int]func(T)
	nextID   int
	fs       *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup

	reloadMu sync.Mutex // serializes loader runs
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets the quiet period before a reload. Default is 1500ms.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) { w.debounce = d }
}

// WithErrorHandler sets a callback for load errors. Errors are always logged.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) { w.onError = handler }
}

// NewConfigWatcher creates a watcher for path. loader runs on every change.
func NewConfigWatcher[T any](
	path string,
	loader func(path string) (T, error),
	logger *slog.Logger,
	opts ...WatcherOption[T],
) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: defaultDebounce,
		loader:   loader,
		logger:   logger,
		handlers: make(map[int]func(T)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers a handler and returns a function that removes it.
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

// Start begins watching the file's directory.
func (w *Watcher[T]) Start() error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fs.Add(filepath.Dir(w.path)); err != nil {
		fs.Close()
		return err
	}

	w.mu.Lock()
	w.fs = fs
	w.mu.Unlock()

	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	w.wg.Add(1)
	go w.run(fs)
	return nil
}

// Stop ends watching and waits for the loop. No handler runs after Stop
// returns. Stop may be called more than once.
func (w *Watcher[T]) Stop() error {
	w.mu.Lock()
	fs := w.fs
	w.fs = nil
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	w.mu.Unlock()

	if fs == nil {
		return nil
	}
	err := fs.Close()
	w.wg.Wait()
	return err
}

// Reload loads the file now and notifies handlers, as if it had changed.
func (w *Watcher[T]) Reload() {
	select {
	case <-w.done:
		return
	default:
	}
	w.reload()
}

// relevant reports whether ev touches the watched file in a way that may
// change its content.
func (w *Watcher[T]) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher[T]) run(fs *fsnotify.Watcher) {
	defer w.wg.Done()

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-w.done:
			w.logger.Debug("Config watcher stopped")
			return
		case ev, ok := <-fs.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				w.logger.Debug("Config file change detected", "op", ev.Op.String())
				settle.Reset(w.debounce)
			}
		case <-settle.C:
			select {
			case <-w.done:
				return
			default:
			}
			w.logger.Info("Config file changed, reloading", "path", w.path)
			w.reload()
		case err, ok := <-fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher[T]) reload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	value, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Failed to load config", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	handlers := make([]func(T), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	for _, h := range handlers {
		h(value)
	}
}
