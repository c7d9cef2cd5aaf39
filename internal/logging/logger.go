package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// bufferSize is how many recent entries /api/logs/stream can replay.
const bufferSize = 1000

// Logger is the subset of *slog.Logger that process plumbing needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the global level, the output format and per-module levels.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// registry owns every module logger. Each logger has its own LevelVar so
// levels can change after the logger was handed out.
type registry struct {
	mu          sync.RWMutex
	config      Config
	initialized bool
	global      slog.LevelVar
	loggers     map[string]*slog.Logger
	levels      map[string]*slog.LevelVar
	buffer      *RingBuffer
	callback    LogCallback
}

func newRegistry() *registry {
	return &registry{
		loggers: make(map[string]*slog.Logger),
		levels:  make(map[string]*slog.LevelVar),
	}
}

var std = newRegistry()

// Initialize installs config and the output sinks. Loggers handed out
// earlier are rebuilt so they gain the journal and buffer sinks.
func Initialize(config Config) {
	r := std
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = config
	r.initialized = true
	r.buffer = NewRingBuffer(bufferSize)
	r.global.Set(levelOrDefault(config.Level, slog.LevelInfo))

	for module, lv := range r.levels {
		lv.Set(config.levelFor(module))
		r.loggers[module] = newModuleLogger(module, config.Format, lv)
	}
	slog.SetDefault(slog.New(createHandler(config.Format, &r.global)))
}

// ApplyLevels updates the global and per-module levels in place. The
// format and sinks stay as Initialize set them.
func ApplyLevels(config Config) {
	r := std
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config.Level = config.Level
	r.config.Modules = config.Modules
	r.global.Set(levelOrDefault(config.Level, slog.LevelInfo))
	for module, lv := range r.levels {
		lv.Set(r.config.levelFor(module))
	}
}

// GetBuffer returns the ring buffer of recent entries, or nil before
// Initialize.
func GetBuffer() *RingBuffer {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.buffer
}

// SetLogCallback registers fn to receive every buffered entry.
func SetLogCallback(fn LogCallback) {
	std.mu.Lock()
	std.callback = fn
	std.mu.Unlock()
}

func sinks() (*RingBuffer, LogCallback) {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.buffer, std.callback
}

// GetLogger returns the logger for module, creating it on first use.
// Every record carries module=<name>.
func GetLogger(module string) *slog.Logger {
	r := std
	r.mu.RLock()
	logger, ok := r.loggers[module]
	r.mu.RUnlock()
	if ok {
		return logger
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if logger, ok := r.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	format := "text"
	if r.initialized {
		lv.Set(r.config.levelFor(module))
		format = r.config.Format
	}
	logger = newModuleLogger(module, format, lv)
	r.loggers[module] = logger
	r.levels[module] = lv
	return logger
}

func newModuleLogger(module, format string, level slog.Leveler) *slog.Logger {
	return slog.New(createHandler(format, level)).With("module", module)
}

// levelFor resolves a module's level: its override, else the global level.
func (c Config) levelFor(module string) slog.Level {
	level := levelOrDefault(c.Level, slog.LevelInfo)
	if override, ok := c.Modules[module]; ok {
		level = levelOrDefault(override, level)
	}
	return level
}

// createHandler combines stdout (when attached), the journal (when
// listening) and the ring buffer.
func createHandler(format string, level slog.Leveler) slog.Handler {
	var handlers []slog.Handler
	if stdoutAttached() {
		opts := &slog.HandlerOptions{Level: level}
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// stdoutAttached is false when stdout is /dev/null or closed, as under
// systemd with StandardOutput=null.
func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode.IsRegular() || mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0
}

func levelOrDefault(level string, def slog.Level) slog.Level {
	if l := parseLevel(level); l != nil {
		return *l
	}
	return def
}

func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
