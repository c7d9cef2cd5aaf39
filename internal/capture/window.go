package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/frame"
	"github.com/smazurov/simstream/internal/logging"
)

const (
	simulatorOwner  = "Simulator"
	minUnnamedArea  = 100
	windowTick      = 33 * time.Millisecond
	windowReresolve = time.Second
)

// Window is one on-screen window as reported by the window server.
type Window struct {
	ID     int     `json:"id"`
	Owner  string  `json:"owner"`
	Name   string  `json:"name"`
	Layer  int     `json:"layer"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (w Window) area() float64 {
	return w.Width * w.Height
}

// WindowSource lists windows and grabs a single window's image.
type WindowSource interface {
	Windows(ctx context.Context) ([]Window, error)
	Capture(ctx context.Context, w Window) ([]byte, error)
}

// selectWindow picks the largest normal-layer window owned by the simulator
// app. Unnamed windows smaller than minUnnamedArea are helper surfaces and
// are skipped.
func selectWindow(windows []Window) (Window, bool) {
	var best Window
	found := false
	for _, w := range windows {
		if w.Owner != simulatorOwner || w.Layer != 0 {
			continue
		}
		a := w.area()
		if a <= 0 {
			continue
		}
		if w.Name == "" && a < minUnnamedArea {
			continue
		}
		if !found || a > best.area() {
			best = w
			found = true
		}
	}
	return best, found
}

// parseWindowList decodes the JSON window list printed by the lister script.
func parseWindowList(data []byte) ([]Window, error) {
	var windows []Window
	if err := json.Unmarshal(data, &windows); err != nil {
		return nil, fmt.Errorf("parse window list: %w", err)
	}
	return windows, nil
}

// WindowBackend captures the simulator's on-screen window at a fixed tick.
type WindowBackend struct {
	source    WindowSource
	grace     time.Duration
	reresolve time.Duration
	logger    *slog.Logger
}

// NewWindowBackend creates the window capture backend. Run gives up with
// ErrNoTarget when no window is found within grace, or when a window that
// was being captured stays gone for grace.
func NewWindowBackend(source WindowSource, grace time.Duration) *WindowBackend {
	return &WindowBackend{
		source:    source,
		grace:     grace,
		reresolve: windowReresolve,
		logger:    logging.GetLogger("capture").With("backend", BackendWindow),
	}
}

func (b *WindowBackend) Name() string { return BackendWindow }
func (b *WindowBackend) Mode() Mode   { return ModeWindowCapture }

// Run implements Backend. The window list is queried at most once per
// reresolve interval, whether or not a target is currently known.
func (b *WindowBackend) Run(ctx context.Context, _ Request, sink Sink) error {
	started := time.Now()
	ticker := time.NewTicker(windowTick)
	defer ticker.Stop()

	var (
		target     Window
		haveTarget bool
		everFound  bool
		resolvedAt time.Time
		lostAt     time.Time
		missLogged bool
	)

	for {
		now := time.Now()
		if resolvedAt.IsZero() || now.Sub(resolvedAt) >= b.reresolve {
			resolvedAt = now
			windows, err := b.source.Windows(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if !everFound {
					return err
				}
				sink.Logf(events.KindDebug, "window: list failed (%v)", err)
			}

			prev := target
			target, haveTarget = selectWindow(windows)
			switch {
			case haveTarget && (!everFound || prev.ID != target.ID || missLogged):
				sink.Logf(events.KindInfo, "window: capturing window %d (%.0fx%.0f)", target.ID, target.Width, target.Height)
				everFound = true
				missLogged = false
			case !haveTarget && !missLogged:
				sink.Logf(events.KindInfo, "window: no target")
				missLogged = true
			}
		}

		switch {
		case haveTarget:
			lostAt = time.Time{}
		case !everFound:
			if time.Since(started) >= b.grace {
				return fmt.Errorf("%w: no simulator window after %s", ErrNoTarget, b.grace)
			}
		default:
			if lostAt.IsZero() {
				lostAt = now
			}
			if time.Since(lostAt) >= b.grace {
				return fmt.Errorf("%w: simulator window gone for %s", ErrNoTarget, b.grace)
			}
		}

		if haveTarget {
			if err := b.grab(ctx, target, sink); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				b.logger.Debug("Window capture failed", "window", target.ID, "error", err)
				sink.Logf(events.KindDebug, "window: capture failed (%v)", err)
				haveTarget = false
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *WindowBackend) grab(ctx context.Context, w Window, sink Sink) error {
	data, err := b.source.Capture(ctx, w)
	if err != nil {
		return err
	}
	f, err := frame.Decode(data)
	if err != nil {
		return err
	}
	sink.Frame(f)
	return nil
}
