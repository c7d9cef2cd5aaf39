package capture

import (
	"context"
	"fmt"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/frame"
)

// Backend is one strategy for producing frames from a simulator.
//
// Run blocks on the caller's goroutine until the source disappears, an
// error occurs, or ctx is cancelled. Every wait inside Run is bounded or
// ctx-aware. A backend is considered working once it calls sink.Ready or
// delivers its first frame.
type Backend interface {
	Name() string
	Mode() Mode
	Run(ctx context.Context, req Request, sink Sink) error
}

// Sink receives a backend's output.
type Sink interface {
	Ready()
	Frame(f *frame.Frame)
	Logf(kind events.Kind, format string, args ...any)
}

// Dependencies are the external collaborators backends call into.
type Dependencies struct {
	Shooter Shooter
	Windows WindowSource
}

// NewBackends builds the configured backend chain in cfg.Order.
func NewBackends(cfg Config, deps Dependencies) ([]Backend, error) {
	order := cfg.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	backends := make([]Backend, 0, len(order))
	for _, name := range order {
		switch name {
		case BackendSurface:
			backends = append(backends, NewSurfaceBackend(cfg.Surface, SurfaceLocator(cfg.Surface.Path), cfg.StartupTimeout, cfg.StopTimeout))
		case BackendStreamTool:
			backends = append(backends, NewStreamToolBackend(cfg.StreamTool, StreamToolLocator(cfg.StreamTool.Path), cfg.StreamReadyTimeout, cfg.StopTimeout))
		case BackendWindow:
			windows := deps.Windows
			if windows == nil {
				windows = NewSystemWindowSource()
			}
			backends = append(backends, NewWindowBackend(windows, cfg.WindowGrace))
		case BackendScreenshot:
			if deps.Shooter == nil {
				return nil, fmt.Errorf("screenshot backend needs a simulator client")
			}
			backends = append(backends, NewScreenshotBackend(deps.Shooter, cfg.ScreenshotInterval))
		default:
			return nil, fmt.Errorf("unknown capture backend %q", name)
		}
	}
	return backends, nil
}
