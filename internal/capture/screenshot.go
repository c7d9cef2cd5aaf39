package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/frame"
	"github.com/smazurov/simstream/internal/logging"
	"github.com/smazurov/simstream/internal/simctl"
)

// Shooter takes a single screenshot of a simulator.
type Shooter interface {
	Screenshot(ctx context.Context, udid string) ([]byte, error)
}

// ScreenshotBackend polls simulator screenshots. It is the last resort and
// keeps going through individual failures.
type ScreenshotBackend struct {
	shooter  Shooter
	interval time.Duration
	logger   *slog.Logger
}

func NewScreenshotBackend(shooter Shooter, interval time.Duration) *ScreenshotBackend {
	return &ScreenshotBackend{
		shooter:  shooter,
		interval: interval,
		logger:   logging.GetLogger("capture").With("backend", BackendScreenshot),
	}
}

func (b *ScreenshotBackend) Name() string { return BackendScreenshot }
func (b *ScreenshotBackend) Mode() Mode   { return ModeScreenshotPoll }

// Run implements Backend.
func (b *ScreenshotBackend) Run(ctx context.Context, req Request, sink Sink) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	failures := 0
	for {
		data, err := b.shooter.Screenshot(ctx, req.Identity)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, simctl.ErrNotInstalled):
			return fmt.Errorf("%w: %w", ErrToolNotFound, err)
		case err != nil:
			failures++
			b.logger.Debug("Screenshot failed", "udid", req.Identity, "failures", failures, "error", err)
			if failures == 1 || failures%25 == 0 {
				sink.Logf(events.KindError, "screenshot: %v", err)
			}
		default:
			f, err := frame.Decode(data)
			if err != nil {
				sink.Logf(events.KindDebug, "screenshot: %v", err)
				break
			}
			if failures > 0 {
				sink.Logf(events.KindInfo, "screenshot: recovered after %d failures", failures)
				failures = 0
			}
			sink.Frame(f)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
