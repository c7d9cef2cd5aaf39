package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/frame"
	"github.com/smazurov/simstream/internal/logging"
	"github.com/smazurov/simstream/internal/process"
)

// SurfaceBackend mounts the simulator's framebuffer through fbsimctl and
// slices its raw BGRA output into frames.
type SurfaceBackend struct {
	cfg            SurfaceConfig
	locator        Locator
	startupTimeout time.Duration
	stopTimeout    time.Duration
	logger         *slog.Logger
}

// NewSurfaceBackend creates the native surface backend.
func NewSurfaceBackend(cfg SurfaceConfig, locator Locator, startupTimeout, stopTimeout time.Duration) *SurfaceBackend {
	return &SurfaceBackend{
		cfg:            cfg,
		locator:        locator,
		startupTimeout: startupTimeout,
		stopTimeout:    stopTimeout,
		logger:         logging.GetLogger("capture").With("backend", BackendSurface),
	}
}

func (b *SurfaceBackend) Name() string { return BackendSurface }
func (b *SurfaceBackend) Mode() Mode   { return ModeNativeSurface }

func (b *SurfaceBackend) args(req Request) []string {
	var args []string
	if b.cfg.Debug {
		args = append(args, "--debug-logging")
	}
	return append(args, req.Identity, "stream", "--bgra", "--fps", strconv.Itoa(req.FPS), "-")
}

// Run implements Backend.
func (b *SurfaceBackend) Run(ctx context.Context, req Request, sink Sink) error {
	path, err := b.locator.Find(SurfaceTool)
	if err != nil {
		return err
	}
	sink.Logf(events.KindInfo, "fbsimctl: found at %s", path)

	banner := make(chan SurfaceDescriptor, 1)
	var parser bannerParser
	onLine := func(_, line string) {
		desc, ok, consumed := parser.Feed(line)
		switch {
		case ok:
			sink.Logf(events.KindInfo, "fbsimctl: stream attributes %s", desc)
			select {
			case banner <- desc:
			default:
			}
		case consumed:
		case line != "":
			sink.Logf(events.KindDebug, "fbsimctl: %s", line)
		}
	}

	proc, err := process.Start(process.Options{
		ID:              "fbsimctl-" + req.Identity,
		Path:            path,
		Args:            b.args(req),
		Logger:          b.logger,
		Output:          process.LineFunc(onLine),
		GracefulTimeout: b.stopTimeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrToolNotFound, err)
	}
	defer proc.Stop()
	stopOnCancel := context.AfterFunc(ctx, func() { proc.Stop() })
	defer stopOnCancel()

	timer := time.NewTimer(b.startupTimeout)
	defer timer.Stop()

	var desc SurfaceDescriptor
	select {
	case desc = <-banner:
	case <-proc.Done():
		return fmt.Errorf("%w: fbsimctl exited with %d before announcing its surface", ErrProcessExited, proc.ExitCode())
	case <-timer.C:
		return fmt.Errorf("%w: no surface attributes from fbsimctl after %s", ErrStartupTimeout, b.startupTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := desc.Validate(); err != nil {
		return err
	}
	sink.Ready()

	err = readSurface(proc.Stdout(), desc, sink)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	proc.Stop()
	sink.Logf(events.KindInfo, "fbsimctl: exited with %d", proc.ExitCode())
	return fmt.Errorf("%w: fbsimctl: %w", ErrProcessExited, err)
}

// readSurface slices r into FrameSize chunks until it fails. Each chunk is
// de-strided into a packed RGBA frame. A short final chunk is discarded.
func readSurface(r io.Reader, desc SurfaceDescriptor, sink Sink) error {
	geom := desc.Geometry()
	buf := make([]byte, desc.FrameSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return io.EOF
			}
			return err
		}
		f, err := frame.FromStrided(buf, geom, frame.OrderBGRA)
		if err != nil {
			return err
		}
		sink.Frame(f)
	}
}
