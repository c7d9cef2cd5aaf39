package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/logging"
	"github.com/smazurov/simstream/internal/mjpeg"
	"github.com/smazurov/simstream/internal/process"
	"github.com/smazurov/simstream/internal/version"
)

const (
	streamReadyMarker = "stream_ready"
	connectAttempts   = 10
	connectBackoff    = 500 * time.Millisecond
	defaultTokenFile  = ".simstream/token"
)

// StreamToolBackend runs simulator-server, which serves MJPEG either on its
// own stdout behind an HTTP response preamble or at a URL it announces with
// a stream_ready line.
type StreamToolBackend struct {
	cfg          StreamToolConfig
	locator      Locator
	readyTimeout time.Duration
	stopTimeout  time.Duration
	client       *http.Client
	logger       *slog.Logger
}

// NewStreamToolBackend creates the external stream tool backend.
func NewStreamToolBackend(cfg StreamToolConfig, locator Locator, readyTimeout, stopTimeout time.Duration) *StreamToolBackend {
	return &StreamToolBackend{
		cfg:          cfg,
		locator:      locator,
		readyTimeout: readyTimeout,
		stopTimeout:  stopTimeout,
		client:       &http.Client{},
		logger:       logging.GetLogger("capture").With("backend", BackendStreamTool),
	}
}

func (b *StreamToolBackend) Name() string { return BackendStreamTool }
func (b *StreamToolBackend) Mode() Mode   { return ModeExternalStreamTool }

func (b *StreamToolBackend) args(req Request) []string {
	args := []string{"ios", "--id", req.Identity}
	if b.cfg.DeviceSet != "" {
		args = append(args, "--device-set", b.cfg.DeviceSet)
	}
	return args
}

// token returns the license token from config, the configured token file,
// or ~/.simstream/token, in that order.
func (b *StreamToolBackend) token() string {
	if b.cfg.Token != "" {
		return b.cfg.Token
	}
	path := b.cfg.TokenFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		path = filepath.Join(home, defaultTokenFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// readiness is what the tool printed once it was ready to stream.
type readiness struct {
	url    string
	inline bool
	err    error
}

// Run implements Backend.
func (b *StreamToolBackend) Run(ctx context.Context, req Request, sink Sink) error {
	path, err := b.locator.Find(StreamTool)
	if err != nil {
		return err
	}
	sink.Logf(events.KindInfo, "sim-server: found at %s", path)

	proc, err := process.Start(process.Options{
		ID:     "sim-server-" + req.Identity,
		Path:   path,
		Args:   b.args(req),
		Stdin:  true,
		Logger: b.logger,
		Output: process.LineFunc(func(_, line string) {
			if line != "" {
				sink.Logf(events.KindDebug, "sim-server: %s", line)
			}
		}),
		GracefulTimeout: b.stopTimeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrToolNotFound, err)
	}
	defer proc.Stop()
	stopOnCancel := context.AfterFunc(ctx, func() { proc.Stop() })
	defer stopOnCancel()

	if token := b.token(); token != "" {
		if _, err := fmt.Fprintf(proc.Stdin(), "token %s\n", token); err != nil {
			sink.Logf(events.KindError, "sim-server: failed to send token (%v)", err)
		} else {
			sink.Logf(events.KindInfo, "sim-server: token sent via stdin")
		}
	} else {
		sink.Logf(events.KindInfo, "sim-server: no license token configured")
	}

	br := bufio.NewReaderSize(proc.Stdout(), 64<<10)
	ready := make(chan readiness, 1)
	go func() { ready <- awaitReadiness(br, sink) }()

	timer := time.NewTimer(b.readyTimeout)
	defer timer.Stop()

	var r readiness
	select {
	case r = <-ready:
	case <-timer.C:
		return fmt.Errorf("%w: sim-server not ready after %s", ErrStartupTimeout, b.readyTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if r.err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: sim-server: %w", ErrProcessExited, r.err)
	}

	if r.inline {
		sink.Logf(events.KindInfo, "sim-server: HTTP headers skipped, streaming multipart data")
		sink.Ready()
		err = pumpMJPEG(br, sink)
	} else {
		sink.Logf(events.KindInfo, "sim-server: stream_ready %s", r.url)
		err = b.streamURL(ctx, r.url, sink)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: sim-server: %w", ErrProcessExited, err)
}

// awaitReadiness reads stdout lines until either an HTTP status line (the
// multipart body follows its headers) or a stream_ready URL appears.
func awaitReadiness(br *bufio.Reader, sink Sink) readiness {
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return readiness{err: err}
		}
		line = strings.TrimRight(line, "\r\n")

		if mjpeg.IsStatusLine(line) {
			if err := mjpeg.SkipHeaders(br); err != nil {
				return readiness{err: err}
			}
			return readiness{inline: true}
		}
		if strings.Contains(line, streamReadyMarker) {
			if url := extractURL(line); url != "" {
				return readiness{url: url}
			}
		}
		if line != "" {
			sink.Logf(events.KindDebug, "sim-server: %s", line)
		}
	}
}

func extractURL(line string) string {
	start := strings.Index(line, "http://")
	if start < 0 {
		start = strings.Index(line, "https://")
	}
	if start < 0 {
		return ""
	}
	fields := strings.Fields(line[start:])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// streamURL connects to url, retrying failed connects, and decodes the
// response body until it ends.
func (b *StreamToolBackend) streamURL(ctx context.Context, url string, sink Sink) error {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		resp, err := b.get(ctx, url)
		if err == nil {
			sink.Logf(events.KindInfo, "mjpeg: connected")
			sink.Ready()
			err = pumpMJPEG(resp.Body, sink)
			resp.Body.Close()
			sink.Logf(events.KindInfo, "mjpeg: stream ended")
			return err
		}
		lastErr = err
		sink.Logf(events.KindDebug, "mjpeg: connect failed (%v)", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	return fmt.Errorf("connect to %s after %d attempts: %w", url, connectAttempts, lastErr)
}

func (b *StreamToolBackend) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp, nil
}

// pumpMJPEG decodes every part of r into a frame that keeps its JPEG bytes.
// Corrupt parts are skipped by the reader.
func pumpMJPEG(r io.Reader, sink Sink) error {
	reader := mjpeg.NewReader(r)
	reader.OnError = func(err error) {
		sink.Logf(events.KindDebug, "mjpeg: %v", err)
	}
	for {
		f, err := reader.NextFrame()
		if err != nil {
			return err
		}
		sink.Frame(f)
	}
}
