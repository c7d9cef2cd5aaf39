package capture

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/frame"
)

// fakeBackend fails, or produces frames until its source ends or ctx is done.
type fakeBackend struct {
	name   string
	mode   Mode
	fail   error
	frames int
	// endAfterFrames makes Run return once frames have been sent.
	endAfterFrames bool

	mu   sync.Mutex
	runs int
}

func (b *fakeBackend) Name() string { return b.name }
func (b *fakeBackend) Mode() Mode   { return b.mode }

func (b *fakeBackend) Run(ctx context.Context, _ Request, sink Sink) error {
	b.mu.Lock()
	b.runs++
	b.mu.Unlock()

	if b.fail != nil {
		sink.Logf(events.KindError, "%s: %v", b.name, b.fail)
		return b.fail
	}
	for i := 0; i < b.frames; i++ {
		f, _ := frame.New(1, 1, []byte{1, 2, 3, 255})
		sink.Frame(f)
	}
	if b.endAfterFrames {
		return ErrProcessExited
	}
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBackend) Runs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingBus) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingBus) modes() []events.ModeChangedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.ModeChangedEvent
	for _, ev := range r.events {
		if m, ok := ev.(events.ModeChangedEvent); ok {
			out = append(out, m)
		}
	}
	return out
}

func waitReady(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case <-o.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for orchestrator to settle")
	}
}

func testRequest() Request {
	return Request{Identity: "sim-1", Params: ClampParams(0, 0)}
}

func TestOrchestratorFallsThroughToWorkingBackend(t *testing.T) {
	surface := &fakeBackend{name: "surface", mode: ModeNativeSurface, fail: ErrToolNotFound}
	tool := &fakeBackend{name: "stream-tool", mode: ModeExternalStreamTool, fail: ErrStartupTimeout}
	window := &fakeBackend{name: "window", mode: ModeWindowCapture, frames: 1}

	bus := &recordingBus{}
	queue := frame.NewQueue()
	o := NewOrchestrator(testRequest(), []Backend{surface, tool, window}, queue, bus)
	if o.Mode() != ModeUnstarted {
		t.Fatalf("initial mode = %v, want unstarted", o.Mode())
	}

	o.Start(context.Background())
	defer o.Stop()
	waitReady(t, o)

	if got := o.State(); got != (State{Phase: PhaseActive, Index: 2}) {
		t.Errorf("state = %v, want active(2)", got)
	}
	if o.Mode() != ModeWindowCapture {
		t.Errorf("mode = %v, want window", o.Mode())
	}
	if got := o.Attempts(); got[0] != 1 || got[1] != 1 || got[2] != 1 {
		t.Errorf("attempts = %v, want [1 1 1]", got)
	}

	f, err := queue.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if f.Seq != 1 {
		t.Errorf("seq = %d, want 1", f.Seq)
	}

	modes := bus.modes()
	if len(modes) != 1 || modes[0].Mode != "window" || modes[0].State != "active(2)" {
		t.Errorf("mode events = %+v", modes)
	}
}

func TestOrchestratorExhausted(t *testing.T) {
	cause := errors.New("xcrun missing")
	backends := []Backend{
		&fakeBackend{name: "a", mode: ModeNativeSurface, fail: ErrToolNotFound},
		&fakeBackend{name: "b", mode: ModeScreenshotPoll, fail: cause},
	}
	queue := frame.NewQueue()
	o := NewOrchestrator(testRequest(), backends, queue, nil)
	o.Start(context.Background())
	waitReady(t, o)
	<-o.Done()

	if o.State().Phase != PhaseExhausted {
		t.Errorf("state = %v, want exhausted", o.State())
	}
	err := o.Err()
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, cause) {
		t.Errorf("Err() = %v, want ErrExhausted wrapping the last cause", err)
	}
	if o.Mode() != ModeUnstarted {
		t.Errorf("mode = %v, want unstarted", o.Mode())
	}

	if _, err := queue.Next(context.Background()); !errors.Is(err, frame.ErrClosed) {
		t.Errorf("queue.Next() error = %v, want ErrClosed", err)
	}
	o.Stop()
}

func TestOrchestratorNeverRetriesEndedBackend(t *testing.T) {
	surface := &fakeBackend{name: "surface", mode: ModeNativeSurface, frames: 3, endAfterFrames: true}
	shots := &fakeBackend{name: "screenshot", mode: ModeScreenshotPoll, frames: 1}

	bus := &recordingBus{}
	queue := frame.NewQueue()
	o := NewOrchestrator(testRequest(), []Backend{surface, shots}, queue, bus)
	o.Start(context.Background())
	defer o.Stop()

	deadline := time.After(2 * time.Second)
	for o.Frames() < 4 {
		select {
		case <-deadline:
			t.Fatalf("frames = %d, want 4", o.Frames())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := o.State(); got != (State{Phase: PhaseActive, Index: 1}) {
		t.Errorf("state = %v, want active(1)", got)
	}
	if surface.Runs() != 1 || shots.Runs() != 1 {
		t.Errorf("runs = %d, %d, want 1, 1", surface.Runs(), shots.Runs())
	}
	if o.Mode() != ModeScreenshotPoll {
		t.Errorf("mode = %v, want screenshot", o.Mode())
	}
	f := queue.Latest()
	if f == nil || f.Seq != 4 {
		t.Errorf("latest frame = %+v, want seq 4", f)
	}

	modes := bus.modes()
	if len(modes) != 2 || modes[0].Mode != "native-surface" || modes[1].Mode != "screenshot" {
		t.Errorf("mode events = %+v", modes)
	}
}

func TestOrchestratorStop(t *testing.T) {
	b := &fakeBackend{name: "screenshot", mode: ModeScreenshotPoll, frames: 1}
	o := NewOrchestrator(testRequest(), []Backend{b}, frame.NewQueue(), nil)
	o.Start(context.Background())
	waitReady(t, o)

	done := make(chan struct{})
	go func() {
		o.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
	if !errors.Is(o.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", o.Err())
	}
	if o.State().Phase != PhaseActive {
		t.Errorf("state after stop = %v, want active", o.State())
	}
}

func TestOrchestratorStopBeforeStart(_ *testing.T) {
	o := NewOrchestrator(testRequest(), nil, frame.NewQueue(), nil)
	o.Stop()
	o.Start(context.Background())
}

func TestCaptureFrame(t *testing.T) {
	backends := []Backend{
		&fakeBackend{name: "surface", mode: ModeNativeSurface, fail: ErrToolNotFound},
		&fakeBackend{name: "screenshot", mode: ModeScreenshotPoll, frames: 1},
	}
	f, err := CaptureFrame(context.Background(), testRequest(), backends, time.Second)
	if err != nil {
		t.Fatalf("CaptureFrame() error = %v", err)
	}
	if f.Width != 1 || f.Height != 1 {
		t.Errorf("frame = %dx%d", f.Width, f.Height)
	}
}

func TestCaptureFrameExhausted(t *testing.T) {
	backends := []Backend{&fakeBackend{name: "surface", mode: ModeNativeSurface, fail: ErrToolNotFound}}
	_, err := CaptureFrame(context.Background(), testRequest(), backends, time.Second)
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, ErrToolNotFound) {
		t.Errorf("CaptureFrame() error = %v", err)
	}
}

func TestCaptureToFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "shots", "sim-1.jpg")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(out, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	backends := []Backend{&fakeBackend{name: "screenshot", mode: ModeScreenshotPoll, frames: 1}}
	if err := CaptureToFile(context.Background(), testRequest(), backends, time.Second, out); err != nil {
		t.Fatalf("CaptureToFile() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("output is not a JPEG: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(out))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want only the image", names)
	}
}

func TestCaptureToFileLeavesOldFileOnFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sim-1.jpg")
	if err := os.WriteFile(out, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	backends := []Backend{&fakeBackend{name: "surface", mode: ModeNativeSurface, fail: ErrToolNotFound}}
	if err := CaptureToFile(context.Background(), testRequest(), backends, time.Second, out); err == nil {
		t.Fatal("expected an error")
	}
	if data, _ := os.ReadFile(out); string(data) != "previous" {
		t.Errorf("file = %q, want untouched", data)
	}
}
