package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/frame"
	"github.com/smazurov/simstream/internal/logging"
	"github.com/smazurov/simstream/internal/metrics"
)

// Orchestrator runs the backend chain for one simulator. It only moves
// forward: a backend that fails or ends hands over to the next one, and
// once the last one is gone the orchestrator is exhausted.
type Orchestrator struct {
	req      Request
	backends []Backend
	queue    *frame.Queue
	bus      events.Publisher
	logger   *slog.Logger

	mode   atomic.Int32
	seq    atomic.Uint64
	frames atomic.Uint64

	mu       sync.Mutex
	state    State
	err      error
	attempts []int

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	startOnce sync.Once
	cancel    context.CancelFunc
}

// NewOrchestrator creates an orchestrator that feeds queue. bus may be nil.
func NewOrchestrator(req Request, backends []Backend, queue *frame.Queue, bus events.Publisher) *Orchestrator {
	return &Orchestrator{
		req:      req,
		backends: backends,
		queue:    queue,
		bus:      bus,
		logger:   logging.GetLogger("capture").With("udid", req.Identity),
		attempts: make([]int, len(backends)),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the capture goroutine. Calling it more than once has no effect.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		o.cancel = cancel
		go o.run(ctx)
	})
}

// Stop cancels capture and waits for the running backend to return.
func (o *Orchestrator) Stop() {
	o.startOnce.Do(func() {
		close(o.done)
	})
	if o.cancel != nil {
		o.cancel()
	}
	<-o.done
}

// Mode returns the mode of the most recently committed backend.
func (o *Orchestrator) Mode() Mode {
	return Mode(o.mode.Load())
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Ready is closed once a backend is working or every backend has failed.
func (o *Orchestrator) Ready() <-chan struct{} {
	return o.ready
}

// Done is closed when the capture goroutine has exited.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Err returns the reason capture ended, or nil while it is running.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Frames returns the number of frames handed to the queue.
func (o *Orchestrator) Frames() uint64 {
	return o.frames.Load()
}

// Attempts returns how many times each backend was run.
func (o *Orchestrator) Attempts() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.attempts...)
}

func (o *Orchestrator) run(ctx context.Context) {
	// Backends run pinned to one OS thread for their whole life.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer close(o.done)
	defer o.queue.Close()

	var last error
	for i, b := range o.backends {
		o.setState(State{Phase: PhaseTrying, Index: i})
		o.publishLog(b.Name(), events.KindInfo, fmt.Sprintf("trying %s capture", b.Mode()))
		o.logger.Debug("Trying capture backend", "backend", b.Name(), "index", i)

		sink := &backendSink{o: o, index: i, backend: b}
		err := b.Run(ctx, o.req, sink)

		if ctx.Err() != nil {
			o.finish(ctx.Err())
			o.logger.Debug("Capture stopped", "backend", b.Name())
			return
		}
		if err == nil {
			err = fmt.Errorf("%w: %s returned", ErrProcessExited, b.Name())
		}
		last = err

		if sink.committed.Load() {
			metrics.RecordBackendAttempt(b.Name(), metrics.ResultEnded)
			o.logger.Info("Capture backend ended", "backend", b.Name(), "error", err)
			o.publishLog(b.Name(), events.KindError, fmt.Sprintf("%s capture ended: %v", b.Mode(), err))
		} else {
			metrics.RecordBackendAttempt(b.Name(), metrics.ResultFailed)
			o.logger.Info("Capture backend failed", "backend", b.Name(), "error", err)
			o.publishLog(b.Name(), events.KindError, fmt.Sprintf("%s capture unavailable: %v", b.Mode(), err))
		}
	}

	if last == nil {
		last = errors.New("no capture backends configured")
	}
	exhausted := fmt.Errorf("%w: %w", ErrExhausted, last)

	o.mu.Lock()
	o.state = State{Phase: PhaseExhausted}
	o.err = exhausted
	o.mu.Unlock()

	metrics.RecordExhausted()
	o.logger.Error("All capture backends failed", "error", last)
	o.publishLog("", events.KindError, exhausted.Error())
	o.publishMode()
	o.readyOnce.Do(func() { close(o.ready) })
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	if s.Phase == PhaseTrying {
		o.attempts[s.Index]++
	}
	o.mu.Unlock()
}

func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	if o.err == nil {
		o.err = err
	}
	o.mu.Unlock()
}

// commit marks backend index as the working one.
func (o *Orchestrator) commit(index int, b Backend) {
	o.mu.Lock()
	o.state = State{Phase: PhaseActive, Index: index}
	o.mu.Unlock()
	o.mode.Store(int32(b.Mode()))

	metrics.RecordBackendAttempt(b.Name(), metrics.ResultActive)
	o.logger.Info("Capture backend active", "backend", b.Name(), "mode", b.Mode().String())
	o.publishLog(b.Name(), events.KindInfo, fmt.Sprintf("capture mode: %s", b.Mode()))
	o.publishMode()
	o.readyOnce.Do(func() { close(o.ready) })
}

func (o *Orchestrator) publishMode() {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.ModeChangedEvent{
		Identity:  o.req.Identity,
		Mode:      o.Mode().String(),
		State:     o.State().String(),
		Timestamp: events.Timestamp(time.Now()),
	})
}

func (o *Orchestrator) publishLog(backend string, kind events.Kind, msg string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.LogEvent{
		Kind:      kind,
		Message:   msg,
		Identity:  o.req.Identity,
		Backend:   backend,
		Timestamp: events.Timestamp(time.Now()),
	})
}

// backendSink is the Sink handed to one backend run.
type backendSink struct {
	o       *Orchestrator
	index   int
	backend Backend

	once      sync.Once
	committed atomic.Bool
	frames    atomic.Uint64
}

func (s *backendSink) Ready() {
	s.once.Do(func() {
		s.committed.Store(true)
		s.o.commit(s.index, s.backend)
	})
}

func (s *backendSink) Frame(f *frame.Frame) {
	s.Ready()

	f.Seq = s.o.seq.Add(1)
	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}
	s.o.queue.Offer(f)
	s.o.frames.Add(1)
	metrics.AddFrame(s.backend.Name())

	n := s.frames.Add(1)
	every := uint64(max(s.o.req.FPS, 1))
	if n%every == 0 && s.o.bus != nil {
		s.o.bus.Publish(events.LogEvent{
			Kind:        events.KindFrame,
			Message:     fmt.Sprintf("frame %d (%dx%d)", n, f.Width, f.Height),
			Identity:    s.o.req.Identity,
			Backend:     s.backend.Name(),
			FrameNumber: n,
			Timestamp:   events.Timestamp(f.CapturedAt),
		})
	}
}

func (s *backendSink) Logf(kind events.Kind, format string, args ...any) {
	s.o.publishLog(s.backend.Name(), kind, fmt.Sprintf(format, args...))
}
