// Package session keeps one capture session per simulator and hands its
// frames to a single live consumer.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/simstream/internal/capture"
	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/frame"
)

var (
	// ErrDisplaced is the cause reported to a consumer replaced by a newer attach.
	ErrDisplaced = errors.New("consumer displaced by a newer viewer")
	// ErrClosed is reported once the session has been torn down.
	ErrClosed = errors.New("session closed")
	// ErrStartTimeout is returned when no backend settled within the wait.
	ErrStartTimeout = errors.New("capture did not start in time")
)

// Session is a running capture for one simulator.
type Session struct {
	ID        string
	Identity  string
	Params    capture.Params
	CreatedAt time.Time

	orch  *capture.Orchestrator
	queue *frame.Queue

	mu       sync.Mutex
	consumer *Consumer
	waiters  int
	closed   bool
}

// Info is a point-in-time view of a session.
type Info struct {
	ID        string
	Identity  string
	Mode      string
	State     string
	FPS       int
	Quality   float64
	Frames    uint64
	Dropped   uint64
	Attached  bool
	CreatedAt time.Time
}

func newSession(identity string, params capture.Params, backends []capture.Backend, bus events.Publisher) *Session {
	queue := frame.NewQueue()
	req := capture.Request{Identity: identity, Params: params}
	return &Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		Params:    params,
		CreatedAt: time.Now(),
		orch:      capture.NewOrchestrator(req, backends, queue, bus),
		queue:     queue,
	}
}

// Mode returns the current capture mode.
func (s *Session) Mode() capture.Mode {
	return s.orch.Mode()
}

// State returns the orchestrator state.
func (s *Session) State() capture.State {
	return s.orch.State()
}

// Err returns why capture ended, or nil while it runs.
func (s *Session) Err() error {
	return s.orch.Err()
}

// Done is closed when capture has ended.
func (s *Session) Done() <-chan struct{} {
	return s.orch.Done()
}

func (s *Session) ended() bool {
	select {
	case <-s.orch.Done():
		return true
	default:
		return false
	}
}

// WaitStarted blocks until a backend is working or every backend failed.
// Exhaustion returns the orchestrator error, which wraps capture.ErrExhausted.
func (s *Session) WaitStarted(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	s.waiters++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.waiters--
		s.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.orch.Ready():
	case <-s.orch.Done():
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrStartTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.orch.State().Phase == capture.PhaseExhausted {
		return s.orch.Err()
	}
	if s.ended() {
		if err := s.orch.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}
		return ErrClosed
	}
	return nil
}

// Attach claims the consumer slot. A consumer already attached is
// displaced and its Done channel closes.
func (s *Session) Attach() (*Consumer, error) {
	ctx, cancel := context.WithCancelCause(context.Background())
	c := &Consumer{session: s, ctx: ctx, cancel: cancel}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel(ErrClosed)
		return nil, ErrClosed
	}
	prev := s.consumer
	s.consumer = c
	s.mu.Unlock()

	if prev != nil {
		prev.cancel(ErrDisplaced)
	}
	return c, nil
}

// unclaimed reports whether capture has not settled and nobody is
// attached or waiting for it.
func (s *Session) unclaimed() bool {
	select {
	case <-s.orch.Ready():
		return false
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumer == nil && s.waiters == 0
}

func (s *Session) detach(c *Consumer) {
	s.mu.Lock()
	if s.consumer == c {
		s.consumer = nil
	}
	s.mu.Unlock()
}

// Info reports the session's current state.
func (s *Session) Info() Info {
	s.mu.Lock()
	attached := s.consumer != nil
	s.mu.Unlock()

	stats := s.queue.Stats()
	return Info{
		ID:        s.ID,
		Identity:  s.Identity,
		Mode:      s.orch.Mode().String(),
		State:     s.orch.State().String(),
		FPS:       s.Params.FPS,
		Quality:   s.Params.Quality,
		Frames:    s.orch.Frames(),
		Dropped:   stats.Dropped,
		Attached:  attached,
		CreatedAt: s.CreatedAt,
	}
}

func (s *Session) start(ctx context.Context) {
	s.orch.Start(ctx)
}

// close stops capture and releases the consumer. It blocks until the
// capture process has been reaped.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	c := s.consumer
	s.consumer = nil
	s.mu.Unlock()

	if c != nil {
		c.cancel(ErrClosed)
	}
	s.orch.Stop()
}

// Consumer is the single viewer currently reading a session's frames.
type Consumer struct {
	session *Session
	ctx     context.Context
	cancel  context.CancelCauseFunc
}

// Done is closed when the consumer is displaced, released, or the session closes.
func (c *Consumer) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Err returns why the consumer was stopped.
func (c *Consumer) Err() error {
	return context.Cause(c.ctx)
}

// Next waits for the newest frame.
func (c *Consumer) Next(ctx context.Context) (*frame.Frame, error) {
	if c.ctx.Err() != nil {
		return nil, context.Cause(c.ctx)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	f, err := c.session.queue.Next(ctx)
	if err != nil {
		if c.ctx.Err() != nil {
			return nil, context.Cause(c.ctx)
		}
		if errors.Is(err, frame.ErrClosed) {
			if cause := c.session.Err(); cause != nil {
				return nil, fmt.Errorf("%w: %w", ErrClosed, cause)
			}
			return nil, ErrClosed
		}
		return nil, err
	}
	return f, nil
}

// Release gives up the consumer slot.
func (c *Consumer) Release() {
	c.session.detach(c)
	c.cancel(context.Canceled)
}
