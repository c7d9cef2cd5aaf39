package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/simstream/internal/capture"
	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/logging"
	"github.com/smazurov/simstream/internal/metrics"
)

// BackendFactory builds the backend chain for a new session.
type BackendFactory func(req capture.Request) ([]capture.Backend, error)

// Close reasons reported in SessionClosedEvent.
const (
	ReasonRemoved  = "removed"
	ReasonShutdown = "shutdown"
	ReasonEnded    = "capture ended"
	ReasonNoStart  = "capture did not start"
)

// Registry maps simulator identities to their sessions. There is at most
// one session per identity. A session leaves the registry when its capture
// ends or it is removed; there is no idle expiry.
type Registry struct {
	ctx      context.Context
	backends BackendFactory
	bus      events.Publisher
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry whose captures run until ctx is done.
// bus may be nil.
func NewRegistry(ctx context.Context, backends BackendFactory, bus events.Publisher) *Registry {
	return &Registry{
		ctx:      ctx,
		backends: backends,
		bus:      bus,
		logger:   logging.GetLogger("session"),
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for identity, starting one with
// params if there is none. params of an existing session are kept. created
// reports whether this call started the returned session.
func (r *Registry) GetOrCreate(identity string, params capture.Params) (s *Session, created bool, err error) {
	if identity == "" {
		return nil, false, errors.New("empty simulator identity")
	}

	r.mu.Lock()
	existing := r.sessions[identity]
	r.mu.Unlock()
	if existing != nil && !existing.ended() {
		return existing, false, nil
	}

	req := capture.Request{Identity: identity, Params: params}
	backends, err := r.backends(req)
	if err != nil {
		return nil, false, err
	}
	candidate := newSession(identity, params, backends, r.bus)
	candidate.start(r.ctx)

	r.mu.Lock()
	if winner := r.sessions[identity]; winner != nil && winner != existing && !winner.ended() {
		r.mu.Unlock()
		r.logger.Debug("Lost session creation race", "udid", identity, "session_id", candidate.ID)
		candidate.close()
		return winner, false, nil
	}
	r.sessions[identity] = candidate
	count := len(r.sessions)
	r.mu.Unlock()

	if existing != nil {
		existing.close()
	}

	metrics.SetActiveSessions(count)
	r.logger.Info("Session created", "udid", identity, "session_id", candidate.ID, "fps", params.FPS, "quality", params.Quality)
	r.publish(events.SessionCreatedEvent{
		SessionID: candidate.ID,
		Identity:  identity,
		FPS:       params.FPS,
		Quality:   params.Quality,
		Timestamp: events.Timestamp(candidate.CreatedAt),
	})

	go r.watch(candidate)
	return candidate, true, nil
}

// watch drops s from the registry once its capture ends.
func (r *Registry) watch(s *Session) {
	<-s.Done()
	reason := ReasonEnded
	if err := s.Err(); err != nil && !errors.Is(err, context.Canceled) {
		reason = err.Error()
	}
	r.drop(s, reason)
}

// drop removes s if it is still the registered session for its identity.
func (r *Registry) drop(s *Session, reason string) bool {
	r.mu.Lock()
	if r.sessions[s.Identity] != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.Identity)
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(count)
	r.logger.Info("Session closed", "udid", s.Identity, "session_id", s.ID, "reason", reason)
	r.publish(events.SessionClosedEvent{
		SessionID: s.ID,
		Identity:  s.Identity,
		Reason:    reason,
		Timestamp: events.Timestamp(time.Now()),
	})
	return true
}

// Get returns the session for identity.
func (r *Registry) Get(identity string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[identity]
	return s, ok
}

// List returns all sessions ordered by identity.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Identity < list[j].Identity })
	return list
}

// Remove tears down the session for identity and waits for its capture
// process to exit. It reports whether a session existed.
func (r *Registry) Remove(identity string) bool {
	r.mu.Lock()
	s := r.sessions[identity]
	r.mu.Unlock()
	if s == nil {
		return false
	}

	removed := r.drop(s, ReasonRemoved)
	s.close()
	return removed
}

// Abandon tears down s when its capture never settled and no viewer is
// attached or still waiting on it. It reports whether s was removed.
func (r *Registry) Abandon(s *Session) bool {
	if !s.unclaimed() {
		return false
	}
	if !r.drop(s, ReasonNoStart) {
		return false
	}
	s.close()
	return true
}

// CloseAll tears down every session. Used on shutdown.
func (r *Registry) CloseAll() {
	for _, s := range r.List() {
		r.drop(s, ReasonShutdown)
		s.close()
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Samples reports per-session counters for the metrics collector.
func (r *Registry) Samples() []metrics.SessionSample {
	list := r.List()
	samples := make([]metrics.SessionSample, 0, len(list))
	for _, s := range list {
		info := s.Info()
		samples = append(samples, metrics.SessionSample{
			Identity: info.Identity,
			Mode:     info.Mode,
			Frames:   info.Frames,
			Dropped:  info.Dropped,
		})
	}
	return samples
}

func (r *Registry) publish(ev events.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}
