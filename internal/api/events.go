package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/simstream/internal/events"
)

// registerSSERoutes registers the session lifecycle event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Session lifecycle stream",
		Description: "Real-time session lifecycle and capture mode changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"session-created": events.SessionCreatedEvent{},
		"session-closed":  events.SessionClosedEvent{},
		"mode-changed":    events.ModeChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		tap := events.NewTap(32)
		defer tap.Close()
		events.Listen[events.SessionCreatedEvent](s.eventBus, tap)
		events.Listen[events.SessionClosedEvent](s.eventBus, tap)
		events.Listen[events.ModeChangedEvent](s.eventBus, tap)

		// Current state first so a new client needs no extra request
		for _, sess := range s.registry.List() {
			info := sess.Info()
			if err := send.Data(events.ModeChangedEvent{
				Identity:  info.Identity,
				Mode:      info.Mode,
				State:     info.State,
				Timestamp: events.Timestamp(time.Now()),
			}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-tap.C():
				if n := tap.TakeDropped(); n > 0 {
					s.logger.Warn("Lifecycle events dropped for slow viewer", "count", n)
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
