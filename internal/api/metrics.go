package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/simstream/internal/events"
)

// MetricsStreamInput optionally narrows the metrics stream to one simulator.
type MetricsStreamInput struct {
	UDID string `query:"udid" doc:"Only report this simulator's session"`
}

func (s *Server) registerMetricsRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Session metrics stream",
		Description: "Per-session capture rate, frame and drop counts, sampled by the metrics collector",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"session-metrics": events.SessionMetricsEvent{},
	}, func(ctx context.Context, input *MetricsStreamInput, send sse.Sender) {
		tap := events.NewTap(16)
		defer tap.Close()
		events.Listen[events.SessionMetricsEvent](s.eventBus, tap)

		for {
			select {
			case <-ctx.Done():
				return
			case e := <-tap.C():
				m, ok := e.(events.SessionMetricsEvent)
				if !ok || (input.UDID != "" && m.Identity != input.UDID) {
					continue
				}
				if err := send.Data(m); err != nil {
					return
				}
			}
		}
	})
}
