package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/logging"
)

// captureLogBuffer bounds each viewer's backlog of capture log events.
const captureLogBuffer = 256

// CaptureLogInput filters the capture log stream.
type CaptureLogInput struct {
	UDID string `query:"udid" doc:"Only events for this simulator. Omit for all"`
}

// LogEntryFromLogging converts a ring buffer entry to its event form.
func LogEntryFromLogging(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
		Line:       logging.FormatLogLine(entry),
	}
}

// droppedMarker tells a slow viewer how many events it missed.
func droppedMarker(n uint64, udid string) events.LogEvent {
	return events.LogEvent{
		Kind:      events.KindError,
		Message:   fmt.Sprintf("Skipped %d log messages due to buffer overflow", n),
		Identity:  udid,
		Timestamp: events.Timestamp(time.Now()),
	}
}

// registerLogRoutes registers the capture and application log streams.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "capture-logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/stream/logs",
		Summary:     "Capture Log Stream",
		Description: "Real-time capture log lines: backend output, errors, mode changes and periodic frame counts.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEvent{},
	}, func(ctx context.Context, input *CaptureLogInput, send sse.Sender) {
		tap := events.NewTap(captureLogBuffer)
		events.Listen[events.LogEvent](s.eventBus, tap)
		defer tap.Close()

		if err := send.Data(events.LogEvent{
			Kind:      events.KindInfo,
			Message:   "log stream connected",
			Identity:  input.UDID,
			Timestamp: events.Timestamp(time.Now()),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-tap.C():
				if n := tap.TakeDropped(); n > 0 {
					if err := send.Data(droppedMarker(n, input.UDID)); err != nil {
						return
					}
				}
				le, ok := ev.(events.LogEvent)
				if !ok || (input.UDID != "" && le.Identity != input.UDID) {
					continue
				}
				if err := send.Data(le); err != nil {
					return
				}
			}
		}
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time application log streaming. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing falls between the two
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		var lastSeq uint64
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				if err := send.Data(LogEntryFromLogging(entry)); err != nil {
					return
				}
				lastSeq = entry.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if e, ok := event.(events.LogEntryEvent); ok && e.Seq != 0 && e.Seq <= lastSeq {
					continue
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
