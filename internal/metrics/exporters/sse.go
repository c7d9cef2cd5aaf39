package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/metrics"
)

// SSEExporter publishes session metrics on the event bus at a fixed interval.
type SSEExporter struct {
	eventBus events.Publisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus events.Publisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// SetInterval changes how often metrics are published. Call before Start.
func (s *SSEExporter) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start begins the export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	now := events.Timestamp(time.Now())
	for udid, m := range metrics.GetAllSessionMetrics() {
		s.eventBus.Publish(events.SessionMetricsEvent{
			Identity:  udid,
			Mode:      m.Mode,
			FPS:       strconv.FormatFloat(m.FPS, 'f', 2, 64),
			Frames:    strconv.FormatUint(m.Frames, 10),
			Dropped:   strconv.FormatUint(m.Dropped, 10),
			Timestamp: now,
		})
	}
}
