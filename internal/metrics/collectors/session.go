// Package collectors turns live session counters into metrics.
package collectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/simstream/internal/metrics"
)

// Source lists the sessions to sample.
type Source interface {
	Samples() []metrics.SessionSample
}

type reading struct {
	frames uint64
	at     time.Time
}

// SessionCollector samples session counters at a fixed interval and derives
// the capture frame rate from the frame count delta.
type SessionCollector struct {
	logger   *slog.Logger
	source   Source
	interval time.Duration
	prev     map[string]reading

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSessionCollector creates a collector reading from source.
func NewSessionCollector(source Source, logger *slog.Logger) *SessionCollector {
	return &SessionCollector{
		logger:   logger,
		source:   source,
		interval: time.Second,
		prev:     make(map[string]reading),
	}
}

// SetInterval changes the sampling interval. Call before Start.
func (c *SessionCollector) SetInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// Start begins sampling.
func (c *SessionCollector) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop stops sampling and removes the metrics of every sampled session.
func (c *SessionCollector) Stop() error {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		for udid := range c.prev {
			metrics.DeleteSessionMetrics(udid)
		}
		c.prev = make(map[string]reading)
	})
	return nil
}

func (c *SessionCollector) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			c.collect(now)
		}
	}
}

func (c *SessionCollector) collect(now time.Time) {
	seen := make(map[string]bool)
	for _, s := range c.source.Samples() {
		seen[s.Identity] = true

		var fps float64
		if prev, ok := c.prev[s.Identity]; ok && s.Frames >= prev.frames {
			if elapsed := now.Sub(prev.at).Seconds(); elapsed > 0 {
				fps = float64(s.Frames-prev.frames) / elapsed
			}
		}
		c.prev[s.Identity] = reading{frames: s.Frames, at: now}

		metrics.SetSessionMetrics(s.Identity, metrics.SessionMetrics{
			Mode:    s.Mode,
			FPS:     fps,
			Frames:  s.Frames,
			Dropped: s.Dropped,
		})
	}

	for udid := range c.prev {
		if !seen[udid] {
			c.logger.Debug("Session gone, removing metrics", "udid", udid)
			delete(c.prev, udid)
			metrics.DeleteSessionMetrics(udid)
		}
	}
}
