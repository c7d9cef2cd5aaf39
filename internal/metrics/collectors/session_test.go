package collectors

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/simstream/internal/metrics"
)

type fakeSource struct {
	mu      sync.Mutex
	samples []metrics.SessionSample
}

func (f *fakeSource) Samples() []metrics.SessionSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]metrics.SessionSample(nil), f.samples...)
}

func (f *fakeSource) set(samples ...metrics.SessionSample) {
	f.mu.Lock()
	f.samples = samples
	f.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionCollectorComputesFPS(t *testing.T) {
	udid := "collector-fps-sim"
	src := &fakeSource{}
	c := NewSessionCollector(src, testLogger())
	defer c.Stop()

	start := time.Unix(1000, 0)
	src.set(metrics.SessionSample{Identity: udid, Mode: "window", Frames: 100, Dropped: 1})
	c.collect(start)

	if m := metrics.GetSessionMetrics(udid); m == nil || m.FPS != 0 || m.Frames != 100 {
		t.Fatalf("first sample = %+v, want fps 0 frames 100", m)
	}

	src.set(metrics.SessionSample{Identity: udid, Mode: "window", Frames: 160, Dropped: 4})
	c.collect(start.Add(2 * time.Second))

	m := metrics.GetSessionMetrics(udid)
	if m == nil {
		t.Fatal("metrics missing after second sample")
	}
	if m.FPS != 30 {
		t.Errorf("FPS = %v, want 30", m.FPS)
	}
	if m.Dropped != 4 || m.Mode != "window" {
		t.Errorf("metrics = %+v", m)
	}
}

func TestSessionCollectorRemovesGoneSessions(t *testing.T) {
	udid := "collector-gone-sim"
	src := &fakeSource{}
	c := NewSessionCollector(src, testLogger())
	defer c.Stop()

	src.set(metrics.SessionSample{Identity: udid, Frames: 1})
	c.collect(time.Now())
	if metrics.GetSessionMetrics(udid) == nil {
		t.Fatal("expected metrics for live session")
	}

	src.set()
	c.collect(time.Now())
	if metrics.GetSessionMetrics(udid) != nil {
		t.Error("expected metrics removed for gone session")
	}
}

func TestSessionCollectorStartStop(t *testing.T) {
	udid := "collector-loop-sim"
	src := &fakeSource{}
	src.set(metrics.SessionSample{Identity: udid, Frames: 5})

	c := NewSessionCollector(src, testLogger())
	c.interval = 10 * time.Millisecond
	if err := c.Start(t.Context()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for metrics.GetSessionMetrics(udid) == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if metrics.GetSessionMetrics(udid) == nil {
		t.Fatal("collector never sampled")
	}

	c.Stop()
	c.Stop()
	if metrics.GetSessionMetrics(udid) != nil {
		t.Error("Stop should remove sampled session metrics")
	}
}
