package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/simstream/internal/simctl"
)

type fakeShooter struct {
	mu      sync.Mutex
	calls   int
	results []shot
}

type shot struct {
	data []byte
	err  error
}

func (f *fakeShooter) Screenshot(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return nil, errors.New("no screenshot")
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.data, r.err
}

func TestScreenshotBackendSurvivesFailures(t *testing.T) {
	img := testJPEG(t, 4, 4)
	shooter := &fakeShooter{results: []shot{
		{err: errors.New("simulator busy")},
		{data: []byte("garbage")},
		{data: img},
	}}
	b := NewScreenshotBackend(shooter, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{onFrame: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	err := b.Run(ctx, testRequest(), sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if sink.frameCount() != 2 {
		t.Errorf("frames = %d, want 2", sink.frameCount())
	}
	if !sink.logged("error: screenshot: simulator busy") {
		t.Errorf("failure not logged: %v", sink.logs)
	}
	if !sink.logged("recovered after 1 failures") {
		t.Errorf("recovery not logged: %v", sink.logs)
	}
}

func TestScreenshotBackendWithoutXcrun(t *testing.T) {
	shooter := &fakeShooter{results: []shot{{err: simctl.ErrNotInstalled}}}
	b := NewScreenshotBackend(shooter, time.Millisecond)

	err := b.Run(context.Background(), testRequest(), &recordingSink{})
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Run() error = %v, want ErrToolNotFound", err)
	}
}
