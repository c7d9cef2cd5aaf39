package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"
	"testing"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/frame"
)

// recordingSink collects everything a backend reports.
type recordingSink struct {
	mu     sync.Mutex
	ready  int
	frames []*frame.Frame
	logs   []string
	// onFrame runs after each recorded frame.
	onFrame func(n int)
}

func (s *recordingSink) Ready() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready++
}

func (s *recordingSink) Frame(f *frame.Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	n := len(s.frames)
	cb := s.onFrame
	s.mu.Unlock()
	if cb != nil {
		cb(n)
	}
}

func (s *recordingSink) Logf(kind events.Kind, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, string(kind)+": "+fmt.Sprintf(format, args...))
}

func (s *recordingSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSink) logged(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// testJPEG encodes a solid w x h image.
func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
