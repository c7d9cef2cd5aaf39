//go:build darwin

package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/smazurov/simstream/internal/process"
)

const listTimeout = 5 * time.Second

// windowListScript prints every on-screen window as a JSON array.
const windowListScript = `ObjC.import('CoreGraphics');
var info = ObjC.deepUnwrap($.CGWindowListCopyWindowInfo($.kCGWindowListOptionOnScreenOnly, $.kCGNullWindowID)) || [];
JSON.stringify(info.map(function (w) {
  var b = w.kCGWindowBounds || {};
  return {
    id: w.kCGWindowNumber,
    owner: w.kCGWindowOwnerName || "",
    name: w.kCGWindowName || "",
    layer: w.kCGWindowLayer,
    x: b.X || 0, y: b.Y || 0, width: b.Width || 0, height: b.Height || 0
  };
}));`

// systemWindowSource reads the window server through osascript and grabs
// window images with screencapture.
type systemWindowSource struct{}

// NewSystemWindowSource returns the window source for this platform.
func NewSystemWindowSource() WindowSource {
	return systemWindowSource{}
}

func (systemWindowSource) Windows(ctx context.Context) ([]Window, error) {
	out, err := process.Output(ctx, listTimeout, "osascript", "-l", "JavaScript", "-e", windowListScript)
	if err != nil {
		return nil, toolError("osascript", err)
	}
	return parseWindowList(out)
}

func (systemWindowSource) Capture(ctx context.Context, w Window) ([]byte, error) {
	tmp, err := os.CreateTemp("", "simstream-window-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	args := []string{"-x", "-o", "-l", strconv.Itoa(w.ID), "-t", "jpg", path}
	if _, err := process.Output(ctx, listTimeout, "screencapture", args...); err != nil {
		return nil, toolError("screencapture", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read window capture: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("window %d: empty capture", w.ID)
	}
	return data, nil
}

func toolError(name string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrToolNotFound, name, err)
	}
	return fmt.Errorf("%s: %w", name, err)
}
