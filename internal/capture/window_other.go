//go:build !darwin

package capture

import (
	"context"
	"fmt"
	"runtime"
)

type unsupportedWindowSource struct{}

// NewSystemWindowSource returns the window source for this platform. Window
// capture needs the macOS window server, so elsewhere it always fails.
func NewSystemWindowSource() WindowSource {
	return unsupportedWindowSource{}
}

func (unsupportedWindowSource) Windows(context.Context) ([]Window, error) {
	return nil, fmt.Errorf("%w: window capture is not supported on %s", ErrToolNotFound, runtime.GOOS)
}

func (unsupportedWindowSource) Capture(context.Context, Window) ([]byte, error) {
	return nil, fmt.Errorf("%w: window capture is not supported on %s", ErrToolNotFound, runtime.GOOS)
}
