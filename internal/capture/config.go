package capture

import (
	"fmt"
	"strings"
	"time"
)

// Backend names used in the configured order.
const (
	BackendSurface    = "surface"
	BackendStreamTool = "stream-tool"
	BackendWindow     = "window"
	BackendScreenshot = "screenshot"
)

// DefaultOrder is the backend trial order. It is a process-wide policy;
// requests cannot change it.
var DefaultOrder = []string{BackendSurface, BackendStreamTool, BackendWindow, BackendScreenshot}

// Config holds the capture settings shared by every session.
type Config struct {
	Order []string

	StartupTimeout     time.Duration
	StreamReadyTimeout time.Duration
	ScreenshotInterval time.Duration
	WindowGrace        time.Duration
	StopTimeout        time.Duration

	Surface    SurfaceConfig
	StreamTool StreamToolConfig
	XcrunPath  string
}

// SurfaceConfig configures the native surface tool (fbsimctl).
type SurfaceConfig struct {
	Path  string
	Debug bool
}

// StreamToolConfig configures the external stream tool (simulator-server).
type StreamToolConfig struct {
	Path      string
	Token     string
	TokenFile string
	DeviceSet string
}

// DefaultConfig returns the built-in timeouts and order.
func DefaultConfig() Config {
	return Config{
		Order:              append([]string(nil), DefaultOrder...),
		StartupTimeout:     10 * time.Second,
		StreamReadyTimeout: 15 * time.Second,
		ScreenshotInterval: 200 * time.Millisecond,
		WindowGrace:        3 * time.Second,
		StopTimeout:        5 * time.Second,
	}
}

// ParseOrder validates a comma-separated backend list. Unknown and
// duplicate names are errors.
func ParseOrder(s string) ([]string, error) {
	var order []string
	seen := make(map[string]bool)
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		switch name {
		case BackendSurface, BackendStreamTool, BackendWindow, BackendScreenshot:
		default:
			return nil, fmt.Errorf("unknown capture backend %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("capture backend %q listed twice", name)
		}
		seen[name] = true
		order = append(order, name)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("empty capture order")
	}
	return order, nil
}
