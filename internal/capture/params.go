package capture

import "math"

// Stream parameter bounds applied before any backend sees a request.
const (
	DefaultFPS     = 30
	MaxFPS         = 60
	DefaultQuality = 0.6
	MinQuality     = 0.1
	MaxQuality     = 1.0
)

// Params are the client-adjustable stream settings.
type Params struct {
	FPS     int
	Quality float64
}

// ClampParams fills zero values with defaults and bounds the rest: fps to
// [1, MaxFPS] and quality to [MinQuality, MaxQuality].
func ClampParams(fps int, quality float64) Params {
	switch {
	case fps == 0:
		fps = DefaultFPS
	case fps < 1:
		fps = 1
	case fps > MaxFPS:
		fps = MaxFPS
	}

	switch {
	case quality == 0 || math.IsNaN(quality):
		quality = DefaultQuality
	case quality < MinQuality:
		quality = MinQuality
	case quality > MaxQuality:
		quality = MaxQuality
	}

	return Params{FPS: fps, Quality: quality}
}

// Request names the simulator to capture and how.
type Request struct {
	Identity string
	Params
}
