package config

import (
	"fmt"
	"time"

	"github.com/smazurov/simstream/internal/capture"
	"github.com/smazurov/simstream/internal/logging"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"simstream.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings. Empty credentials disable basic auth.
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Stream defaults used when a request omits them
	StreamFPS          int     `help:"Default frames per second" default:"30" toml:"stream.fps" env:"STREAM_FPS"`
	StreamQuality      float64 `help:"Default JPEG quality (0.1-1.0)" default:"0.6" toml:"stream.quality" env:"STREAM_QUALITY"`
	StreamStartTimeout string  `help:"How long a stream request waits for capture to start" default:"20s" toml:"stream.start_timeout" env:"STREAM_START_TIMEOUT"`

	// Capture settings
	CaptureOrder              string `help:"Capture backend order (surface, stream-tool, window, screenshot)" default:"surface,stream-tool,window,screenshot" toml:"capture.order" env:"CAPTURE_ORDER"`
	CaptureStartupTimeout     string `help:"Native surface banner timeout" default:"10s" toml:"capture.startup_timeout" env:"CAPTURE_STARTUP_TIMEOUT"`
	CaptureStreamReadyTimeout string `help:"Stream tool readiness timeout" default:"15s" toml:"capture.stream_ready_timeout" env:"CAPTURE_STREAM_READY_TIMEOUT"`
	CaptureScreenshotInterval string `help:"Screenshot polling interval" default:"200ms" toml:"capture.screenshot_interval" env:"CAPTURE_SCREENSHOT_INTERVAL"`
	CaptureWindowGrace        string `help:"How long window capture looks for a simulator window" default:"3s" toml:"capture.window_grace" env:"CAPTURE_WINDOW_GRACE"`
	CaptureStopTimeout        string `help:"Grace period before capture tools are killed" default:"5s" toml:"capture.stop_timeout" env:"CAPTURE_STOP_TIMEOUT"`

	// Capture tools
	SurfacePath         string `help:"Path to fbsimctl" default:"" toml:"surface.path" env:"SURFACE_PATH"`
	SurfaceDebug        bool   `help:"Enable fbsimctl debug logging" default:"false" toml:"surface.debug" env:"SURFACE_DEBUG"`
	StreamToolPath      string `help:"Path to simulator-server" default:"" toml:"stream_tool.path" env:"STREAM_TOOL_PATH"`
	StreamToolToken     string `help:"simulator-server license token" default:"" toml:"stream_tool.token" env:"STREAM_TOOL_TOKEN"`
	StreamToolTokenFile string `help:"File holding the simulator-server license token" default:"" toml:"stream_tool.token_file" env:"STREAM_TOOL_TOKEN_FILE"`
	StreamToolDeviceSet string `help:"Simulator device set directory" default:"" toml:"stream_tool.device_set" env:"STREAM_TOOL_DEVICE_SET"`
	XcrunPath           string `help:"Path to xcrun" default:"xcrun" toml:"simctl.xcrun_path" env:"XCRUN_PATH"`

	// Metrics settings
	MetricsEnabled  bool   `help:"Expose Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`
	MetricsInterval string `help:"Session metrics sampling interval" default:"1s" toml:"metrics.interval" env:"METRICS_INTERVAL"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingSession string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingProcess string `help:"Process logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingSimctl  string `help:"Simctl logging level" default:"info" toml:"logging.simctl" env:"LOGGING_SIMCTL"`
	LoggingMetrics string `help:"Metrics logging level" default:"info" toml:"logging.metrics" env:"LOGGING_METRICS"`
}

// LoggingConfig returns the logging settings as a logging.Config.
func (o *Options) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"capture": o.LoggingCapture,
			"session": o.LoggingSession,
			"api":     o.LoggingAPI,
			"process": o.LoggingProcess,
			"simctl":  o.LoggingSimctl,
			"metrics": o.LoggingMetrics,
		},
	}
}

// CaptureConfig parses the capture settings. Durations that fail to parse
// are errors; empty ones keep the built-in default.
func (o *Options) CaptureConfig() (capture.Config, error) {
	cfg := capture.DefaultConfig()

	if o.CaptureOrder != "" {
		order, err := capture.ParseOrder(o.CaptureOrder)
		if err != nil {
			return cfg, err
		}
		cfg.Order = order
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"capture.startup_timeout", o.CaptureStartupTimeout, &cfg.StartupTimeout},
		{"capture.stream_ready_timeout", o.CaptureStreamReadyTimeout, &cfg.StreamReadyTimeout},
		{"capture.screenshot_interval", o.CaptureScreenshotInterval, &cfg.ScreenshotInterval},
		{"capture.window_grace", o.CaptureWindowGrace, &cfg.WindowGrace},
		{"capture.stop_timeout", o.CaptureStopTimeout, &cfg.StopTimeout},
	}
	for _, d := range durations {
		if err := parsePositiveDuration(d.name, d.value, d.dst); err != nil {
			return cfg, err
		}
	}

	cfg.Surface = capture.SurfaceConfig{Path: o.SurfacePath, Debug: o.SurfaceDebug}
	cfg.StreamTool = capture.StreamToolConfig{
		Path:      o.StreamToolPath,
		Token:     o.StreamToolToken,
		TokenFile: o.StreamToolTokenFile,
		DeviceSet: o.StreamToolDeviceSet,
	}
	cfg.XcrunPath = o.XcrunPath
	return cfg, nil
}

// StreamDefaults returns the clamped default fps and quality.
func (o *Options) StreamDefaults() capture.Params {
	return capture.ClampParams(o.StreamFPS, o.StreamQuality)
}

// StartTimeout returns how long a stream request waits for capture.
func (o *Options) StartTimeout() (time.Duration, error) {
	d := 20 * time.Second
	if err := parsePositiveDuration("stream.start_timeout", o.StreamStartTimeout, &d); err != nil {
		return 0, err
	}
	return d, nil
}

// MetricsSampleInterval returns the session metrics sampling interval.
func (o *Options) MetricsSampleInterval() (time.Duration, error) {
	d := time.Second
	if err := parsePositiveDuration("metrics.interval", o.MetricsInterval, &d); err != nil {
		return 0, err
	}
	return d, nil
}

func parsePositiveDuration(name, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be positive", name, value)
	}
	*dst = d
	return nil
}
