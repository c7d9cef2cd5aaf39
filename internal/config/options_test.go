package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/simstream/internal/capture"
)

func defaultOptions(t *testing.T) *Options {
	t.Helper()
	o := &Options{}
	ApplyDefaults(o)
	return o
}

func TestOptionsDefaults(t *testing.T) {
	o := defaultOptions(t)

	cfg, err := o.CaptureConfig()
	if err != nil {
		t.Fatalf("CaptureConfig() error = %v", err)
	}
	want := capture.DefaultConfig()
	want.XcrunPath = "xcrun"
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("CaptureConfig() = %+v, want %+v", cfg, want)
	}

	params := o.StreamDefaults()
	if params.FPS != 30 || params.Quality != 0.6 {
		t.Errorf("StreamDefaults() = %+v", params)
	}

	if d, err := o.StartTimeout(); err != nil || d != 20*time.Second {
		t.Errorf("StartTimeout() = %v, %v", d, err)
	}
	if d, err := o.MetricsSampleInterval(); err != nil || d != time.Second {
		t.Errorf("MetricsSampleInterval() = %v, %v", d, err)
	}
}

func TestOptionsFromTOML(t *testing.T) {
	o := defaultOptions(t)
	o.Config = writeTempConfig(t, `
[capture]
order = "window, screenshot"
window_grace = "500ms"

[stream]
fps = 90
quality = 0.01

[stream_tool]
token = "abc"

[logging]
capture = "debug"
`)
	if err := LoadConfig(o, nil); err != nil {
		t.Fatal(err)
	}

	cfg, err := o.CaptureConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.Order, []string{capture.BackendWindow, capture.BackendScreenshot}) {
		t.Errorf("Order = %v", cfg.Order)
	}
	if cfg.WindowGrace != 500*time.Millisecond {
		t.Errorf("WindowGrace = %v", cfg.WindowGrace)
	}
	if cfg.StreamTool.Token != "abc" {
		t.Errorf("Token = %q", cfg.StreamTool.Token)
	}

	params := o.StreamDefaults()
	if params.FPS != capture.MaxFPS || params.Quality != capture.MinQuality {
		t.Errorf("StreamDefaults() = %+v, want clamped", params)
	}

	lc := o.LoggingConfig()
	if lc.Modules["capture"] != "debug" || lc.Modules["session"] != "info" {
		t.Errorf("LoggingConfig().Modules = %v", lc.Modules)
	}
}

func TestOptionsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		check  func(*Options) error
		want   string
	}{
		{
			name:   "unknown backend",
			mutate: func(o *Options) { o.CaptureOrder = "surface,vnc" },
			check:  func(o *Options) error { _, err := o.CaptureConfig(); return err },
			want:   "vnc",
		},
		{
			name:   "bad duration",
			mutate: func(o *Options) { o.CaptureStopTimeout = "soon" },
			check:  func(o *Options) error { _, err := o.CaptureConfig(); return err },
			want:   "capture.stop_timeout",
		},
		{
			name:   "negative duration",
			mutate: func(o *Options) { o.CaptureWindowGrace = "-1s" },
			check:  func(o *Options) error { _, err := o.CaptureConfig(); return err },
			want:   "must be positive",
		},
		{
			name:   "bad start timeout",
			mutate: func(o *Options) { o.StreamStartTimeout = "0s" },
			check:  func(o *Options) error { _, err := o.StartTimeout(); return err },
			want:   "stream.start_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions(t)
			tt.mutate(o)
			err := tt.check(o)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":                "port",
		"LoggingLevel":        "logging-level",
		"StreamFPS":           "stream-fps",
		"LoggingAPI":          "logging-api",
		"StreamToolTokenFile": "stream-tool-token-file",
		"FPSLimit":            "fps-limit",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}
