package capture

import (
	"math"
	"reflect"
	"testing"
)

func TestClampParams(t *testing.T) {
	tests := []struct {
		name    string
		fps     int
		quality float64
		want    Params
	}{
		{"defaults", 0, 0, Params{FPS: DefaultFPS, Quality: DefaultQuality}},
		{"in range", 24, 0.8, Params{FPS: 24, Quality: 0.8}},
		{"fps too high", 240, 0.5, Params{FPS: MaxFPS, Quality: 0.5}},
		{"negative fps", -5, 0.5, Params{FPS: 1, Quality: 0.5}},
		{"quality too low", 30, 0.01, Params{FPS: 30, Quality: MinQuality}},
		{"quality too high", 30, 7, Params{FPS: 30, Quality: MaxQuality}},
		{"quality NaN", 30, math.NaN(), Params{FPS: 30, Quality: DefaultQuality}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampParams(tt.fps, tt.quality); got != tt.want {
				t.Errorf("ClampParams(%d, %v) = %+v, want %+v", tt.fps, tt.quality, got, tt.want)
			}
		})
	}
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "surface,stream-tool,window,screenshot", want: DefaultOrder},
		{in: " window , screenshot ", want: []string{"window", "screenshot"}},
		{in: "screenshot,", want: []string{"screenshot"}},
		{in: "surface,ffmpeg", wantErr: true},
		{in: "window,window", wantErr: true},
		{in: " , ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrder(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOrder(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseOrder(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewBackends(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Order = []string{BackendScreenshot, BackendSurface}

	if _, err := NewBackends(cfg, Dependencies{}); err == nil {
		t.Error("expected error without a screenshot client")
	}

	backends, err := NewBackends(cfg, Dependencies{Shooter: &fakeShooter{}})
	if err != nil {
		t.Fatalf("NewBackends() error = %v", err)
	}
	var modes []Mode
	for _, b := range backends {
		modes = append(modes, b.Mode())
	}
	if !reflect.DeepEqual(modes, []Mode{ModeScreenshotPoll, ModeNativeSurface}) {
		t.Errorf("modes = %v", modes)
	}
}

func TestModeString(t *testing.T) {
	if ModeExternalStreamTool.String() != "stream-tool" || ModeUnstarted.String() != "unstarted" {
		t.Error("unexpected mode labels")
	}
	if (State{Phase: PhaseTrying, Index: 2}).String() != "trying(2)" {
		t.Error("unexpected state label")
	}
	if (State{Phase: PhaseTrying}).Settled() || !(State{Phase: PhaseExhausted}).Settled() {
		t.Error("unexpected Settled()")
	}
}
