package capture

import (
	"errors"
	"testing"
)

func TestParseSurfaceBanner(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want SurfaceDescriptor
		ok   bool
	}{
		{
			name: "all attributes",
			in:   "Mounting Surface with Attributes: { width = 1179; height = 2556; row_size = 4736; frame_size = 12105728; }",
			want: SurfaceDescriptor{Width: 1179, Height: 2556, RowStride: 4736, FrameSize: 12105728},
			ok:   true,
		},
		{
			name: "row and frame size default",
			in:   "Mounting Surface with Attributes: { width = 10; height = 4; }",
			want: SurfaceDescriptor{Width: 10, Height: 4, RowStride: 40, FrameSize: 160},
			ok:   true,
		},
		{
			name: "frame size derived from row size",
			in:   "Mounting Surface with Attributes: { width = 10; height = 4; row_size = 48; }",
			want: SurfaceDescriptor{Width: 10, Height: 4, RowStride: 48, FrameSize: 192},
			ok:   true,
		},
		{
			name: "quoted keys and log prefix",
			in:   `2024-01-01 12:00:00 fbsimctl Mounting Surface with Attributes: { "width" = 2; "height" = 2; }`,
			want: SurfaceDescriptor{Width: 2, Height: 2, RowStride: 8, FrameSize: 16},
			ok:   true,
		},
		{
			name: "missing height",
			in:   "Mounting Surface with Attributes: { width = 10; }",
			ok:   false,
		},
		{
			name: "no marker",
			in:   "width = 10; height = 4;",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseSurfaceBanner(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBannerParserMultiLine(t *testing.T) {
	lines := []string{
		"Booting simulator",
		"Mounting Surface with Attributes: {",
		"    width = 4;",
		"    height = 2;",
		"    row_size = 20;",
		"}",
		"after",
	}

	var p bannerParser
	var got []SurfaceDescriptor
	var consumed int
	for _, line := range lines {
		desc, ok, used := p.Feed(line)
		if used {
			consumed++
		}
		if ok {
			got = append(got, desc)
		}
	}

	if consumed != 5 {
		t.Errorf("consumed %d lines, want 5", consumed)
	}
	want := SurfaceDescriptor{Width: 4, Height: 2, RowStride: 20, FrameSize: 40}
	if len(got) != 1 || got[0] != want {
		t.Errorf("descriptors = %+v, want [%+v]", got, want)
	}
}

func TestSurfaceDescriptorValidate(t *testing.T) {
	tests := []struct {
		name string
		desc SurfaceDescriptor
		ok   bool
	}{
		{"packed", SurfaceDescriptor{Width: 2, Height: 2, RowStride: 8, FrameSize: 16}, true},
		{"padded", SurfaceDescriptor{Width: 2, Height: 2, RowStride: 12, FrameSize: 32}, true},
		{"row too small", SurfaceDescriptor{Width: 2, Height: 2, RowStride: 7, FrameSize: 16}, false},
		{"frame one byte short", SurfaceDescriptor{Width: 2, Height: 2, RowStride: 8, FrameSize: 15}, false},
		{"zero width", SurfaceDescriptor{Width: 0, Height: 2, RowStride: 8, FrameSize: 16}, false},
		{"frame size twice the rows", SurfaceDescriptor{Width: 2, Height: 2, RowStride: 8, FrameSize: 32}, true},
		{"frame size far past the rows", SurfaceDescriptor{Width: 2, Height: 2, RowStride: 8, FrameSize: 33}, false},
		{"huge frame size", SurfaceDescriptor{Width: 1170, Height: 2532, RowStride: 4680, FrameSize: 1 << 30}, false},
		{"huge row stride", SurfaceDescriptor{Width: 2, Height: 2, RowStride: 1 << 29, FrameSize: 1 << 30}, false},
		{"huge dimensions", SurfaceDescriptor{Width: 1 << 20, Height: 1 << 20, RowStride: 1 << 22, FrameSize: 1 << 26}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrMalformedGeometry) {
				t.Errorf("Validate() = %v, want ErrMalformedGeometry", err)
			}
		})
	}
}
