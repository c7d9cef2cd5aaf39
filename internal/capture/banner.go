package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/simstream/internal/frame"
)

const (
	surfaceMarker = "Mounting Surface with Attributes:"

	maxSurfaceDim       = 16384
	maxSurfaceFrameSize = 256 << 20
)

// SurfaceDescriptor is the raw framebuffer layout announced by the surface
// tool before it switches to binary output.
type SurfaceDescriptor struct {
	Width     int
	Height    int
	RowStride int
	FrameSize int
}

// Geometry converts d for frame.FromStrided.
func (d SurfaceDescriptor) Geometry() frame.Geometry {
	return frame.Geometry{Width: d.Width, Height: d.Height, RowStride: d.RowStride, FrameSize: d.FrameSize}
}

// Validate requires RowStride >= Width*4 and FrameSize >= RowStride*Height.
// FrameSize is also capped at twice RowStride*Height and at
// maxSurfaceFrameSize.
func (d SurfaceDescriptor) Validate() error {
	switch {
	case d.Width > maxSurfaceDim || d.Height > maxSurfaceDim:
		return fmt.Errorf("%w: dimensions %dx%d exceed %d", ErrMalformedGeometry, d.Width, d.Height, maxSurfaceDim)
	case d.RowStride > maxSurfaceFrameSize || d.FrameSize > maxSurfaceFrameSize:
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrMalformedGeometry, d, maxSurfaceFrameSize)
	}
	if err := d.Geometry().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedGeometry, err)
	}
	if limit := 2 * d.RowStride * d.Height; d.FrameSize > limit {
		return fmt.Errorf("%w: frame size %d > 2*row stride*height (%d)", ErrMalformedGeometry, d.FrameSize, limit)
	}
	return nil
}

func (d SurfaceDescriptor) String() string {
	return fmt.Sprintf("%dx%d row=%d frame=%d", d.Width, d.Height, d.RowStride, d.FrameSize)
}

// bannerParser accumulates the attribute banner, which may be split over
// several stderr lines, until its closing brace.
type bannerParser struct {
	block strings.Builder
	open  bool
}

// Feed consumes one line. It returns consumed=true when the line belongs to
// the banner, and ok=true once a complete banner has been parsed.
func (p *bannerParser) Feed(line string) (desc SurfaceDescriptor, ok, consumed bool) {
	line = strings.TrimSpace(line)

	if !p.open {
		if !strings.Contains(line, surfaceMarker) {
			return SurfaceDescriptor{}, false, false
		}
		p.block.Reset()
		p.open = true
	} else if line != "" {
		p.block.WriteByte(' ')
	}
	p.block.WriteString(line)

	if !strings.Contains(line, "}") {
		return SurfaceDescriptor{}, false, true
	}

	p.open = false
	desc, ok = parseSurfaceBanner(p.block.String())
	return desc, ok, true
}

// parseSurfaceBanner parses
//
//	Mounting Surface with Attributes: { width = 1179; height = 2556; row_size = 4736; frame_size = 12105728; }
//
// row_size defaults to width*4 and frame_size to row_size*height.
func parseSurfaceBanner(s string) (SurfaceDescriptor, bool) {
	start := strings.Index(s, surfaceMarker)
	if start < 0 {
		return SurfaceDescriptor{}, false
	}
	attrs := strings.TrimSpace(s[start+len(surfaceMarker):])
	attrs = strings.TrimPrefix(attrs, "{")
	if end := strings.Index(attrs, "}"); end >= 0 {
		attrs = attrs[:end]
	}

	values := make(map[string]int)
	for _, part := range strings.Split(attrs, ";") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), `"`)
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		values[key] = n
	}

	width, okW := values["width"]
	height, okH := values["height"]
	if !okW || !okH {
		return SurfaceDescriptor{}, false
	}

	d := SurfaceDescriptor{Width: width, Height: height, RowStride: width * frame.BytesPerPixel}
	if v, ok := values["row_size"]; ok {
		d.RowStride = v
	}
	d.FrameSize = d.RowStride * d.Height
	if v, ok := values["frame_size"]; ok {
		d.FrameSize = v
	}
	return d, true
}
