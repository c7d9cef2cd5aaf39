package frame

import "fmt"

// PixelOrder is the byte order of a 4-byte pixel in a raw surface.
type PixelOrder int

const (
	OrderRGBA PixelOrder = iota
	OrderBGRA
)

// Geometry describes a raw surface whose rows may be padded beyond Width*4 bytes.
type Geometry struct {
	Width     int
	Height    int
	RowStride int
	FrameSize int
}

// Validate checks that the geometry can address every visible pixel.
func (g Geometry) Validate() error {
	switch {
	case g.Width <= 0 || g.Height <= 0:
		return fmt.Errorf("%w: dimensions %dx%d", ErrGeometry, g.Width, g.Height)
	case g.RowStride < g.Width*BytesPerPixel:
		return fmt.Errorf("%w: row stride %d < width*4 (%d)", ErrGeometry, g.RowStride, g.Width*BytesPerPixel)
	case g.FrameSize < g.RowStride*g.Height:
		return fmt.Errorf("%w: frame size %d < row stride*height (%d)", ErrGeometry, g.FrameSize, g.RowStride*g.Height)
	}
	return nil
}

// FromStrided copies the visible Width*4 bytes of every row out of buf and
// returns a tightly packed RGBA frame. The geometry and buffer length are
// checked before any row is sliced.
func FromStrided(buf []byte, g Geometry, order PixelOrder) (*Frame, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(buf) < g.FrameSize {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrShortBuffer, len(buf), g.FrameSize)
	}

	rowBytes := g.Width * BytesPerPixel
	pixels := make([]byte, rowBytes*g.Height)
	for y := 0; y < g.Height; y++ {
		src := buf[y*g.RowStride : y*g.RowStride+rowBytes]
		dst := pixels[y*rowBytes : (y+1)*rowBytes]
		copy(dst, src)
	}
	if order == OrderBGRA {
		for i := 0; i < len(pixels); i += BytesPerPixel {
			pixels[i], pixels[i+2] = pixels[i+2], pixels[i]
		}
	}

	return New(uint32(g.Width), uint32(g.Height), pixels)
}
