// Package frame defines the decoded image type shared between capture
// backends and stream consumers, and the latest-wins queue between them.
package frame

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"
)

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

var (
	// ErrSize is returned when a pixel buffer does not match the frame dimensions.
	ErrSize = errors.New("pixel buffer does not match dimensions")
	// ErrGeometry is returned for a row layout that cannot describe the image.
	ErrGeometry = errors.New("invalid row geometry")
	// ErrShortBuffer is returned when a strided buffer is smaller than its declared size.
	ErrShortBuffer = errors.New("buffer shorter than frame size")
)

// Frame is one RGBA8 image of the simulator screen, row-major with no row padding.
// A Frame must not be modified once it has been offered to a Queue.
type Frame struct {
	Width  uint32
	Height uint32
	Pixels []byte

	// JPEG holds the encoded source image when the frame was decoded from one.
	JPEG []byte

	Seq        uint64
	CapturedAt time.Time
}

// New wraps pixels as a frame after checking len(pixels) == width*height*4.
func New(width, height uint32, pixels []byte) (*Frame, error) {
	want := uint64(width) * uint64(height) * BytesPerPixel
	if uint64(len(pixels)) != want {
		return nil, fmt.Errorf("%w: %dx%d needs %d bytes, got %d", ErrSize, width, height, want, len(pixels))
	}
	return &Frame{
		Width:      width,
		Height:     height,
		Pixels:     pixels,
		CapturedAt: time.Now(),
	}, nil
}

// FromImage converts any decoded image into an RGBA frame.
func FromImage(img image.Image) (*Frame, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrSize)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*BytesPerPixel || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return New(uint32(b.Dx()), uint32(b.Dy()), rgba.Pix)
}

// Image returns an RGBA view over the frame pixels. The view shares memory
// with the frame and must be treated as read-only.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pixels,
		Stride: int(f.Width) * BytesPerPixel,
		Rect:   image.Rect(0, 0, int(f.Width), int(f.Height)),
	}
}
