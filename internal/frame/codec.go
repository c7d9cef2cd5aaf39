package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Screenshot and window sources may hand back any of these.
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// FromJPEG decodes a JPEG image and keeps the encoded bytes on the frame
// so egress can forward them without re-encoding.
func FromJPEG(data []byte) (*Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	f, err := FromImage(img)
	if err != nil {
		return nil, err
	}
	f.JPEG = data
	return f, nil
}

// Decode decodes an image in any registered format. JPEG input keeps its
// source bytes like FromJPEG.
func Decode(data []byte) (*Frame, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	f, err := FromImage(img)
	if err != nil {
		return nil, err
	}
	if format == "jpeg" {
		f.JPEG = data
	}
	return f, nil
}

// EncodeJPEG returns the frame as JPEG. Frames that carry their source
// JPEG return it unchanged. quality is in [0, 1].
func EncodeJPEG(f *Frame, quality float64) ([]byte, error) {
	if len(f.JPEG) > 0 {
		return f.JPEG, nil
	}

	q := int(quality * 100)
	if q < 1 {
		q = 1
	} else if q > 100 {
		q = 100
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image(), &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
