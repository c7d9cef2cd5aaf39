package mjpeg

import (
	"bufio"
	"fmt"
	"io"

	"github.com/smazurov/simstream/internal/frame"
)

const (
	// Boundary is the multipart boundary used on egress.
	Boundary = "--mjpegstream"
	// ContentType is the response content type matching Boundary.
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary
)

type flusher interface{ Flush() }

type errFlusher interface{ Flush() error }

// Writer emits one multipart part per JPEG image and flushes after each.
type Writer struct {
	w        io.Writer
	boundary string
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, boundary: Boundary}
}

// WritePart writes a single part containing data.
func (w *Writer) WritePart(data []byte) error {
	bw := bufio.NewWriterSize(w.w, len(data)+128)
	fmt.Fprintf(bw, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", w.boundary, len(data))
	bw.Write(data)
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write part: %w", err)
	}

	switch f := w.w.(type) {
	case errFlusher:
		return f.Flush()
	case flusher:
		f.Flush()
	}
	return nil
}

// WriteFrame writes f, re-encoding at quality only if it carries no JPEG.
func (w *Writer) WriteFrame(f *frame.Frame, quality float64) error {
	data, err := frame.EncodeJPEG(f, quality)
	if err != nil {
		return err
	}
	return w.WritePart(data)
}
