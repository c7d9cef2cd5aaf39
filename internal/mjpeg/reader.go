// Package mjpeg reads and writes multipart/x-mixed-replace JPEG streams.
package mjpeg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/smazurov/simstream/internal/frame"
)

const (
	// MaxHeaderLine caps a single boundary or header line.
	MaxHeaderLine = 8 << 10
	// MaxPartSize caps a declared part body.
	MaxPartSize = 32 << 20

	readBufferSize = 64 << 10
)

var (
	// ErrProtocolDesync reports framing the reader could not follow. The
	// reader resynchronizes on the next boundary line.
	ErrProtocolDesync = errors.New("mjpeg protocol desync")
	// ErrDecodeFailure reports a part body that is not a decodable JPEG.
	ErrDecodeFailure = errors.New("mjpeg part decode failure")
)

type readState int

const (
	seekingBoundary readState = iota
	readingHeaders
)

// ReaderStats counts what the reader has seen so far.
type ReaderStats struct {
	Parts          uint64
	Desyncs        uint64
	DecodeFailures uint64
}

// Reader splits a multipart byte stream into parts. It keeps no state
// across calls besides its position in the boundary/header cycle, so the
// underlying reader may deliver bytes in chunks of any size.
type Reader struct {
	br    *bufio.Reader
	state readState
	size  int
	stats ReaderStats

	// OnError, when set, is told about every desync and decode failure.
	OnError func(err error)
}

// NewReader wraps r. A *bufio.Reader is used directly so bytes already
// buffered (for example after SkipPreamble) are not lost.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, readBufferSize)
	}
	return &Reader{br: br, size: -1}
}

// NextPart returns the next part body. It returns io.EOF when the stream
// ends between parts and io.ErrUnexpectedEOF when it ends inside one.
func (r *Reader) NextPart() ([]byte, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			if errors.Is(err, ErrProtocolDesync) {
				r.desync(err)
				continue
			}
			if err == io.EOF && r.state == readingHeaders && r.size >= 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		switch r.state {
		case seekingBoundary:
			if strings.HasPrefix(line, "--") {
				r.state = readingHeaders
				r.size = -1
			}

		case readingHeaders:
			if strings.HasPrefix(line, "--") {
				r.size = -1
				continue
			}
			if line != "" {
				r.header(line)
				continue
			}
			if r.size < 0 {
				r.desync(fmt.Errorf("%w: part without content-length", ErrProtocolDesync))
				continue
			}

			body, err := r.readBody(r.size)
			if err != nil {
				if errors.Is(err, ErrProtocolDesync) {
					r.desync(err)
					continue
				}
				return nil, err
			}
			r.state = seekingBoundary
			r.size = -1
			r.stats.Parts++
			return body, nil
		}
	}
}

// NextFrame returns the next part that decodes as a JPEG. Undecodable
// parts are counted and skipped.
func (r *Reader) NextFrame() (*frame.Frame, error) {
	for {
		body, err := r.NextPart()
		if err != nil {
			return nil, err
		}
		f, err := frame.FromJPEG(body)
		if err != nil {
			r.stats.DecodeFailures++
			if r.OnError != nil {
				r.OnError(fmt.Errorf("%w: %w", ErrDecodeFailure, err))
			}
			continue
		}
		return f, nil
	}
}

func (r *Reader) Stats() ReaderStats {
	return r.stats
}

func (r *Reader) header(line string) {
	name, value, ok := strings.Cut(line, ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(name), "content-length") {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 || n > MaxPartSize {
		r.desync(fmt.Errorf("%w: bad content-length %q", ErrProtocolDesync, value))
		return
	}
	r.size = n
}

// readBody reads an n byte body and its trailer. CRLF is the required
// trailer, but a bare LF or end of stream right after the body is also
// accepted. Any other byte is a desync.
func (r *Reader) readBody(n int) ([]byte, error) {
	body := make([]byte, n)
	if _, err := io.ReadFull(r.br, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	var trailer [2]byte
	if _, err := io.ReadFull(r.br, trailer[:1]); err != nil {
		if err == io.EOF {
			// Stream ended right after a complete body.
			return body, nil
		}
		return nil, err
	}
	switch trailer[0] {
	case '\n':
		return body, nil
	case '\r':
		if _, err := io.ReadFull(r.br, trailer[1:]); err != nil {
			if err == io.EOF {
				return body, nil
			}
			return nil, err
		}
		if trailer[1] == '\n' {
			return body, nil
		}
	}
	return nil, fmt.Errorf("%w: missing CRLF after %d byte body", ErrProtocolDesync, n)
}

// readLine returns one line without its line terminator. Lines longer than
// MaxHeaderLine are consumed and reported as a desync.
func (r *Reader) readLine() (string, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > MaxHeaderLine+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return "", err
		}
		break
	}
	if tooLong {
		return "", fmt.Errorf("%w: line exceeds %d bytes", ErrProtocolDesync, MaxHeaderLine)
	}
	return string(bytes.TrimRight(line, "\r\n")), nil
}

func (r *Reader) desync(err error) {
	r.stats.Desyncs++
	r.state = seekingBoundary
	r.size = -1
	if r.OnError != nil {
		r.OnError(err)
	}
}
