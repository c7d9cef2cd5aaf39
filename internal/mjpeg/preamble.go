package mjpeg

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// IsStatusLine reports whether line is an HTTP/1.x response status line.
func IsStatusLine(line string) bool {
	return strings.HasPrefix(line, "HTTP/1.")
}

// SkipHeaders consumes header lines up to and including the first blank line.
func SkipHeaders(br *bufio.Reader) error {
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("%w: stream ended inside response headers", ErrProtocolDesync)
			}
			return err
		}
		if strings.TrimRight(line, "\r\n") == "" {
			return nil
		}
	}
}

// SkipPreamble discards any text a tool prints before its HTTP response,
// then the status line and headers, leaving br at the multipart body.
// Skipped intro lines are passed to onLine when it is non-nil.
func SkipPreamble(br *bufio.Reader, onLine func(string)) error {
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("%w: no HTTP response status line", ErrProtocolDesync)
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if IsStatusLine(line) {
			return SkipHeaders(br)
		}
		if onLine != nil && line != "" {
			onLine(line)
		}
	}
}
