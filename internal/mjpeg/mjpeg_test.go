package mjpeg

import (
	"bufio"
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/smazurov/simstream/internal/frame"
)

func testJPEG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 20), B: uint8(y * 30), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testStream(t *testing.T, parts ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, p := range parts {
		if err := w.WritePart(p); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func readAllParts(t *testing.T, r io.Reader) [][]byte {
	t.Helper()
	mr := NewReader(r)
	var parts [][]byte
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return parts
		}
		if err != nil {
			t.Fatalf("NextPart() error = %v", err)
		}
		parts = append(parts, p)
	}
}

func TestReaderSplitAtEveryOffset(t *testing.T) {
	want := [][]byte{testJPEG(t, 10), testJPEG(t, 120), testJPEG(t, 250)}
	stream := testStream(t, want...)

	for k := 0; k <= len(stream); k++ {
		r := io.MultiReader(bytes.NewReader(stream[:k]), bytes.NewReader(stream[k:]))
		got := readAllParts(t, r)
		if len(got) != len(want) {
			t.Fatalf("split at %d: got %d parts, want %d", k, len(got), len(want))
		}
		for i := range want {
			if !bytes.Equal(got[i], want[i]) {
				t.Fatalf("split at %d: part %d differs", k, i)
			}
		}
	}
}

func TestReaderOneByteChunks(t *testing.T) {
	want := [][]byte{testJPEG(t, 1), testJPEG(t, 2)}
	got := readAllParts(t, iotest.OneByteReader(bytes.NewReader(testStream(t, want...))))
	if len(got) != 2 || !bytes.Equal(got[0], want[0]) || !bytes.Equal(got[1], want[1]) {
		t.Fatalf("one-byte reads produced %d parts", len(got))
	}
}

func TestReaderSkipsCorruptBody(t *testing.T) {
	a, c := testJPEG(t, 30), testJPEG(t, 200)
	stream := testStream(t, a, []byte("definitely not a jpeg"), c)

	var reported []error
	r := NewReader(bytes.NewReader(stream))
	r.OnError = func(err error) { reported = append(reported, err) }

	var frames []*frame.Frame
	for {
		f, err := r.NextFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextFrame() error = %v", err)
		}
		frames = append(frames, f)
	}

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0].JPEG, a) || !bytes.Equal(frames[1].JPEG, c) {
		t.Error("frames out of order or wrong bodies")
	}
	if got := r.Stats().DecodeFailures; got != 1 {
		t.Errorf("DecodeFailures = %d, want 1", got)
	}
	if len(reported) != 1 || !errors.Is(reported[0], ErrDecodeFailure) {
		t.Errorf("reported = %v, want one ErrDecodeFailure", reported)
	}
}

func TestReaderHeaderVariants(t *testing.T) {
	body := []byte("xyz")
	tests := []struct {
		name   string
		stream string
		want   []string
	}{
		{
			name:   "lowercase header and LF endings",
			stream: "--b\ncontent-type: image/jpeg\ncontent-length: 3\n\nxyz\n",
			want:   []string{"xyz"},
		},
		{
			name:   "mixed case with extra spacing",
			stream: "--b\r\nCONTENT-LENGTH:   3  \r\n\r\nxyz\r\n",
			want:   []string{"xyz"},
		},
		{
			name:   "leading garbage before first boundary",
			stream: "junk line\r\nmore junk\r\n--b\r\nContent-Length: 3\r\n\r\nxyz\r\n",
			want:   []string{"xyz"},
		},
		{
			name:   "boundary resets headers",
			stream: "--b\r\nContent-Length: 99\r\n--b\r\nContent-Length: 3\r\n\r\nxyz\r\n",
			want:   []string{"xyz"},
		},
		{
			name:   "missing trailer resyncs",
			stream: "--b\r\nContent-Length: 3\r\n\r\nxyzQQ\r\n--b\r\nContent-Length: 3\r\n\r\nxyz\r\n",
			want:   []string{"xyz"},
		},
		{
			name:   "stream ends right after body",
			stream: "--b\r\nContent-Length: 3\r\n\r\nxyz",
			want:   []string{"xyz"},
		},
		{
			name:   "CR without LF resyncs",
			stream: "--b\r\nContent-Length: 3\r\n\r\nxyz\rQ\r\n--b\r\nContent-Length: 3\r\n\r\nxyz\r\n",
			want:   []string{"xyz"},
		},
		{
			name:   "part without length is dropped",
			stream: "--b\r\n\r\n--b\r\nContent-Length: 3\r\n\r\nxyz\r\n",
			want:   []string{"xyz"},
		},
		{
			name:   "oversized length is dropped",
			stream: "--b\r\nContent-Length: 999999999999\r\n\r\n--b\r\nContent-Length: 3\r\n\r\nxyz\r\n",
			want:   []string{"xyz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAllParts(t, strings.NewReader(tt.stream))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d parts, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !bytes.Equal(got[i], body) {
					t.Errorf("part %d = %q", i, got[i])
				}
			}
		})
	}
}

func TestReaderTruncatedBody(t *testing.T) {
	r := NewReader(strings.NewReader("--b\r\nContent-Length: 10\r\n\r\nabc"))
	if _, err := r.NextPart(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("NextPart() error = %v, want ErrUnexpectedEOF", err)
	}
}

func TestReaderOverlongLine(t *testing.T) {
	stream := "--b\r\n" + strings.Repeat("x", MaxHeaderLine*2) + "\r\n--b\r\nContent-Length: 2\r\n\r\nok\r\n"
	r := NewReader(strings.NewReader(stream))

	p, err := r.NextPart()
	if err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	if string(p) != "ok" {
		t.Errorf("part = %q, want ok", p)
	}
	if r.Stats().Desyncs != 1 {
		t.Errorf("Desyncs = %d, want 1", r.Stats().Desyncs)
	}
}

func TestWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WritePart([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	want := "----mjpegstream\r\nContent-Type: image/jpeg\r\nContent-Length: 3\r\n\r\nabc\r\n"
	if buf.String() != want {
		t.Errorf("WritePart() wrote %q, want %q", buf.String(), want)
	}
}

func TestWriterEncodesRawFrame(t *testing.T) {
	f, err := frame.New(4, 4, bytes.Repeat([]byte{200, 100, 50, 255}, 16))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteFrame(f, 0.8); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	got, err := NewReader(&buf).NextFrame()
	if err != nil {
		t.Fatalf("NextFrame() error = %v", err)
	}
	if got.Width != 4 || got.Height != 4 {
		t.Errorf("size = %dx%d, want 4x4", got.Width, got.Height)
	}
}

func TestSkipPreamble(t *testing.T) {
	part := testStream(t, []byte("abc"))
	input := "starting server\nlistening\nHTTP/1.1 200 OK\r\nContent-Type: " + ContentType + "\r\n\r\n" + string(part)

	var intro []string
	br := bufio.NewReader(strings.NewReader(input))
	if err := SkipPreamble(br, func(line string) { intro = append(intro, line) }); err != nil {
		t.Fatalf("SkipPreamble() error = %v", err)
	}
	if len(intro) != 2 || intro[0] != "starting server" {
		t.Errorf("intro lines = %v", intro)
	}

	p, err := NewReader(br).NextPart()
	if err != nil {
		t.Fatalf("NextPart() after preamble error = %v", err)
	}
	if string(p) != "abc" {
		t.Errorf("part = %q, want abc", p)
	}
}

func TestSkipPreambleNoStatusLine(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("nothing useful\n"))
	if err := SkipPreamble(br, nil); !errors.Is(err, ErrProtocolDesync) {
		t.Fatalf("SkipPreamble() error = %v, want ErrProtocolDesync", err)
	}
}
