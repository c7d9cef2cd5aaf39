package capture

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/simstream/internal/mjpeg"
)

func multipartBody(t *testing.T, parts ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := mjpeg.NewWriter(&buf)
	for _, p := range parts {
		if err := w.WritePart(p); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func fakeStreamTool(t *testing.T, script string) Locator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simulator-server")
	writeExecutable(t, path, "#!/bin/sh\n"+script)
	return Locator{Override: path, LookPath: noPath}
}

func TestStreamToolInlineMultipart(t *testing.T) {
	img := testJPEG(t, 4, 2)
	stream := append([]byte("simulator-server 1.0\r\nHTTP/1.1 200 OK\r\nContent-Type: "+mjpeg.ContentType+"\r\n\r\n"),
		multipartBody(t, img, []byte("not a jpeg"), img)...)

	dir := t.TempDir()
	streamFile := filepath.Join(dir, "stream.bin")
	if err := os.WriteFile(streamFile, stream, 0o644); err != nil {
		t.Fatal(err)
	}

	loc := fakeStreamTool(t, "read line\necho \"got $line\" >&2\ncat '"+streamFile+"'\n")
	b := NewStreamToolBackend(StreamToolConfig{Token: "secret"}, loc, 2*time.Second, 100*time.Millisecond)
	sink := &recordingSink{}

	err := b.Run(context.Background(), testRequest(), sink)
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("Run() error = %v, want ErrProcessExited", err)
	}
	if sink.ready != 1 {
		t.Errorf("ready = %d, want 1", sink.ready)
	}
	if sink.frameCount() != 2 {
		t.Fatalf("frames = %d, want 2 (corrupt part skipped)", sink.frameCount())
	}
	f := sink.frames[0]
	if f.Width != 4 || f.Height != 2 || !bytes.Equal(f.JPEG, img) {
		t.Errorf("frame = %dx%d, jpeg kept = %v", f.Width, f.Height, bytes.Equal(f.JPEG, img))
	}
	if !sink.logged("got token secret") {
		t.Errorf("token handshake not seen: %v", sink.logs)
	}
	if !sink.logged("simulator-server 1.0") {
		t.Errorf("intro line not logged: %v", sink.logs)
	}
}

func TestStreamToolReadyURL(t *testing.T) {
	img := testJPEG(t, 2, 2)
	body := multipartBody(t, img, img, img)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", mjpeg.ContentType)
		w.Write(body)
	}))
	defer srv.Close()

	loc := fakeStreamTool(t, "echo 'stream_ready "+srv.URL+"/stream'\nsleep 5\n")
	b := NewStreamToolBackend(StreamToolConfig{TokenFile: filepath.Join(t.TempDir(), "none")}, loc, 2*time.Second, 100*time.Millisecond)
	sink := &recordingSink{}

	err := b.Run(context.Background(), testRequest(), sink)
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("Run() error = %v, want ErrProcessExited", err)
	}
	if sink.frameCount() != 3 {
		t.Errorf("frames = %d, want 3", sink.frameCount())
	}
	if !sink.logged("no license token configured") {
		t.Errorf("missing token not logged: %v", sink.logs)
	}
	if !sink.logged("stream_ready " + srv.URL + "/stream") {
		t.Errorf("ready line not logged: %v", sink.logs)
	}
}

func TestStreamToolNeverReady(t *testing.T) {
	loc := fakeStreamTool(t, "echo 'starting'\nsleep 5\n")
	b := NewStreamToolBackend(StreamToolConfig{TokenFile: filepath.Join(t.TempDir(), "none")}, loc, 200*time.Millisecond, 100*time.Millisecond)
	sink := &recordingSink{}

	if err := b.Run(context.Background(), testRequest(), sink); !errors.Is(err, ErrStartupTimeout) {
		t.Errorf("Run() error = %v, want ErrStartupTimeout", err)
	}
	if sink.ready != 0 {
		t.Errorf("ready = %d, want 0", sink.ready)
	}
}

func TestStreamToolTokenSources(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  StreamToolConfig
		want string
	}{
		{"config wins", StreamToolConfig{Token: "inline", TokenFile: tokenFile}, "inline"},
		{"file", StreamToolConfig{TokenFile: tokenFile}, "from-file"},
		{"missing file", StreamToolConfig{TokenFile: filepath.Join(dir, "missing")}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewStreamToolBackend(tt.cfg, Locator{}, time.Second, time.Second)
			if got := b.token(); got != tt.want {
				t.Errorf("token() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractURL(t *testing.T) {
	tests := map[string]string{
		"stream_ready http://127.0.0.1:5000/stream.mjpeg": "http://127.0.0.1:5000/stream.mjpeg",
		"stream_ready https://host/x trailing":            "https://host/x",
		"stream_ready":                                    "",
	}
	for in, want := range tests {
		if got := extractURL(in); got != want {
			t.Errorf("extractURL(%q) = %q, want %q", in, got, want)
		}
	}
}
