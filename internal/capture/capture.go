package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/simstream/internal/frame"
)

// CaptureFrame runs the backend chain until the first frame arrives and
// returns it. The chain is torn down before returning.
func CaptureFrame(ctx context.Context, req Request, backends []Backend, timeout time.Duration) (*frame.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	queue := frame.NewQueue()
	orch := NewOrchestrator(req, backends, queue, nil)
	orch.Start(ctx)
	defer orch.Stop()

	f, err := queue.Next(ctx)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, frame.ErrClosed) {
		<-orch.Done()
		if cause := orch.Err(); cause != nil {
			return nil, cause
		}
	}
	return nil, fmt.Errorf("no frame within %s: %w", timeout, err)
}

// CaptureJPEG captures a single frame and returns it JPEG encoded.
func CaptureJPEG(ctx context.Context, req Request, backends []Backend, timeout time.Duration) ([]byte, error) {
	f, err := CaptureFrame(ctx, req, backends, timeout)
	if err != nil {
		return nil, err
	}
	return frame.EncodeJPEG(f, req.Quality)
}

// CaptureToFile captures a single frame and writes it to outputPath as JPEG.
func CaptureToFile(ctx context.Context, req Request, backends []Backend, timeout time.Duration, outputPath string) error {
	outputDir := filepath.Dir(outputPath)
	if outputDir != "." {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
		}
	}

	data, err := CaptureJPEG(ctx, req, backends, timeout)
	if err != nil {
		return err
	}
	return writeFileAtomic(outputPath, data)
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never see a partial image.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}
