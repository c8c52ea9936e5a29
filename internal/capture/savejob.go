package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mhelsper/cr35cap/internal/cr35"
)

// JobSnapshot is a point-in-time view of an acquisition job.
type JobSnapshot struct {
	Acquiring bool   `json:"acquiring"`
	LastError string `json:"lastError,omitempty"`
	LastRun   string `json:"lastRun,omitempty"` // RFC3339
	FilePath  string `json:"filePath,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// JobStatus tracks the state of a remotely triggered acquisition job.
type JobStatus struct {
	mu   sync.RWMutex
	snap JobSnapshot
}

// Snapshot returns a copy of the current status.
func (s *JobStatus) Snapshot() JobSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// StartIfIdle marks the job as in-progress; returns false when a job is
// already running.
func (s *JobStatus) StartIfIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Acquiring {
		return false
	}
	s.snap.Acquiring = true
	s.snap.LastError = ""
	return true
}

// SetResult records the outcome of a completed job.
func (s *JobStatus) SetResult(err error, img *cr35.Image, filePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Acquiring = false
	s.snap.LastRun = time.Now().UTC().Format(time.RFC3339)
	s.snap.FilePath = filePath
	if img != nil {
		s.snap.Width, s.snap.Height = img.Width, img.Height
	}
	if err != nil {
		s.snap.LastError = err.Error()
	} else {
		s.snap.LastError = ""
	}
}

// extensionFor maps an output MIME type to a file extension. Unknown
// formats fall back to TIFF, the lossless default.
func extensionFor(format string) string {
	switch format {
	case "application/pdf":
		return "pdf"
	case "image/png":
		return "png"
	default:
		return "tiff"
	}
}

// RunSaveJob acquires one exposure in the given mode and writes it into
// saveDir in the requested format. Returns the written file path.
func RunSaveJob(ctx context.Context, ctrl *Controller, mode uint32, format, saveDir string, dpi int) (string, *cr35.Image, error) {
	if err := os.MkdirAll(saveDir, 0755); err != nil {
		return "", nil, fmt.Errorf("create save directory: %w", err)
	}

	slog.Info("acquisition job starting", "mode", mode, "format", format, "saveDir", saveDir)
	img, err := ctrl.Acquire(ctx, mode)
	if err != nil {
		return "", nil, fmt.Errorf("acquire: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	outPath := filepath.Join(saveDir, fmt.Sprintf("exposure_%s.%s", timestamp, extensionFor(format)))

	switch format {
	case "application/pdf":
		err = WritePDF(img, dpi, outPath)
	case "image/png":
		err = WritePNG(img, outPath)
	default:
		err = WriteTIFF(img, outPath)
	}
	if err != nil {
		return "", img, fmt.Errorf("write exposure: %w", err)
	}

	slog.Info("exposure saved", "path", outPath, "width", img.Width, "height", img.Height)
	return outPath, img, nil
}
