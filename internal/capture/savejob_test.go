package capture

import (
	"errors"
	"testing"
)

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"application/pdf", "pdf"},
		{"image/png", "png"},
		{"image/tiff", "tiff"},
		{"", "tiff"},
		{"image/jpeg", "tiff"}, // unsupported formats fall back to lossless
	}
	for _, tt := range tests {
		if got := extensionFor(tt.format); got != tt.want {
			t.Errorf("extensionFor(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestJobStatusLifecycle(t *testing.T) {
	var job JobStatus

	if !job.StartIfIdle() {
		t.Fatal("idle job refused to start")
	}
	if job.StartIfIdle() {
		t.Error("running job started twice")
	}
	if !job.Snapshot().Acquiring {
		t.Error("snapshot does not show the running job")
	}

	img := testExposure()
	job.SetResult(nil, img, "/tmp/exposure.tiff")
	snap := job.Snapshot()
	if snap.Acquiring {
		t.Error("job still acquiring after result")
	}
	if snap.FilePath != "/tmp/exposure.tiff" || snap.Width != 3 || snap.Height != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.LastError != "" {
		t.Errorf("LastError = %q, want empty", snap.LastError)
	}

	job.StartIfIdle()
	job.SetResult(errors.New("no plate inserted"), nil, "")
	if got := job.Snapshot().LastError; got != "no plate inserted" {
		t.Errorf("LastError = %q", got)
	}
}
