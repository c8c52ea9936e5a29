package webui

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/mhelsper/cr35cap/internal/capture"
	"github.com/mhelsper/cr35cap/internal/config"
	"github.com/mhelsper/cr35cap/internal/cr35"
)

//go:embed static
var staticFS embed.FS

// jobTimeout bounds a triggered acquisition; a plate read takes well
// under a minute, the margin covers operator delay at the device.
const jobTimeout = 5 * time.Minute

type handler struct {
	ctrl     *capture.Controller
	job      *capture.JobStatus
	settings *config.Store
}

// NewHandler creates the HTTP handler for the control UI and API.
func NewHandler(ctrl *capture.Controller, job *capture.JobStatus, settings *config.Store) http.Handler {
	h := &handler{ctrl: ctrl, job: job, settings: settings}
	mux := http.NewServeMux()
	staticContent, _ := fs.Sub(staticFS, "static")
	mux.HandleFunc("/api/status", withMethod("GET", h.handleStatus))
	mux.HandleFunc("/api/modes", withMethod("GET", h.handleModes))
	mux.HandleFunc("/api/settings", byMethod(map[string]http.HandlerFunc{
		"GET": h.handleGetSettings,
		"PUT": h.handlePutSettings,
	}))
	mux.HandleFunc("/api/scan", withMethod("POST", h.handleScan))
	mux.HandleFunc("/api/preview.png", withMethod("GET", h.handlePreview))
	mux.Handle("/", http.FileServer(http.FS(staticContent)))
	return mux
}

type statusResponse struct {
	Online    bool                `json:"online"`
	State     string              `json:"state"`
	Host      string              `json:"host"`
	Modes     int                 `json:"modes"`
	Job       capture.JobSnapshot `json:"job"`
	UpdatedAt string              `json:"updatedAt"`
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	online := h.ctrl.Connected()
	state := "offline"
	if online {
		state = cr35.StateName(h.ctrl.State())
	}

	resp := statusResponse{
		Online:    online,
		State:     state,
		Host:      h.ctrl.Host(),
		Modes:     len(h.ctrl.ModeList()),
		Job:       h.job.Snapshot(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *handler) handleModes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.ctrl.ModeList())
}

func (h *handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.settings.Get())
}

func (h *handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var s config.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.settings.Update(s); err != nil {
		slog.Warn("settings save failed", "err", err)
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

// handleScan kicks off an acquire-and-save job in the background; the
// caller polls /api/status for the outcome.
func (h *handler) handleScan(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.Connected() {
		http.Error(w, "device not connected", http.StatusConflict)
		return
	}
	if !h.job.StartIfIdle() {
		http.Error(w, "acquisition already running", http.StatusConflict)
		return
	}

	s := h.settings.Get()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		path, img, err := capture.RunSaveJob(ctx, h.ctrl, s.Mode, s.Format, s.SaveDir, s.DPI)
		if err != nil {
			slog.Error("acquisition job failed", "err", err)
		}
		h.job.SetResult(err, img, path)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(h.job.Snapshot())
}

func (h *handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	img, at := h.ctrl.LastImage()
	if img == nil {
		http.Error(w, "no exposure captured yet", http.StatusNotFound)
		return
	}
	data, err := capture.PreviewPNG(img)
	if err != nil {
		http.Error(w, "preview rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
	w.Write(data)
}
