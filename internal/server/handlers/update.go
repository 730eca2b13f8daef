package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/server/responses"
	"git.home.luguber.info/inful/gundeck/internal/task"
	"git.home.luguber.info/inful/gundeck/internal/taskstore"
	"git.home.luguber.info/inful/gundeck/internal/update"
	"git.home.luguber.info/inful/gundeck/internal/version"
)

// UpdateHandlers serves the asset-sync task endpoints.
type UpdateHandlers struct {
	orch         *update.Orchestrator
	reg          *task.Registry
	archive      *taskstore.SQLiteStore
	versionFile  string
	errorAdapter *errors.HTTPErrorAdapter
}

// NewUpdateHandlers creates a new update handlers instance. archive may be
// nil when no history store is configured.
func NewUpdateHandlers(orch *update.Orchestrator, reg *task.Registry, archive *taskstore.SQLiteStore, versionFile string) *UpdateHandlers {
	return &UpdateHandlers{
		orch:         orch,
		reg:          reg,
		archive:      archive,
		versionFile:  versionFile,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

type applyRequest struct {
	Channel string `json:"channel"`
}

// HandleApply serves POST /api/update/apply.
func (h *UpdateHandlers) HandleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Channel) == "" {
		req.Channel = "latest"
	}
	id, err := h.orch.Apply(r.Context(), req.Channel)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	_ = writeJSON(w, http.StatusAccepted, responses.ApplyResponse{OK: true, TaskID: id})
}

// HandleStatus serves GET /api/update/status?id=. It falls back to the
// archive for records the registry has already evicted.
func (h *UpdateHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.errorAdapter.WriteErrorResponse(w, errors.ValidationError("task id is required"))
		return
	}
	if rec, ok := h.reg.Get(id); ok {
		_ = writeJSON(w, http.StatusOK, responses.TaskStatusResponse{OK: true, Task: rec})
		return
	}
	if h.archive != nil {
		archived, err := h.archive.Get(r.Context(), id)
		if err == nil && archived != nil {
			_ = writeJSON(w, http.StatusOK, map[string]any{"ok": true, "task": archived})
			return
		}
	}
	h.errorAdapter.WriteErrorResponse(w, errors.NotFoundError("task not found"))
}

// HandleTasks serves GET /api/update/tasks: active registry records plus the
// archived history.
func (h *UpdateHandlers) HandleTasks(w http.ResponseWriter, r *http.Request) {
	resp := responses.TasksResponse{OK: true, Active: h.reg.List()}
	if h.archive != nil {
		history, err := h.archive.Recent(r.Context(), 50)
		if err == nil {
			resp.History = history
		}
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

// HandleLogs serves GET /api/update/logs?id= as one text blob.
func (h *UpdateHandlers) HandleLogs(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.errorAdapter.WriteErrorResponse(w, errors.ValidationError("task id is required"))
		return
	}
	if rec, ok := h.reg.Get(id); ok {
		_ = writeJSON(w, http.StatusOK, responses.LogsResponse{Logs: strings.Join(rec.Logs, "\n")})
		return
	}
	if h.archive != nil {
		archived, err := h.archive.Get(r.Context(), id)
		if err == nil && archived != nil {
			_ = writeJSON(w, http.StatusOK, responses.LogsResponse{Logs: strings.Join(archived.Logs, "\n")})
			return
		}
	}
	h.errorAdapter.WriteErrorResponse(w, errors.NotFoundError("task not found"))
}

// HandleCancel serves POST /api/update/cancel?id=.
func (h *UpdateHandlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.errorAdapter.WriteErrorResponse(w, errors.ValidationError("task id is required"))
		return
	}
	ok := h.orch.Cancel(id)
	_ = writeJSON(w, http.StatusOK, responses.CancelResponse{OK: true, Canceled: ok})
}

// HandleVersion serves GET /api/update/version.
func (h *UpdateHandlers) HandleVersion(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, responses.VersionResponse{
		OK:        true,
		Version:   version.Version,
		Installed: version.InstalledMarker(h.versionFile),
	})
}
