package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/gundeck/internal/config"
	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/logfields"
	"git.home.luguber.info/inful/gundeck/internal/server/responses"
	"git.home.luguber.info/inful/gundeck/internal/services"
	"git.home.luguber.info/inful/gundeck/internal/version"
)

// SystemHandlers serves service control, log passthrough, power, and health.
type SystemHandlers struct {
	cfg          *config.Config
	ctrl         services.Controller
	startTime    time.Time
	errorAdapter *errors.HTTPErrorAdapter
}

// NewSystemHandlers creates a new system handlers instance.
func NewSystemHandlers(cfg *config.Config, ctrl services.Controller) *SystemHandlers {
	return &SystemHandlers{
		cfg:          cfg,
		ctrl:         ctrl,
		startTime:    time.Now(),
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleHealth serves GET /healthz.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(h.startTime).Seconds(),
	})
}

// HandleServices serves GET /api/services: unit name -> activation state.
func (h *SystemHandlers) HandleServices(w http.ResponseWriter, r *http.Request) {
	states := make(map[string]string, len(h.cfg.Services))
	for _, unit := range h.cfg.Services {
		state, err := h.ctrl.Status(r.Context(), unit)
		if err != nil {
			state = "unknown"
		}
		states[unit] = state
	}
	_ = writeJSON(w, http.StatusOK, states)
}

// HandleServiceAction serves POST /api/service/{name}/{action}.
func (h *SystemHandlers) HandleServiceAction(w http.ResponseWriter, r *http.Request) {
	unit := r.PathValue("name")
	action := services.Action(r.PathValue("action"))

	err := h.ctrl.Control(r.Context(), unit, action)
	if err != nil && errors.IsCategory(err, errors.CategoryValidation) {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	state, serr := h.ctrl.Status(r.Context(), unit)
	if serr != nil {
		state = "unknown"
	}
	if err != nil {
		slog.Warn("service action failed", logfields.Unit(unit), logfields.Error(err))
	}
	_ = writeJSON(w, http.StatusOK, responses.ServiceActionResponse{
		Success: err == nil,
		Status:  state,
	})
}

// HandleServiceLogs serves GET /api/logs/{service} with recent journal output.
func (h *SystemHandlers) HandleServiceLogs(w http.ResponseWriter, r *http.Request) {
	unit := r.PathValue("service")
	lines := 200
	if n, err := strconv.Atoi(r.URL.Query().Get("lines")); err == nil && n > 0 {
		lines = n
	}
	out, err := h.ctrl.Logs(r.Context(), unit, lines)
	if err != nil {
		if errors.IsCategory(err, errors.CategoryValidation) {
			h.errorAdapter.WriteErrorResponse(w, err)
			return
		}
		out = "Logs unavailable: " + err.Error()
	}
	_ = writeJSON(w, http.StatusOK, responses.LogsResponse{Logs: out})
}

// HandleDriverLog serves GET /api/sinden-log: the driver's own log file. Read
// problems surface inside the payload so the dashboard always renders
// something.
func (h *SystemHandlers) HandleDriverLog(w http.ResponseWriter, r *http.Request) {
	if h.cfg.DriverLog == "" {
		_ = writeJSON(w, http.StatusOK, responses.LogsResponse{Logs: "No driver log configured"})
		return
	}
	data, err := os.ReadFile(h.cfg.DriverLog)
	if err != nil {
		_ = writeJSON(w, http.StatusOK, responses.LogsResponse{Logs: "Error reading log: " + err.Error()})
		return
	}
	_ = writeJSON(w, http.StatusOK, responses.LogsResponse{Logs: string(data)})
}

// HandlePower serves POST /api/system/{action} for reboot and shutdown.
func (h *SystemHandlers) HandlePower(w http.ResponseWriter, r *http.Request) {
	action := services.PowerAction(strings.ToLower(r.PathValue("action")))
	if err := h.ctrl.Power(r.Context(), action); err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, responses.PowerResponse{OK: true})
}
