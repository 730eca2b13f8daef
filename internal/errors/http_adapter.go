package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter converts GundeckErrors into JSON error responses.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates a new HTTP error adapter.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// errorResponse is the wire shape for error payloads.
type errorResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

// StatusCodeFor maps an error category onto an HTTP status code.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	switch GetCategory(err) {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryConflict:
		return http.StatusConflict
	case CategoryStructure:
		return http.StatusUnprocessableEntity
	case CategoryRemote, CategoryService:
		return http.StatusBadGateway
	case CategoryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes err as a JSON error body with the mapped status.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, err error) {
	status := a.StatusCodeFor(err)
	message := err.Error()
	category := ""
	if ge, ok := err.(*GundeckError); ok {
		message = ge.Message
		category = string(ge.Category)
		if ge.Severity != SeverityWarning {
			a.logger.Error("request failed", "category", ge.Category, "error", err)
		}
	} else {
		a.logger.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{OK: false, Error: message, Category: category})
}
