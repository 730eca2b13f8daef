// Package middleware wraps the dashboard API with access logging and panic
// recovery.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	gerrors "git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/logfields"
)

// probePaths are polled by health checks and the metrics scraper; logging
// every hit would drown the access log on a device that is up for months.
var probePaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// Wrap returns the middleware applied around the API mux: panics become a
// JSON error envelope, and every other request is access-logged with its
// status and duration. Server errors log at warn so they stand out when
// tailing the journal.
func Wrap(logger *slog.Logger, adapter *gerrors.HTTPErrorAdapter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panic",
						"panic", rec,
						logfields.Method(r.Method),
						logfields.Path(r.URL.Path),
						logfields.RemoteAddr(r.RemoteAddr))
					if !sw.wrote {
						adapter.WriteErrorResponse(w, gerrors.InternalError("internal server error").
							WithContext("path", r.URL.Path))
					}
					return
				}
				if probePaths[r.URL.Path] {
					return
				}
				level := slog.LevelInfo
				if sw.status >= http.StatusInternalServerError {
					level = slog.LevelWarn
				}
				logger.Log(r.Context(), level, "request",
					logfields.Method(r.Method),
					logfields.Path(r.URL.Path),
					logfields.Status(sw.status),
					logfields.DurationMS(float64(time.Since(start).Milliseconds())),
					logfields.RemoteAddr(r.RemoteAddr))
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

// statusWriter remembers the status line and whether the handler produced any
// response, so the recovery path knows if it may still write one.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.wrote = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wrote = true
	return sw.ResponseWriter.Write(b)
}
