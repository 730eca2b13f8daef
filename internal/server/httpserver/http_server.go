// Package httpserver wires the dashboard API onto one HTTP server.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/gundeck/internal/backup"
	"git.home.luguber.info/inful/gundeck/internal/config"
	gerrors "git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/metrics"
	"git.home.luguber.info/inful/gundeck/internal/profile"
	"git.home.luguber.info/inful/gundeck/internal/server/handlers"
	smw "git.home.luguber.info/inful/gundeck/internal/server/middleware"
	"git.home.luguber.info/inful/gundeck/internal/services"
	"git.home.luguber.info/inful/gundeck/internal/settings"
	"git.home.luguber.info/inful/gundeck/internal/task"
	"git.home.luguber.info/inful/gundeck/internal/taskstore"
	"git.home.luguber.info/inful/gundeck/internal/update"
)

// Options carries the daemon-owned collaborators the server exposes.
type Options struct {
	Patcher  *settings.Patcher
	Profiles *profile.Store
	Ledger   *backup.Ledger
	Registry *task.Registry
	Archive  *taskstore.SQLiteStore
	Orch     *update.Orchestrator
	Ctrl     services.Controller
	Recorder metrics.Recorder
	PromReg  *prom.Registry
}

// Server manages the dashboard HTTP endpoint.
type Server struct {
	cfg  *config.Config
	opts Options
	srv  *http.Server

	configHandlers *handlers.ConfigHandlers
	updateHandlers *handlers.UpdateHandlers
	systemHandlers *handlers.SystemHandlers

	// middleware chain
	mchain func(http.Handler) http.Handler
}

// New constructs a new HTTP server wiring instance.
func New(cfg *config.Config, opts Options) *Server {
	s := &Server{cfg: cfg, opts: opts}

	s.configHandlers = handlers.NewConfigHandlers(cfg, opts.Patcher, opts.Profiles, opts.Ledger, opts.Recorder)
	s.updateHandlers = handlers.NewUpdateHandlers(opts.Orch, opts.Registry, opts.Archive, cfg.VersionFile)
	s.systemHandlers = handlers.NewSystemHandlers(cfg, opts.Ctrl)

	s.mchain = smw.Wrap(slog.Default(), gerrors.NewHTTPErrorAdapter(slog.Default()))
	return s
}

// Handler builds the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.systemHandlers.HandleHealth)
	if s.opts.PromReg != nil {
		mux.Handle("GET /metrics", metrics.HTTPHandler(s.opts.PromReg))
	}

	mux.HandleFunc("GET /api/services", s.systemHandlers.HandleServices)
	mux.HandleFunc("POST /api/service/{name}/{action}", s.systemHandlers.HandleServiceAction)
	mux.HandleFunc("GET /api/logs/{service}", s.systemHandlers.HandleServiceLogs)
	mux.HandleFunc("GET /api/sinden-log", s.systemHandlers.HandleDriverLog)
	mux.HandleFunc("POST /api/system/{action}", s.systemHandlers.HandlePower)

	mux.HandleFunc("GET /api/config", s.configHandlers.HandleConfigGet)
	mux.HandleFunc("POST /api/config/save", s.configHandlers.HandleConfigSave)
	mux.HandleFunc("GET /api/config/profiles", s.configHandlers.HandleProfiles)
	mux.HandleFunc("POST /api/config/profile/save", s.configHandlers.HandleProfileSave)
	mux.HandleFunc("POST /api/config/profile/load", s.configHandlers.HandleProfileLoad)
	mux.HandleFunc("POST /api/config/profile/delete", s.configHandlers.HandleProfileDelete)
	mux.HandleFunc("GET /api/config/backups", s.configHandlers.HandleBackups)
	mux.HandleFunc("POST /api/config/backup/restore", s.configHandlers.HandleBackupRestore)

	mux.HandleFunc("POST /api/update/apply", s.updateHandlers.HandleApply)
	mux.HandleFunc("GET /api/update/status", s.updateHandlers.HandleStatus)
	mux.HandleFunc("GET /api/update/tasks", s.updateHandlers.HandleTasks)
	mux.HandleFunc("GET /api/update/logs", s.updateHandlers.HandleLogs)
	mux.HandleFunc("POST /api/update/cancel", s.updateHandlers.HandleCancel)
	mux.HandleFunc("GET /api/update/version", s.updateHandlers.HandleVersion)

	return s.mchain(mux)
}

// Start binds the port and begins serving. Binding happens up front so an
// occupied port fails fast instead of surfacing from a goroutine later.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.HTTP.Port)
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("api port %d: %w", s.cfg.HTTP.Port, err)
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()
	slog.Info("HTTP server started", slog.Int("port", s.cfg.HTTP.Port))
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}
