// Package daemon assembles the dashboard: stores, task registry, update
// orchestrator, HTTP server, retention sweeps, and the settings file watcher.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/gundeck/internal/backup"
	"git.home.luguber.info/inful/gundeck/internal/config"
	"git.home.luguber.info/inful/gundeck/internal/locks"
	"git.home.luguber.info/inful/gundeck/internal/logfields"
	"git.home.luguber.info/inful/gundeck/internal/metrics"
	"git.home.luguber.info/inful/gundeck/internal/profile"
	"git.home.luguber.info/inful/gundeck/internal/remote"
	"git.home.luguber.info/inful/gundeck/internal/server/httpserver"
	"git.home.luguber.info/inful/gundeck/internal/services"
	"git.home.luguber.info/inful/gundeck/internal/settings"
	"git.home.luguber.info/inful/gundeck/internal/task"
	"git.home.luguber.info/inful/gundeck/internal/taskstore"
	"git.home.luguber.info/inful/gundeck/internal/update"
)

// Options tweak daemon construction.
type Options struct {
	// HistoryPath is the sqlite task archive location. Empty disables the
	// archive.
	HistoryPath string
	// Controller overrides the systemd controller (tests).
	Controller services.Controller
	// RemoteClient overrides the release repository client (tests).
	RemoteClient update.RemoteClient
}

// newSettingsWatcher is swapped in tests to exercise construction failures.
var newSettingsWatcher = NewSettingsWatcher

// Daemon owns the long-running pieces of the dashboard.
type Daemon struct {
	cfg *config.Config
	log *slog.Logger

	registry *task.Registry
	archive  *taskstore.SQLiteStore
	orch     *update.Orchestrator
	ledger   *backup.Ledger
	server   *httpserver.Server
	sweeps   *Sweeps
	watcher  *SettingsWatcher
	rec      metrics.Recorder
}

// New wires a daemon from configuration.
func New(cfg *config.Config, log *slog.Logger, opts Options) (*Daemon, error) {
	if log == nil {
		log = slog.Default()
	}

	promReg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(promReg)

	keyed := locks.New()
	ledger := backup.NewLedger(keyed)
	profiles := profile.NewStore(keyed, ledger)
	patcher := settings.NewPatcher(keyed)

	var archive *taskstore.SQLiteStore
	if opts.HistoryPath != "" {
		var err error
		archive, err = taskstore.New(opts.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("open task archive: %w", err)
		}
	}

	regOpts := []task.Option{
		task.WithCap(cfg.Retention.TaskCap),
		task.WithLogLines(cfg.Retention.TaskLogLines),
	}
	if archive != nil {
		regOpts = append(regOpts, task.WithFinishHook(func(rec task.Record) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := archive.Archive(ctx, rec); err != nil {
				log.Warn("failed to archive task", logfields.TaskID(rec.ID), logfields.Error(err))
			}
		}))
	}
	registry := task.NewRegistry(regOpts...)

	ctrl := opts.Controller
	if ctrl == nil {
		ctrl = services.NewSystemd(cfg.Services, time.Duration(cfg.Timeouts.ServiceSeconds)*time.Second)
	}
	client := opts.RemoteClient
	if client == nil {
		client = remote.New(cfg.Remote.Owner, cfg.Remote.Repo, cfg.Remote.Branch,
			time.Duration(cfg.Timeouts.ListSeconds)*time.Second,
			time.Duration(cfg.Timeouts.DownloadSeconds)*time.Second)
	}

	orch := update.New(cfg, client, ctrl, registry, ledger, rec, log)

	server := httpserver.New(cfg, httpserver.Options{
		Patcher:  patcher,
		Profiles: profiles,
		Ledger:   ledger,
		Registry: registry,
		Archive:  archive,
		Orch:     orch,
		Ctrl:     ctrl,
		Recorder: rec,
		PromReg:  promReg,
	})

	watcher, err := newSettingsWatcher(cfg, rec, log)
	if err != nil {
		if archive != nil {
			_ = archive.Close()
		}
		return nil, err
	}
	sweeps, err := NewSweeps(cfg, ledger, registry, archive, log)
	if err != nil {
		_ = watcher.Stop()
		if archive != nil {
			_ = archive.Close()
		}
		return nil, err
	}

	return &Daemon{
		cfg:      cfg,
		log:      log,
		registry: registry,
		archive:  archive,
		orch:     orch,
		ledger:   ledger,
		server:   server,
		sweeps:   sweeps,
		watcher:  watcher,
		rec:      rec,
	}, nil
}

// Start brings up the HTTP server, the sweeps, and the file watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.server.Start(ctx); err != nil {
		return err
	}
	d.sweeps.Start()
	if err := d.watcher.Start(ctx); err != nil {
		// A failed watcher degrades observability but not function.
		d.log.Warn("settings watcher unavailable", logfields.Error(err))
	}
	d.log.Info("daemon started", "platforms", d.cfg.PlatformNames())
	return nil
}

// Stop tears everything down in reverse order.
func (d *Daemon) Stop(ctx context.Context) error {
	var firstErr error
	if err := d.watcher.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.sweeps.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.server.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if d.archive != nil {
		if err := d.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.log.Info("daemon stopped")
	return firstErr
}

// Run starts the daemon and blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.Stop(stopCtx)
}
