package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/gundeck/internal/backup"
	"git.home.luguber.info/inful/gundeck/internal/config"
	"git.home.luguber.info/inful/gundeck/internal/logfields"
	"git.home.luguber.info/inful/gundeck/internal/task"
	"git.home.luguber.info/inful/gundeck/internal/taskstore"
)

const (
	backupSweepInterval  = time.Hour
	evictSweepInterval   = 10 * time.Minute
	archiveSweepInterval = time.Hour
)

// Sweeps runs the periodic retention jobs: backup pruning per platform,
// finished-task eviction from the registry, and archive row pruning.
type Sweeps struct {
	scheduler gocron.Scheduler
	cfg       *config.Config
	ledger    *backup.Ledger
	registry  *task.Registry
	archive   *taskstore.SQLiteStore
	log       *slog.Logger
}

// NewSweeps creates the retention scheduler. Jobs do not run until Start.
func NewSweeps(cfg *config.Config, ledger *backup.Ledger, registry *task.Registry, archive *taskstore.SQLiteStore, log *slog.Logger) (*Sweeps, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	sw := &Sweeps{
		scheduler: s,
		cfg:       cfg,
		ledger:    ledger,
		registry:  registry,
		archive:   archive,
		log:       log,
	}

	if _, err := s.NewJob(
		gocron.DurationJob(backupSweepInterval),
		gocron.NewTask(sw.pruneBackups),
		gocron.WithName("backup-prune"),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to schedule backup prune: %w", err)
	}
	if _, err := s.NewJob(
		gocron.DurationJob(evictSweepInterval),
		gocron.NewTask(sw.evictFinished),
		gocron.WithName("task-evict"),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to schedule task eviction: %w", err)
	}
	if archive != nil {
		if _, err := s.NewJob(
			gocron.DurationJob(archiveSweepInterval),
			gocron.NewTask(sw.pruneArchive),
			gocron.WithName("archive-prune"),
		); err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("failed to schedule archive prune: %w", err)
		}
	}

	return sw, nil
}

// Start begins the scheduler.
func (sw *Sweeps) Start() {
	sw.log.Info("starting retention sweeps")
	sw.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (sw *Sweeps) Stop() error {
	sw.log.Info("stopping retention sweeps")
	return sw.scheduler.Shutdown()
}

func (sw *Sweeps) pruneBackups() {
	keep := sw.cfg.Retention.BackupsPerPlatform
	for name, p := range sw.cfg.Platforms {
		removed, err := sw.ledger.Prune(p.ConfigPath, keep)
		if err != nil {
			sw.log.Warn("backup prune failed", logfields.Platform(name), logfields.Error(err))
			continue
		}
		if removed > 0 {
			sw.log.Info("pruned backups", logfields.Platform(name), "removed", removed)
		}
	}
}

func (sw *Sweeps) evictFinished() {
	if evicted := sw.registry.EvictFinished(); evicted > 0 {
		sw.log.Info("evicted finished tasks", "evicted", evicted)
	}
}

func (sw *Sweeps) pruneArchive() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	removed, err := sw.archive.Prune(ctx, sw.cfg.Retention.HistoryRows)
	if err != nil {
		sw.log.Warn("archive prune failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		sw.log.Info("pruned task archive", "removed", removed)
	}
}
