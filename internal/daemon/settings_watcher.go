package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/gundeck/internal/config"
	"git.home.luguber.info/inful/gundeck/internal/logfields"
	"git.home.luguber.info/inful/gundeck/internal/metrics"
)

// SettingsWatcher monitors the live settings files for modifications made
// outside the dashboard, typically a driver restart or a manual edit over SSH.
// Changes are logged and counted; the dashboard itself also triggers events
// when it patches a file, so the counter is an upper bound on external edits.
type SettingsWatcher struct {
	paths        map[string]string // absolute live path -> platform name
	watcher      *fsnotify.Watcher
	rec          metrics.Recorder
	log          *slog.Logger
	mu           sync.Mutex
	lastReported map[string]time.Time
	stopChan     chan struct{}
	debounceTime time.Duration
}

// NewSettingsWatcher creates a watcher over every configured platform's
// settings file. Files do not have to exist yet.
func NewSettingsWatcher(cfg *config.Config, rec metrics.Recorder, log *slog.Logger) (*SettingsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	paths := make(map[string]string, len(cfg.Platforms))
	for name, p := range cfg.Platforms {
		abs, err := filepath.Abs(p.ConfigPath)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to resolve settings path for %s: %w", name, err)
		}
		paths[abs] = name
	}

	return &SettingsWatcher{
		paths:        paths,
		watcher:      watcher,
		rec:          rec,
		log:          log,
		lastReported: make(map[string]time.Time),
		stopChan:     make(chan struct{}),
		debounceTime: 2 * time.Second,
	}, nil
}

// Start begins monitoring. Watching the containing directories is more
// reliable than watching the files directly, since editors and patchers
// replace files via rename.
func (sw *SettingsWatcher) Start(ctx context.Context) error {
	dirs := make(map[string]struct{})
	for p := range sw.paths {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := sw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch settings directory %s: %w", dir, err)
		}
	}

	sw.log.Info("starting settings watcher", "files", len(sw.paths))
	go sw.watchLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (sw *SettingsWatcher) Stop() error {
	close(sw.stopChan)
	return sw.watcher.Close()
}

func (sw *SettingsWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopChan:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			platform, watched := sw.paths[event.Name]
			if !watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			sw.report(platform, event.Name)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.log.Error("settings watcher error", logfields.Error(err))
		}
	}
}

// report logs one change per debounce window per file. A single save can
// emit several filesystem events in quick succession.
func (sw *SettingsWatcher) report(platform, path string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	if last, ok := sw.lastReported[path]; ok && now.Sub(last) < sw.debounceTime {
		return
	}
	sw.lastReported[path] = now

	sw.log.Info("settings file changed on disk",
		logfields.Platform(platform),
		logfields.Path(path))
	sw.rec.IncExternalChange()
}
