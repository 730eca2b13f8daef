// Package update runs the asset-sync workflow: resolve a version alias, back
// up the live settings, list the release directories for every device
// variant, download the assets, and restart the driver services. Progress and
// logs flow into a task registry record; callers poll for status.
package update

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/gundeck/internal/backup"
	"git.home.luguber.info/inful/gundeck/internal/config"
	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/logfields"
	"git.home.luguber.info/inful/gundeck/internal/metrics"
	"git.home.luguber.info/inful/gundeck/internal/remote"
	"git.home.luguber.info/inful/gundeck/internal/services"
	"git.home.luguber.info/inful/gundeck/internal/task"
)

// Step names as they appear in task records.
const (
	StepNormalize = "normalize-version"
	StepBackup    = "backup-configs"
	StepListing   = "list-remote"
	StepDownload  = "downloading"
	StepRestart   = "restart-services"
	StepDone      = "done"
	StepError     = "error"
	StepCanceled  = "canceled"
)

// Progress weights. Downloads advance linearly between their bounds.
const (
	pctNormalize     = 5
	pctBackup        = 10
	pctListing       = 15
	pctDownloadStart = 15
	pctDownloadEnd   = 90
	pctRestart       = 95
)

// execExtensions get the executable bit after download.
var execExtensions = map[string]bool{
	".exe": true,
	".sh":  true,
	".so":  true,
	".bin": true,
}

// RemoteClient is the slice of remote.Client the orchestrator needs.
type RemoteClient interface {
	ListDir(ctx context.Context, dir string) (*remote.Listing, error)
	Download(ctx context.Context, file remote.RemoteFile, destPath string, mode os.FileMode) error
}

// Result is the payload stored on a successful task record.
type Result struct {
	Channel     string              `json:"channel"`
	RemotePaths map[string]string   `json:"remote_paths"`
	Backups     []string            `json:"backups"`
	Downloaded  map[string][]string `json:"downloaded"`
	Failed      map[string][]string `json:"failed,omitempty"`
	Restarts    map[string]string   `json:"restarts"`
}

// Orchestrator owns the update workflow. One update runs at a time; Apply
// refuses a second while the first is active.
type Orchestrator struct {
	cfg    *config.Config
	client RemoteClient
	ctrl   services.Controller
	reg    *task.Registry
	ledger *backup.Ledger
	rec    metrics.Recorder
	log    *slog.Logger

	mu      sync.Mutex
	running bool
}

// New assembles an orchestrator. rec may be nil (noop metrics), log may be
// nil (default logger).
func New(cfg *config.Config, client RemoteClient, ctrl services.Controller, reg *task.Registry, ledger *backup.Ledger, rec metrics.Recorder, log *slog.Logger) *Orchestrator {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		client: client,
		ctrl:   ctrl,
		reg:    reg,
		ledger: ledger,
		rec:    rec,
		log:    log,
	}
}

// Apply starts the workflow for the given version alias and returns the task
// ID. The alias is validated inside the task so a bad alias still leaves an
// inspectable record. A second concurrent update is refused.
//
// The worker outlives the caller: an HTTP request context dies as soon as the
// submitting handler returns, so the goroutine runs on a detached context and
// stops only through the registry's cancellation channel.
func (o *Orchestrator) Apply(ctx context.Context, alias string) (string, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return "", errors.ConflictError("an update task is already running")
	}
	o.running = true
	o.mu.Unlock()

	id, cancelCh := o.reg.Create()
	workerCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			o.mu.Lock()
			o.running = false
			o.mu.Unlock()
		}()
		o.run(workerCtx, id, cancelCh, alias)
	}()
	return id, nil
}

// Cancel requests cooperative cancellation of a task.
func (o *Orchestrator) Cancel(id string) bool {
	return o.reg.Cancel(id)
}

func canceled(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) run(ctx context.Context, id string, cancelCh <-chan struct{}, alias string) {
	start := time.Now()
	o.rec.SetActiveTasks(1)
	defer func() {
		o.rec.SetActiveTasks(0)
		o.rec.ObserveUpdateDuration(time.Since(start))
	}()

	fail := func(step string, err error) {
		o.log.Error("update task failed", logfields.TaskID(id), logfields.Step(step), logfields.Error(err))
		o.reg.Append(id, "ERROR: "+err.Error())
		o.reg.SetStep(id, StepError, -1)
		o.reg.Finish(id, nil, err.Error(), false)
		o.rec.IncTaskOutcome(metrics.OutcomeFailed)
	}
	bail := func(step string) bool {
		if !canceled(cancelCh) {
			return false
		}
		o.log.Info("update task canceled", logfields.TaskID(id), logfields.Step(step))
		o.reg.Append(id, "Canceled")
		o.reg.SetStep(id, StepCanceled, -1)
		o.reg.Finish(id, nil, "Canceled", true)
		o.rec.IncTaskOutcome(metrics.OutcomeCanceled)
		return true
	}

	// Resolve the alias before anything touches the filesystem.
	o.reg.SetStep(id, StepNormalize, 0)
	o.reg.Append(id, "Resolving version "+alias)
	channel, err := NormalizeChannel(alias)
	if err != nil {
		fail(StepNormalize, err)
		return
	}
	o.reg.Append(id, "Resolved channel: "+string(channel))
	o.reg.SetPercent(id, pctNormalize)
	if bail(StepNormalize) {
		return
	}

	platforms := o.cfg.PlatformNames()

	// Pre-upgrade snapshots of every live config that exists.
	o.reg.SetStep(id, StepBackup, pctNormalize)
	var backups []string
	for _, name := range platforms {
		live := o.cfg.Platforms[name].ConfigPath
		if _, statErr := os.Stat(live); statErr != nil {
			o.reg.Append(id, fmt.Sprintf("No config to back up for %s (%s)", name, live))
			continue
		}
		dest, snapErr := o.ledger.Snapshot(live, backup.PurposeUpgrade)
		if snapErr != nil {
			fail(StepBackup, snapErr)
			return
		}
		o.rec.IncBackup(string(backup.PurposeUpgrade))
		backups = append(backups, dest)
		o.reg.Append(id, "Backed up "+live)
	}
	o.reg.SetPercent(id, pctBackup)
	if bail(StepBackup) {
		return
	}

	// List the release directory for every variant.
	o.reg.SetStep(id, StepListing, pctBackup)
	remotePaths := make(map[string]string, len(platforms))
	listings := make(map[string][]remote.RemoteFile, len(platforms))
	var fatal []string
	for _, name := range platforms {
		dir := channel.Dir() + "/" + o.cfg.Platforms[name].RemoteDir
		remotePaths[name] = dir
		listing, listErr := o.client.ListDir(ctx, dir)
		if listErr != nil {
			fatal = append(fatal, fmt.Sprintf("%s: %v", name, listErr))
			continue
		}
		switch listing.Status {
		case 200:
			var files []remote.RemoteFile
			for _, f := range listing.Files {
				if f.Type == "file" {
					files = append(files, f)
				}
			}
			listings[name] = files
			o.reg.Append(id, fmt.Sprintf("Listed %s: %d files", dir, len(files)))
		case 403:
			// Rate limited or private; treated as an empty listing.
			o.reg.Append(id, fmt.Sprintf("Listing %s forbidden (403), skipping", dir))
		case 404:
			fatal = append(fatal, fmt.Sprintf("%s: remote path %s not found", name, dir))
		default:
			fatal = append(fatal, fmt.Sprintf("%s: listing %s returned status %d", name, dir, listing.Status))
		}
	}
	if len(fatal) > 0 {
		fail(StepListing, errors.RemoteError(nil, strings.Join(fatal, "; ")))
		return
	}
	o.reg.SetPercent(id, pctListing)
	if bail(StepListing) {
		return
	}

	// Download everything. Per-file failures are recorded, not fatal.
	o.reg.SetStep(id, StepDownload, pctListing)
	total := 0
	for _, files := range listings {
		total += len(files)
	}
	downloaded := make(map[string][]string, len(platforms))
	failed := make(map[string][]string)
	done := 0
	for _, name := range platforms {
		installDir := o.cfg.Platforms[name].InstallDir
		if len(listings[name]) > 0 {
			if mkErr := os.MkdirAll(installDir, 0o755); mkErr != nil {
				fail(StepDownload, errors.IOError(mkErr, "create "+installDir))
				return
			}
		}
		for _, f := range listings[name] {
			if bail(StepDownload) {
				return
			}
			stepStart := time.Now()
			dest := filepath.Join(installDir, f.Name)
			mode := os.FileMode(0o644)
			if execExtensions[strings.ToLower(filepath.Ext(f.Name))] {
				mode = 0o755
			}
			if dlErr := o.client.Download(ctx, f, dest, mode); dlErr != nil {
				failed[name] = append(failed[name], f.Name)
				o.reg.Append(id, fmt.Sprintf("FAILED %s: %v", f.Name, dlErr))
				o.rec.IncDownloadResult(false)
			} else {
				o.chownToOwner(id, dest)
				downloaded[name] = append(downloaded[name], f.Name)
				o.reg.Append(id, "Downloaded "+f.Name)
				o.rec.IncDownloadResult(true)
			}
			o.rec.ObserveStepDuration(StepDownload, time.Since(stepStart))
			done++
			o.reg.SetPercent(id, downloadPercent(done, total))
		}
	}
	if bail(StepDownload) {
		return
	}

	// Restart driver services. Best effort, outcomes in the result.
	o.reg.SetStep(id, StepRestart, pctDownloadEnd)
	restarts := make(map[string]string, len(o.cfg.Services))
	for _, unit := range o.cfg.Services {
		if rsErr := o.ctrl.Control(ctx, unit, services.ActionRestart); rsErr != nil {
			restarts[unit] = "failed: " + rsErr.Error()
			o.reg.Append(id, fmt.Sprintf("Restart %s failed: %v", unit, rsErr))
		} else {
			restarts[unit] = "restarted"
			o.reg.Append(id, "Restarted "+unit)
		}
	}
	o.reg.SetPercent(id, pctRestart)

	o.writeVersionMarker(id, channel)

	result := &Result{
		Channel:     string(channel),
		RemotePaths: remotePaths,
		Backups:     backups,
		Downloaded:  downloaded,
		Restarts:    restarts,
	}
	if len(failed) > 0 {
		result.Failed = failed
	}
	o.reg.SetStep(id, StepDone, pctRestart)
	o.reg.Append(id, fmt.Sprintf("Update complete: %d files across %d variants", done, len(platforms)))
	o.reg.Finish(id, result, "", false)
	o.rec.IncTaskOutcome(metrics.OutcomeSuccess)
	o.log.Info("update task finished",
		logfields.TaskID(id),
		logfields.Channel(string(channel)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
}

func downloadPercent(done, total int) int {
	if total <= 0 {
		return pctDownloadEnd
	}
	span := pctDownloadEnd - pctDownloadStart
	return pctDownloadStart + span*done/total
}

// chownToOwner hands a downloaded file to the configured account. A missing
// account or a permission error is expected when not running as root and
// stays quiet; any other chown failure goes into the task log.
func (o *Orchestrator) chownToOwner(id, path string) {
	u, err := user.Lookup(o.cfg.OwnerAccount)
	if err != nil {
		return
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return
	}
	if err := os.Chown(path, uid, gid); err != nil && reportableChownError(err) {
		o.reg.Append(id, fmt.Sprintf("Could not chown %s: %v", path, err))
		o.log.Warn("chown failed", logfields.TaskID(id), logfields.Path(path), logfields.Error(err))
	}
}

func reportableChownError(err error) bool {
	return !stderrors.Is(err, os.ErrPermission)
}

// writeVersionMarker records the installed channel. Best effort.
func (o *Orchestrator) writeVersionMarker(id string, channel Channel) {
	if o.cfg.VersionFile == "" {
		return
	}
	if err := os.WriteFile(o.cfg.VersionFile, []byte(string(channel)+"\n"), 0o644); err != nil {
		o.reg.Append(id, fmt.Sprintf("Could not write version marker: %v", err))
		return
	}
	o.reg.Append(id, "Wrote version marker: "+string(channel))
}
