package update

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/gundeck/internal/backup"
	"git.home.luguber.info/inful/gundeck/internal/config"
	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/locks"
	"git.home.luguber.info/inful/gundeck/internal/remote"
	"git.home.luguber.info/inful/gundeck/internal/services"
	"git.home.luguber.info/inful/gundeck/internal/task"
)

type fakeRemote struct {
	mu       sync.Mutex
	listings map[string]*remote.Listing
	listErr  error
	failFile string
	started  chan struct{}
	gate     chan struct{}
	payload  string
}

func (f *fakeRemote) ListDir(_ context.Context, dir string) (*remote.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if l, ok := f.listings[dir]; ok {
		return l, nil
	}
	return &remote.Listing{Dir: dir, Status: 404}, nil
}

func (f *fakeRemote) Download(_ context.Context, file remote.RemoteFile, destPath string, mode os.FileMode) error {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if file.Name == f.failFile {
		return errors.RemoteError(nil, "download "+file.Name+": unexpected status 500")
	}
	payload := f.payload
	if payload == "" {
		payload = "data"
	}
	return os.WriteFile(destPath, []byte(payload), mode)
}

func listingOK(dir string, names ...string) *remote.Listing {
	l := &remote.Listing{Dir: dir, Status: 200}
	for _, n := range names {
		l.Files = append(l.Files, remote.RemoteFile{
			Name: n, Type: "file", DownloadURL: "https://example.test/" + n,
		})
	}
	return l
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Platforms: map[string]config.Platform{
			"ps1": {
				ConfigPath: filepath.Join(root, "ps1", "LightgunMono.exe.config"),
				InstallDir: filepath.Join(root, "ps1"),
				RemoteDir:  "PS1",
			},
			"ps2": {
				ConfigPath: filepath.Join(root, "ps2", "LightgunMono2.exe.config"),
				InstallDir: filepath.Join(root, "ps2"),
				RemoteDir:  "PS2",
			},
		},
		DefaultPlatform: "ps2",
		Remote:          config.Remote{Owner: "sinden", Repo: "SindenLightgun", Branch: "main"},
		Services:        []string{"lightgun.service"},
		VersionFile:     filepath.Join(root, "VERSION"),
		OwnerAccount:    "nobody-no-such-account",
	}
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, client RemoteClient) (*Orchestrator, *task.Registry, *services.FakeController) {
	t.Helper()
	reg := task.NewRegistry()
	ctrl := services.NewFake(cfg.Services...)
	o := New(cfg, client, ctrl, reg, backup.NewLedger(locks.New()), nil, nil)
	return o, reg, ctrl
}

func waitDone(t *testing.T, reg *task.Registry, id string) task.Record {
	t.Helper()
	var rec task.Record
	require.Eventually(t, func() bool {
		var ok bool
		rec, ok = reg.Get(id)
		return ok && rec.Done
	}, 5*time.Second, 5*time.Millisecond)
	return rec
}

func TestApplyHappyPath(t *testing.T) {
	cfg := testConfig(t)
	// Only ps2 has a live config to back up.
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Platforms["ps2"].ConfigPath), 0o755))
	require.NoError(t, os.WriteFile(cfg.Platforms["ps2"].ConfigPath, []byte("<configuration/>"), 0o644))

	client := &fakeRemote{listings: map[string]*remote.Listing{
		"Latest/PS1": listingOK("Latest/PS1", "Lightgun.exe", "run.sh"),
		"Latest/PS2": listingOK("Latest/PS2", "Lightgun2.exe"),
	}}
	o, reg, ctrl := newTestOrchestrator(t, cfg, client)

	id, err := o.Apply(context.Background(), "Latest")
	require.NoError(t, err)

	rec := waitDone(t, reg, id)
	require.Empty(t, rec.Error)
	require.False(t, rec.Canceled)
	require.Equal(t, StepDone, rec.Step)
	require.Equal(t, 100, rec.Percent)

	result, ok := rec.Result.(*Result)
	require.True(t, ok)
	require.Equal(t, "latest", result.Channel)
	require.Equal(t, map[string]string{"ps1": "Latest/PS1", "ps2": "Latest/PS2"}, result.RemotePaths)
	require.Len(t, result.Backups, 1)
	require.ElementsMatch(t, []string{"Lightgun.exe", "run.sh"}, result.Downloaded["ps1"])
	require.Equal(t, []string{"Lightgun2.exe"}, result.Downloaded["ps2"])
	require.Empty(t, result.Failed)
	require.Equal(t, map[string]string{"lightgun.service": "restarted"}, result.Restarts)

	// Assets landed with the right modes.
	info, err := os.Stat(filepath.Join(cfg.Platforms["ps1"].InstallDir, "Lightgun.exe"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	// Pre-upgrade backup exists next to the live file.
	require.Contains(t, result.Backups[0], ".upgrade.bak")

	// Version marker carries the resolved channel.
	marker, err := os.ReadFile(cfg.VersionFile)
	require.NoError(t, err)
	require.Equal(t, "latest\n", string(marker))

	require.Equal(t, []string{"restart lightgun.service"}, ctrl.Actions)
}

func TestApplyUnknownAliasFailsBeforeBackup(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Platforms["ps2"].ConfigPath), 0o755))
	require.NoError(t, os.WriteFile(cfg.Platforms["ps2"].ConfigPath, []byte("<configuration/>"), 0o644))

	o, reg, _ := newTestOrchestrator(t, cfg, &fakeRemote{})

	id, err := o.Apply(context.Background(), "bogus")
	require.NoError(t, err)

	rec := waitDone(t, reg, id)
	require.Contains(t, rec.Error, "unsupported channel")
	require.Equal(t, StepError, rec.Step)

	// No backup was taken.
	entries, err := os.ReadDir(filepath.Dir(cfg.Platforms["ps2"].ConfigPath))
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".bak"), e.Name())
	}
}

func TestApplyOldAliasResolvesPreviousDir(t *testing.T) {
	cfg := testConfig(t)
	client := &fakeRemote{listings: map[string]*remote.Listing{
		"Previous/PS1": listingOK("Previous/PS1", "a.bin"),
		"Previous/PS2": listingOK("Previous/PS2", "b.bin"),
	}}
	o, reg, _ := newTestOrchestrator(t, cfg, client)

	for _, alias := range []string{"old", "1"} {
		id, err := o.Apply(context.Background(), alias)
		require.NoError(t, err)
		rec := waitDone(t, reg, id)
		require.Empty(t, rec.Error, alias)
		result := rec.Result.(*Result)
		require.Equal(t, "previous", result.Channel)
		require.Equal(t, "Previous/PS1", result.RemotePaths["ps1"])
	}
}

func TestApplyMissingRemotePathIsFatal(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Platforms["ps1"].InstallDir, 0o755))
	client := &fakeRemote{listings: map[string]*remote.Listing{
		"Latest/PS1": listingOK("Latest/PS1", "a.exe"),
		// Latest/PS2 missing -> 404
	}}
	o, reg, _ := newTestOrchestrator(t, cfg, client)

	id, err := o.Apply(context.Background(), "latest")
	require.NoError(t, err)

	rec := waitDone(t, reg, id)
	require.Contains(t, rec.Error, "Latest/PS2 not found")
	// Nothing was downloaded.
	entries, err := os.ReadDir(cfg.Platforms["ps1"].InstallDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestApplyListingTransportErrorIsFatal(t *testing.T) {
	cfg := testConfig(t)
	client := &fakeRemote{listErr: errors.RemoteError(nil, "connection refused")}
	o, reg, _ := newTestOrchestrator(t, cfg, client)

	id, err := o.Apply(context.Background(), "latest")
	require.NoError(t, err)

	rec := waitDone(t, reg, id)
	require.Contains(t, rec.Error, "connection refused")
	require.Equal(t, StepError, rec.Step)
}

func TestApplyBadStatusCombinesVariantMessages(t *testing.T) {
	cfg := testConfig(t)
	client := &fakeRemote{listings: map[string]*remote.Listing{
		"Latest/PS1": {Dir: "Latest/PS1", Status: 500},
		"Latest/PS2": {Dir: "Latest/PS2", Status: 502},
	}}
	o, reg, _ := newTestOrchestrator(t, cfg, client)

	id, err := o.Apply(context.Background(), "latest")
	require.NoError(t, err)

	rec := waitDone(t, reg, id)
	require.Contains(t, rec.Error, "status 500")
	require.Contains(t, rec.Error, "status 502")
}

func TestApplyForbiddenListingIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	client := &fakeRemote{listings: map[string]*remote.Listing{
		"Latest/PS1": listingOK("Latest/PS1", "a.exe"),
		"Latest/PS2": {Dir: "Latest/PS2", Status: 403},
	}}
	o, reg, _ := newTestOrchestrator(t, cfg, client)

	id, err := o.Apply(context.Background(), "latest")
	require.NoError(t, err)

	rec := waitDone(t, reg, id)
	require.Empty(t, rec.Error)
	result := rec.Result.(*Result)
	require.Equal(t, []string{"a.exe"}, result.Downloaded["ps1"])
	require.Empty(t, result.Downloaded["ps2"])
}

func TestApplyPerFileFailureIsIsolated(t *testing.T) {
	cfg := testConfig(t)
	client := &fakeRemote{
		listings: map[string]*remote.Listing{
			"Latest/PS1": listingOK("Latest/PS1", "good.exe", "bad.exe"),
			"Latest/PS2": listingOK("Latest/PS2", "other.exe"),
		},
		failFile: "bad.exe",
	}
	o, reg, _ := newTestOrchestrator(t, cfg, client)

	id, err := o.Apply(context.Background(), "latest")
	require.NoError(t, err)

	rec := waitDone(t, reg, id)
	require.Empty(t, rec.Error)
	result := rec.Result.(*Result)
	require.Equal(t, []string{"good.exe"}, result.Downloaded["ps1"])
	require.Equal(t, []string{"bad.exe"}, result.Failed["ps1"])
	require.Equal(t, []string{"other.exe"}, result.Downloaded["ps2"])
}

func TestApplyRestartFailureRecordedNotFatal(t *testing.T) {
	cfg := testConfig(t)
	client := &fakeRemote{listings: map[string]*remote.Listing{
		"Latest/PS1": listingOK("Latest/PS1", "a.exe"),
		"Latest/PS2": listingOK("Latest/PS2", "b.exe"),
	}}
	o, reg, ctrl := newTestOrchestrator(t, cfg, client)
	ctrl.FailWith = errors.ServiceError(nil, "restart refused")

	id, err := o.Apply(context.Background(), "latest")
	require.NoError(t, err)

	rec := waitDone(t, reg, id)
	require.Empty(t, rec.Error)
	result := rec.Result.(*Result)
	require.Contains(t, result.Restarts["lightgun.service"], "failed")
}

func TestApplyRefusesConcurrentUpdate(t *testing.T) {
	cfg := testConfig(t)
	gate := make(chan struct{})
	client := &fakeRemote{
		listings: map[string]*remote.Listing{
			"Latest/PS1": listingOK("Latest/PS1", "a.exe"),
			"Latest/PS2": listingOK("Latest/PS2", "b.exe"),
		},
		gate: gate,
	}
	o, reg, _ := newTestOrchestrator(t, cfg, client)

	id, err := o.Apply(context.Background(), "latest")
	require.NoError(t, err)

	_, err = o.Apply(context.Background(), "latest")
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryConflict))

	close(gate)
	waitDone(t, reg, id)

	// A new update may start once the first finished.
	id2, err := o.Apply(context.Background(), "latest")
	require.NoError(t, err)
	waitDone(t, reg, id2)
}

// ctxAwareRemote fails any call whose context is already dead, the way a real
// HTTP client does.
type ctxAwareRemote struct {
	fakeRemote
}

func (f *ctxAwareRemote) ListDir(ctx context.Context, dir string) (*remote.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.RemoteError(err, "list "+dir)
	}
	return f.fakeRemote.ListDir(ctx, dir)
}

func (f *ctxAwareRemote) Download(ctx context.Context, file remote.RemoteFile, destPath string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return errors.RemoteError(err, "download "+file.Name)
	}
	return f.fakeRemote.Download(ctx, file, destPath, mode)
}

func TestApplySurvivesCallerContextCancellation(t *testing.T) {
	cfg := testConfig(t)
	client := &ctxAwareRemote{fakeRemote: fakeRemote{listings: map[string]*remote.Listing{
		"Latest/PS1": listingOK("Latest/PS1", "a.exe"),
		"Latest/PS2": listingOK("Latest/PS2", "b.exe"),
	}}}
	o, reg, _ := newTestOrchestrator(t, cfg, client)

	// The submitting request's context is dead before the worker does any
	// remote work, as happens when an HTTP handler returns its 202.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, err := o.Apply(ctx, "latest")
	require.NoError(t, err)

	rec := waitDone(t, reg, id)
	require.Empty(t, rec.Error)
	require.Equal(t, StepDone, rec.Step)
	result := rec.Result.(*Result)
	require.Equal(t, []string{"a.exe"}, result.Downloaded["ps1"])
	require.Equal(t, []string{"b.exe"}, result.Downloaded["ps2"])
}

func TestReportableChownError(t *testing.T) {
	// Unprivileged runs fail with EPERM and stay quiet.
	require.False(t, reportableChownError(&fs.PathError{Op: "chown", Path: "/x", Err: os.ErrPermission}))
	// Anything else is worth surfacing in the task log.
	require.True(t, reportableChownError(&fs.PathError{Op: "chown", Path: "/x", Err: os.ErrNotExist}))
	require.True(t, reportableChownError(stderrors.New("read-only file system")))
}

func TestCancelDuringDownloads(t *testing.T) {
	cfg := testConfig(t)
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	client := &fakeRemote{
		listings: map[string]*remote.Listing{
			"Latest/PS1": listingOK("Latest/PS1", "a.exe", "b.exe"),
			"Latest/PS2": listingOK("Latest/PS2", "c.exe"),
		},
		gate:    gate,
		started: started,
	}
	o, reg, _ := newTestOrchestrator(t, cfg, client)

	id, err := o.Apply(context.Background(), "latest")
	require.NoError(t, err)

	<-started // first download is in flight
	require.True(t, o.Cancel(id))
	close(gate) // let it finish; the next checkpoint observes the cancel

	rec := waitDone(t, reg, id)
	require.True(t, rec.Canceled)
	require.Equal(t, "Canceled", rec.Error)
	require.Equal(t, StepCanceled, rec.Step)
}
