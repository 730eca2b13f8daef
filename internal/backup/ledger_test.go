package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/locks"
)

func liveFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "LightgunMono.exe.config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o664))
	return path
}

// tickingLedger returns a ledger whose clock advances one second per
// snapshot, so filenames never collide inside one test.
func tickingLedger() *Ledger {
	lg := NewLedger(locks.New())
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	n := 0
	lg.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return lg
}

func TestSnapshot_ByteExactCopyWithPurposeSuffix(t *testing.T) {
	live := liveFile(t, "<configuration><appSettings></appSettings></configuration>")
	lg := tickingLedger()

	path, err := lg.Snapshot(live, PurposeUpgrade)
	require.NoError(t, err)
	require.Equal(t, "LightgunMono.exe.config.20260314-092654.upgrade.bak", filepath.Base(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := os.ReadFile(live)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSnapshot_PlainSaveHasNoPurposeSegment(t *testing.T) {
	live := liveFile(t, "x")
	lg := tickingLedger()

	path, err := lg.Snapshot(live, PurposeSave)
	require.NoError(t, err)
	require.Equal(t, "LightgunMono.exe.config.20260314-092654.bak", filepath.Base(path))
}

func TestList_SortedByMTimeDescending(t *testing.T) {
	live := liveFile(t, "v1")
	lg := tickingLedger()

	first, err := lg.Snapshot(live, PurposeSave)
	require.NoError(t, err)
	second, err := lg.Snapshot(live, PurposeSave)
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(first, old, old))

	records, err := lg.List(live)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, filepath.Base(second), records[0].Name)
	require.Equal(t, filepath.Base(first), records[1].Name)
	require.Equal(t, int64(2), records[0].Size)
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	live := liveFile(t, "v1")
	lg := tickingLedger()
	_, err := lg.Snapshot(live, PurposeSave)
	require.NoError(t, err)

	dir, err := lg.Dir(live)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Other.config.20260101-000000.bak"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	records, err := lg.List(live)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestRestore_TakesSafetySnapshotBeforeOverwriting(t *testing.T) {
	live := liveFile(t, "current")
	lg := tickingLedger()

	backupPath, err := lg.Snapshot(live, PurposeSave)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(live, []byte("changed since backup"), 0o664))

	safety, err := lg.Restore(live, filepath.Base(backupPath))
	require.NoError(t, err)

	// Live file now holds the backup contents.
	got, err := os.ReadFile(live)
	require.NoError(t, err)
	require.Equal(t, "current", string(got))

	// The safety snapshot holds what was live just before the overwrite.
	saved, err := os.ReadFile(safety)
	require.NoError(t, err)
	require.Equal(t, "changed since backup", string(saved))
	require.Contains(t, filepath.Base(safety), ".restore.bak")
}

func TestRestore_RejectsTraversalAndForeignNames(t *testing.T) {
	live := liveFile(t, "x")
	lg := tickingLedger()

	for _, name := range []string{
		"",
		"../LightgunMono.exe.config.20260101-000000.bak",
		`..\evil.bak`,
		"Other.config.20260101-000000.bak",
		"LightgunMono.exe.config.20260101-000000.txt",
	} {
		_, err := lg.Restore(live, name)
		require.Error(t, err, "name %q", name)
		require.True(t, errors.IsCategory(err, errors.CategoryValidation), "name %q", name)
	}
}

func TestRestore_MissingBackupIsNotFound(t *testing.T) {
	live := liveFile(t, "x")
	lg := tickingLedger()

	_, err := lg.Restore(live, "LightgunMono.exe.config.20260101-000000.bak")
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestPrune_KeepsNewest(t *testing.T) {
	live := liveFile(t, "x")
	lg := tickingLedger()

	var paths []string
	for i := 0; i < 5; i++ {
		p, err := lg.Snapshot(live, PurposeSave)
		require.NoError(t, err)
		// Spread mtimes so ordering is deterministic.
		mt := time.Now().Add(time.Duration(i-5) * time.Minute)
		require.NoError(t, os.Chtimes(p, mt, mt))
		paths = append(paths, p)
	}

	removed, err := lg.Prune(live, 2)
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	records, err := lg.List(live)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, filepath.Base(paths[4]), records[0].Name)
}
