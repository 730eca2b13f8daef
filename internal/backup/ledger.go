// Package backup keeps timestamped byte-exact copies of live settings files
// and restores them after validation.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/fsutil"
	"git.home.luguber.info/inful/gundeck/internal/locks"
	"git.home.luguber.info/inful/gundeck/internal/settings"
)

// Purpose scopes a snapshot to the operation that triggered it. The purpose
// lands in the backup filename so a browsing user can tell them apart.
type Purpose string

const (
	// PurposeSave precedes a settings patch.
	PurposeSave Purpose = ""
	// PurposeRestore precedes overwriting the live file from a backup.
	PurposeRestore Purpose = "restore"
	// PurposeQuickRestore precedes overwriting the live file from a profile.
	PurposeQuickRestore Purpose = "quickrestore"
	// PurposeUpgrade precedes a driver asset update.
	PurposeUpgrade Purpose = "upgrade"
)

const backupExt = ".bak"

// Record describes one stored backup.
type Record struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	MTime int64  `json:"mtime"`
	Size  int64  `json:"size"`
}

// Ledger manages the backups directory next to one or more live settings
// files. Destructive operations are serialized per live file through the
// shared keyed lock.
type Ledger struct {
	locks *locks.Keyed
	now   func() time.Time
}

// NewLedger creates a Ledger using the given lock set.
func NewLedger(l *locks.Keyed) *Ledger {
	if l == nil {
		l = locks.New()
	}
	return &Ledger{locks: l, now: time.Now}
}

// Dir returns the backups directory for a live settings file, creating it if
// needed.
func (lg *Ledger) Dir(livePath string) (string, error) {
	dir := filepath.Join(filepath.Dir(livePath), "backups")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.IOError(err, "failed to create backups directory")
	}
	return dir, nil
}

// Snapshot copies the live file byte-for-byte into the backups directory and
// returns the backup path. The filename is derived from the live file's base
// name, a timestamp, and the purpose suffix, so a backup can never be
// restored onto the wrong target.
func (lg *Ledger) Snapshot(livePath string, purpose Purpose) (string, error) {
	dir, err := lg.Dir(livePath)
	if err != nil {
		return "", err
	}
	if err := settings.EnsureStub(livePath); err != nil {
		return "", err
	}

	stamp := lg.now().Format("20060102-150405")
	name := filepath.Base(livePath) + "." + stamp
	if purpose != PurposeSave {
		name += "." + string(purpose)
	}
	name += backupExt

	dst := filepath.Join(dir, name)
	if err := fsutil.CopyFile(livePath, dst, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// List enumerates backups for a live settings file, newest first.
func (lg *Ledger) List(livePath string) ([]Record, error) {
	dir, err := lg.Dir(livePath)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(livePath)

	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.IOError(err, "failed to read backups directory")
	}

	records := make([]Record, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		if !strings.HasPrefix(name, base+".") || !strings.HasSuffix(name, backupExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue // removed concurrently
		}
		records = append(records, Record{
			Name:  name,
			Path:  filepath.Join(dir, name),
			MTime: info.ModTime().Unix(),
			Size:  info.Size(),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].MTime > records[j].MTime })
	return records, nil
}

// Restore overwrites the live file with the named backup, taking one more
// safety snapshot of the current live file first. The filename must be a bare
// name matching this live file's backup convention.
func (lg *Ledger) Restore(livePath, filename string) (safetyBackup string, err error) {
	if err := validateBackupName(livePath, filename); err != nil {
		return "", err
	}

	dir, err := lg.Dir(livePath)
	if err != nil {
		return "", err
	}
	src := filepath.Join(dir, filename)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return "", errors.NotFoundError("backup not found").WithContext("filename", filename)
	}

	err = lg.locks.WithPath(livePath, func() error {
		var serr error
		safetyBackup, serr = lg.Snapshot(livePath, PurposeRestore)
		if serr != nil {
			return serr
		}
		return fsutil.CopyFile(src, livePath, 0o664)
	})
	if err != nil {
		return "", err
	}
	return safetyBackup, nil
}

// Prune deletes all but the newest keep backups for a live settings file and
// returns how many were removed.
func (lg *Ledger) Prune(livePath string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	records, err := lg.List(livePath)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, rec := range records[min(keep, len(records)):] {
		if err := os.Remove(rec.Path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// validateBackupName rejects traversal attempts and backups belonging to a
// different live file.
func validateBackupName(livePath, filename string) error {
	if filename == "" || strings.ContainsAny(filename, `/\`) {
		return errors.ValidationError("invalid backup filename")
	}
	base := filepath.Base(livePath)
	if !strings.HasPrefix(filename, base+".") || !strings.HasSuffix(filename, backupExt) {
		return errors.ValidationError(fmt.Sprintf("not a valid backup for %s", base))
	}
	return nil
}
