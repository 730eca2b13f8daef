// Package profile stores named byte-exact snapshots of a live settings file.
package profile

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"git.home.luguber.info/inful/gundeck/internal/backup"
	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/fsutil"
	"git.home.luguber.info/inful/gundeck/internal/locks"
	"git.home.luguber.info/inful/gundeck/internal/settings"
)

const profileExt = ".config"

// nameRe bounds profile names to a safe charset; anything capable of path
// traversal is rejected before touching the filesystem.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,60}$`)

// Record describes one stored profile.
type Record struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	MTime int64  `json:"mtime"`
}

// Store manages the profiles directory next to a live settings file. Profiles
// are copied byte-for-byte, never parsed.
type Store struct {
	locks  *locks.Keyed
	ledger *backup.Ledger
}

// NewStore creates a Store sharing the keyed lock and backup ledger with the
// other writers of the live file.
func NewStore(l *locks.Keyed, ledger *backup.Ledger) *Store {
	if l == nil {
		l = locks.New()
	}
	return &Store{locks: l, ledger: ledger}
}

// ValidateName checks a user-supplied profile name.
func ValidateName(name string) error {
	if name == "" {
		return errors.ValidationError("profile name is required")
	}
	if !nameRe.MatchString(name) {
		return errors.ValidationError("invalid profile name: use letters, digits, _ or -, max 60 chars")
	}
	return nil
}

// dir returns the profiles directory for a live settings file, creating it if
// needed.
func (s *Store) dir(livePath string) (string, error) {
	dir := filepath.Join(filepath.Dir(livePath), "profiles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.IOError(err, "failed to create profiles directory")
	}
	return dir, nil
}

// path resolves the on-disk location of a named profile.
func (s *Store) path(livePath, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dir, err := s.dir(livePath)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+profileExt), nil
}

// Path resolves the on-disk location of a named profile after validating the
// name.
func (s *Store) Path(livePath, name string) (string, error) {
	return s.path(livePath, name)
}

// Save copies the live file into a named profile. Without overwrite, an
// existing profile of the same name is a conflict.
func (s *Store) Save(livePath, name string, overwrite bool) (string, error) {
	dst, err := s.path(livePath, name)
	if err != nil {
		return "", err
	}
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return "", errors.ConflictError("profile already exists").WithContext("profile", name)
		}
	}

	err = s.locks.WithPath(livePath, func() error {
		if err := settings.EnsureStub(livePath); err != nil {
			return err
		}
		return fsutil.CopyFile(livePath, dst, 0o664)
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}

// Load overwrites the live file with the named profile, snapshotting the live
// file into the backup ledger first.
func (s *Store) Load(livePath, name string) (backupPath string, err error) {
	src, err := s.path(livePath, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return "", errors.NotFoundError("profile not found").WithContext("profile", name)
	}

	err = s.locks.WithPath(livePath, func() error {
		var berr error
		backupPath, berr = s.ledger.Snapshot(livePath, backup.PurposeQuickRestore)
		if berr != nil {
			return berr
		}
		return fsutil.CopyFile(src, livePath, 0o664)
	})
	if err != nil {
		return "", err
	}
	return backupPath, nil
}

// List enumerates profiles for a live settings file, newest first.
func (s *Store) List(livePath string) ([]Record, error) {
	dir, err := s.dir(livePath)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.IOError(err, "failed to read profiles directory")
	}

	records := make([]Record, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		if !strings.HasSuffix(name, profileExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		records = append(records, Record{
			Name:  strings.TrimSuffix(name, profileExt),
			Path:  filepath.Join(dir, name),
			MTime: info.ModTime().Unix(),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].MTime > records[j].MTime })
	return records, nil
}

// Delete removes a named profile.
func (s *Store) Delete(livePath, name string) error {
	path, err := s.path(livePath, name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return errors.NotFoundError("profile not found").WithContext("profile", name)
	}
	if err := os.Remove(path); err != nil {
		return errors.IOError(err, "failed to delete profile")
	}
	return nil
}
