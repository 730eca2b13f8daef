package settings

import (
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/gundeck/internal/errors"
)

const stubDocument = `<?xml version="1.0" encoding="utf-8"?>` + "\n" +
	`<configuration><appSettings></appSettings></configuration>` + "\n"

// EnsureStub creates a minimal valid settings file if path does not exist.
func EnsureStub(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.IOError(err, "failed to stat settings file")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError(err, "failed to create settings directory")
	}
	if err := os.WriteFile(path, []byte(stubDocument), 0o664); err != nil {
		return errors.IOError(err, "failed to write settings stub")
	}
	return nil
}
