// Package fsutil holds small filesystem helpers shared by the profile and
// backup stores.
package fsutil

import (
	"io"
	"os"

	"git.home.luguber.info/inful/gundeck/internal/errors"
)

// CopyFile copies src to dst byte-for-byte. The destination is truncated if it
// exists and created with the given mode otherwise. Contents are never parsed,
// so malformed or unusually encoded files survive the round trip.
func CopyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.IOError(err, "failed to open source file")
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.IOError(err, "failed to open destination file")
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.IOError(err, "failed to copy file contents")
	}
	if err := out.Close(); err != nil {
		return errors.IOError(err, "failed to flush destination file")
	}
	return nil
}
