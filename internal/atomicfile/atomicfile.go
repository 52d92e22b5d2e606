// Package atomicfile provides the write-then-rename primitive the
// persisted pipeline status and config files rely on for crash safety.
// Nothing in the example corpus's fileutil wraps this (shared/fileutil.WriteFile
// writes in place), so this one helper is stdlib-only by necessity.
package atomicfile

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteFile writes data to a temp file in the same directory as path, syncs
// it, then renames it over path. On POSIX, rename is atomic: a crash mid-write
// leaves the temp file orphaned but never corrupts an existing path.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "could not create parent directory")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "could not create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "could not write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "could not sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "could not close temp file")
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return errors.Wrap(err, "could not set temp file permissions")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "could not rename temp file into place")
	}
	return nil
}
