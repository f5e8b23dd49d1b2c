// Package atomicfile writes files so that readers only ever observe the old
// or the new content, never a partial write.
package atomicfile

import (
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// WriteFile writes data to a temporary file in the same directory as path,
// syncs it and renames it over path. On any failure the temporary file is
// removed and path is left untouched.
func WriteFile(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	if err := fs.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create temporary file in %s", dir)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := fs.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("failed to remove temporary file %s: %v", tmpName, err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close %s", tmpName)
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		return pkgerrors.Wrapf(err, "failed to chmod %s", tmpName)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		return pkgerrors.Wrapf(err, "failed to rename %s to %s", tmpName, path)
	}

	committed = true
	return nil
}
