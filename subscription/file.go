package subscription

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/errors"
	renameio "github.com/google/renameio/v2"
)

// writeFile atomically replaces the contents of the file at path with data.
func writeFile(path string, data []byte) (err error) {
	tmpDir := renameio.TempDir(filepath.Dir(path))
	tmpFile, err := renameio.TempFile(tmpDir, path)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() { err = withDeferredTmpCleanup(err, tmpFile) }()

	_, err = tmpFile.Write(data)
	if err != nil {
		return fmt.Errorf("writing temporary file: %w", err)
	}

	return nil
}

// withDeferredTmpCleanup is a helper that performs the necessary cleanups and
// finalizations of the temporary files based on the returned error.
func withDeferredTmpCleanup(returned error, tmpFile *renameio.PendingFile) (err error) {
	// Make sure that any error returned from here is marked as a deferred one.
	if returned != nil {
		return errors.WithDeferred(returned, tmpFile.Cleanup())
	}

	return errors.WithDeferred(nil, tmpFile.CloseAtomicallyReplace())
}

// removeFile removes the file at path.  It is not an error if the file does
// not exist.
func removeFile(path string) (err error) {
	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %q: %w", path, err)
	}

	return nil
}
