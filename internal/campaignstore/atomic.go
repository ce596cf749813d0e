package campaignstore

import (
	"os"
	"path/filepath"

	"github.com/tunex-app/tunex/internal/domain"
)

// writeFileAtomic writes data to path via a temp file in the same directory
// followed by a rename, so a crash mid-write never leaves a torn file: the
// visible file is either the old complete version or the new complete one.
// The write is retried once before failing with a *domain.StorageError.
func writeFileAtomic(path string, data []byte) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if lastErr = writeFileAtomicOnce(path, data); lastErr == nil {
			return nil
		}
	}
	return &domain.StorageError{Op: "write", Path: path, Err: lastErr}
}

func writeFileAtomicOnce(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
