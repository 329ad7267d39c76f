package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a temp file in the destination directory,
// syncs it, and renames it over path. Readers observe either the previous
// content or the complete new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return abortTemp(tmp, fmt.Errorf("write temp file: %w", err))
	}
	return commitTemp(tmp, path, perm)
}

func commitTemp(tmp *os.File, path string, perm os.FileMode) error {
	tmpName := tmp.Name()
	if err := tmp.Chmod(perm); err != nil {
		return abortTemp(tmp, fmt.Errorf("chmod temp file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return abortTemp(tmp, fmt.Errorf("sync temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func abortTemp(tmp *os.File, err error) error {
	_ = tmp.Close()
	_ = os.Remove(tmp.Name())
	return err
}
