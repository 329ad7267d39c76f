package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"tailor/internal/fileutil"
	"tailor/internal/services"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// EnsureJobDirectory creates the job directory and one directory per stage.
// Calling it again for an existing job is a no-op.
func (l Layout) EnsureJobDirectory(jobID string, stages []string) error {
	if err := ValidateSegment("job id", jobID); err != nil {
		return err
	}
	if err := os.MkdirAll(l.JobDir(jobID), dirPerm); err != nil {
		return services.Wrap(services.ErrIO, "", "create job directory", jobID, err)
	}
	for _, stage := range stages {
		if err := ValidateSegment("stage name", stage); err != nil {
			return err
		}
		if err := os.MkdirAll(l.StageDir(jobID, stage), dirPerm); err != nil {
			return services.Wrap(services.ErrIO, stage, "create stage directory", jobID, err)
		}
	}
	return nil
}

// WriteInstructionAtomically places content at path via temp file and rename.
// It returns written=false when path already holds identical bytes.
func WriteInstructionAtomically(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil && bytes.Equal(existing, content):
		return false, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return false, services.Wrap(services.ErrIO, "", "read instruction", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return false, services.Wrap(services.ErrIO, "", "write instruction", path, err)
	}
	if err := fileutil.WriteFileAtomic(path, content, filePerm); err != nil {
		return false, services.Wrap(services.ErrIO, "", "write instruction", path, err)
	}
	return true, nil
}

// WriteOutputAtomically places an operator-supplied output artifact.
func WriteOutputAtomically(path string, content []byte) error {
	if err := fileutil.WriteFileAtomic(path, content, filePerm); err != nil {
		return services.Wrap(services.ErrIO, "", "write output", path, err)
	}
	return nil
}

// ReadOutputIfPresent returns the artifact content and true when it exists.
// Absence is (nil, false, nil); only genuine I/O failures return an error.
func ReadOutputIfPresent(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	return nil, false, services.Wrap(services.ErrIO, "", "read output", path, err)
}

// OutputInfo reports presence and modification time without reading content.
func OutputInfo(path string) (present bool, modTime time.Time, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, services.Wrap(services.ErrIO, "", "stat output", path, err)
	}
	if info.IsDir() {
		return false, time.Time{}, services.Wrap(services.ErrIO, "", "stat output", fmt.Sprintf("%s is a directory", path), nil)
	}
	return true, info.ModTime(), nil
}

// RemoveInstruction deletes an instruction artifact, ignoring absence.
func RemoveInstruction(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrIO, "", "remove instruction", path, err)
	}
	return nil
}

// ArchiveArtifacts moves the given stage files into the stage history
// directory, prefixing them with the archive time. Missing files are skipped.
// It returns the archived destinations.
func (l Layout) ArchiveArtifacts(jobID, stage string, names []string, now time.Time) ([]string, error) {
	var archived []string
	prefix := strconv.FormatInt(now.UnixNano(), 10)
	for _, name := range names {
		src := filepath.Join(l.StageDir(jobID, stage), name)
		if _, err := os.Stat(src); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return archived, services.Wrap(services.ErrIO, stage, "archive artifact", src, err)
		}
		dir := l.HistoryDir(jobID, stage)
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return archived, services.Wrap(services.ErrIO, stage, "archive artifact", dir, err)
		}
		dst := filepath.Join(dir, prefix+"-"+name)
		if err := os.Rename(src, dst); err != nil {
			return archived, services.Wrap(services.ErrIO, stage, "archive artifact", src, err)
		}
		archived = append(archived, dst)
	}
	return archived, nil
}
