package workspace_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tailor/internal/services"
	"tailor/internal/workspace"
)

func TestEnsureJobDirectoryIsIdempotent(t *testing.T) {
	layout := workspace.New(t.TempDir())
	stages := []string{"enhance", "cover-letter"}

	require.NoError(t, layout.EnsureJobDirectory("job-1", stages))
	require.NoError(t, layout.EnsureJobDirectory("job-1", stages))

	for _, stage := range stages {
		info, err := os.Stat(layout.StageDir("job-1", stage))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEnsureJobDirectoryRejectsUnsafeIDs(t *testing.T) {
	root := t.TempDir()
	layout := workspace.New(root)

	err := layout.EnsureJobDirectory("../escape", []string{"enhance"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))
	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "escape"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteInstructionAtomicallyRoundTrip(t *testing.T) {
	layout := workspace.New(t.TempDir())
	require.NoError(t, layout.EnsureJobDirectory("job-1", []string{"enhance"}))
	path := layout.InstructionPath("job-1", "enhance")

	written, err := workspace.WriteInstructionAtomically(path, []byte("do the thing"))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = workspace.WriteInstructionAtomically(path, []byte("do the thing"))
	require.NoError(t, err)
	assert.False(t, written, "identical content should not be rewritten")

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "do the thing", string(got))
}

func TestConcurrentReaderNeverSeesPartialInstruction(t *testing.T) {
	layout := workspace.New(t.TempDir())
	require.NoError(t, layout.EnsureJobDirectory("job-1", []string{"enhance"}))
	path := layout.InstructionPath("job-1", "enhance")

	versions := [][]byte{
		[]byte(strings.Repeat("a", 64*1024)),
		[]byte(strings.Repeat("b", 96*1024)),
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var bad []string
	var mu sync.Mutex
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			data, present, err := workspace.ReadOutputIfPresent(path)
			if err != nil || !present {
				continue
			}
			if !(len(data) == len(versions[0]) && data[0] == 'a' && data[len(data)-1] == 'a') &&
				!(len(data) == len(versions[1]) && data[0] == 'b' && data[len(data)-1] == 'b') {
				mu.Lock()
				bad = append(bad, string(data[:min(len(data), 8)]))
				mu.Unlock()
			}
		}
	}()

	for i := 0; i < 50; i++ {
		_, err := workspace.WriteInstructionAtomically(path, versions[i%2])
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	assert.Empty(t, bad, "reader observed partial content")
}

func TestReadOutputIfPresent(t *testing.T) {
	layout := workspace.New(t.TempDir())
	require.NoError(t, layout.EnsureJobDirectory("job-1", []string{"enhance"}))
	path := layout.OutputPath("job-1", "enhance", "enhanced.md")

	data, present, err := workspace.ReadOutputIfPresent(path)
	require.NoError(t, err)
	assert.False(t, present)
	assert.Nil(t, data)

	require.NoError(t, workspace.WriteOutputAtomically(path, []byte("# Resume")))
	data, present, err = workspace.ReadOutputIfPresent(path)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "# Resume", string(data))
}

func TestReadOutputDirectoryIsIOError(t *testing.T) {
	layout := workspace.New(t.TempDir())
	path := layout.OutputPath("job-1", "enhance", "enhanced.md")
	require.NoError(t, os.MkdirAll(path, 0o755))

	_, present, err := workspace.ReadOutputIfPresent(path)
	require.Error(t, err)
	assert.False(t, present)
	assert.True(t, errors.Is(err, services.ErrIO))

	_, _, err = workspace.OutputInfo(path)
	assert.True(t, errors.Is(err, services.ErrIO))
}

func TestArchiveArtifactsMovesIntoHistory(t *testing.T) {
	layout := workspace.New(t.TempDir())
	require.NoError(t, layout.EnsureJobDirectory("job-1", []string{"enhance"}))
	instr := layout.InstructionPath("job-1", "enhance")
	out := layout.OutputPath("job-1", "enhance", "enhanced.md")
	require.NoError(t, os.WriteFile(instr, []byte("i"), 0o644))
	require.NoError(t, os.WriteFile(out, []byte("o"), 0o644))

	now := time.Unix(1700000000, 0)
	archived, err := layout.ArchiveArtifacts("job-1", "enhance", []string{workspace.InstructionFileName, "enhanced.md", "missing.md"}, now)
	require.NoError(t, err)
	require.Len(t, archived, 2)

	for _, path := range []string{instr, out} {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), path)
	}
	for _, path := range archived {
		assert.Equal(t, layout.HistoryDir("job-1", "enhance"), filepath.Dir(path))
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}
