package executor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireScratchCreatesDirAndSentinel(t *testing.T) {
	stateDir := t.TempDir()
	dir, err := AcquireScratch(stateDir, "task-1")
	require.NoError(t, err)
	require.DirExists(t, dir)
	require.FileExists(t, filepath.Join(dir, sentinelName))
}

func TestAcquireScratchGeneratesIDWhenTaskIDEmpty(t *testing.T) {
	stateDir := t.TempDir()
	dir1, err := AcquireScratch(stateDir, "")
	require.NoError(t, err)
	dir2, err := AcquireScratch(stateDir, "")
	require.NoError(t, err)
	require.NotEqual(t, dir1, dir2)
}

func TestPublishArtifactMovesFile(t *testing.T) {
	stateDir := t.TempDir()
	scratch, err := AcquireScratch(stateDir, "task-1")
	require.NoError(t, err)

	src := filepath.Join(scratch, "out.ms")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	dst := filepath.Join(stateDir, "final", "out.ms")
	require.NoError(t, PublishArtifact(src, dst))
	require.FileExists(t, dst)
	require.NoFileExists(t, src)
}

func TestReleaseScratchRemovesDir(t *testing.T) {
	stateDir := t.TempDir()
	dir, err := AcquireScratch(stateDir, "task-1")
	require.NoError(t, err)

	require.NoError(t, ReleaseScratch(stateDir, "task-1"))
	require.NoDirExists(t, dir)
}

func TestSentinelAgeReflectsElapsedTime(t *testing.T) {
	stateDir := t.TempDir()
	dir, err := AcquireScratch(stateDir, "task-1")
	require.NoError(t, err)

	age, err := SentinelAge(dir, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Greater(t, age, 59*time.Minute)
}
