package fileindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFilenameValid(t *testing.T) {
	ts, sb, err := ParseFilename("2025-06-01T00:00:05_sb07.hdf5")
	require.NoError(t, err)
	require.Equal(t, 7, sb)
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 5, 0, time.UTC), ts)
}

func TestParseFilenameMalformed(t *testing.T) {
	_, _, err := ParseFilename("not-a-valid-name.hdf5")
	require.Error(t, err)
}

type fakeRegistrar struct {
	registered []string
}

func (f *fakeRegistrar) RegisterFile(path string, timestamp time.Time, subbandIndex int, sizeBytes int64) error {
	f.registered = append(f.registered, path)
	return nil
}

func TestScanExistingRegistersWellFormedFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "2025-06-01T00:00:00_sb00.hdf5")
	require.NoError(t, os.WriteFile(good, []byte("data"), 0o644))

	reg := &fakeRegistrar{}
	w, err := New(dir, reg)
	require.NoError(t, err)

	require.NoError(t, w.ScanExisting())
	require.Equal(t, []string{good}, reg.registered)
}

func TestScanExistingQuarantinesMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "garbage.hdf5")
	require.NoError(t, os.WriteFile(bad, []byte("data"), 0o644))

	reg := &fakeRegistrar{}
	w, err := New(dir, reg)
	require.NoError(t, err)

	require.NoError(t, w.ScanExisting())
	require.Empty(t, reg.registered)

	_, err = os.Stat(filepath.Join(dir, "quarantine", "garbage.hdf5"))
	require.NoError(t, err, "malformed file should be moved into quarantine/")
}

func TestStartStopIsClean(t *testing.T) {
	dir := t.TempDir()
	reg := &fakeRegistrar{}
	w, err := New(dir, reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	w.Stop()
}
