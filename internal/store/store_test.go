package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenStampsSchemaVersion(t *testing.T) {
	s := openTestStore(t)
	version, err := s.schemaVersion()
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, version)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	version, err := s2.schemaVersion()
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, version)
}

func TestOpenRejectsMismatchedSchemaVersion(t *testing.T) {
	s := openTestStore(t)
	_, err := s.writeDB.Exec(`UPDATE schema_meta SET version = 999`)
	require.NoError(t, err)

	err = s.runMigrations()
	require.Error(t, err)
	var migErr *DatabaseMigrationError
	require.ErrorAs(t, err, &migErr)
	require.Equal(t, 999, migErr.FoundVersion)
}

func TestWithWriteSerializesConcurrentWriters(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(n int) {
			path := "file"
			if n == 1 {
				path = "file2"
			}
			done <- s.RegisterFile(path, now.Add(time.Duration(n)*time.Second), n, 100)
		}(i)
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}
}
