package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterFileUpsertsOnDuplicateKey(t *testing.T) {
	s := openTestStore(t)
	ts := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.RegisterFile("/incoming/a.hdf5", ts, 3, 100))
	require.NoError(t, s.RegisterFile("/incoming/a.hdf5", ts, 3, 250))

	files, err := s.AllFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, int64(250), files[0].SizeBytes)
}

func TestQueryWindowOrdersByTimestampThenSubband(t *testing.T) {
	s := openTestStore(t)
	base := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.RegisterFile("/incoming/b2.hdf5", base, 2, 10))
	require.NoError(t, s.RegisterFile("/incoming/b1.hdf5", base, 1, 10))
	require.NoError(t, s.RegisterFile("/incoming/a.hdf5", base.Add(-time.Hour), 5, 10))

	files, err := s.QueryWindow(base.Add(-2*time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, "/incoming/a.hdf5", files[0].Path)
	require.Equal(t, "/incoming/b1.hdf5", files[1].Path)
	require.Equal(t, "/incoming/b2.hdf5", files[2].Path)
}

func TestMarkConsumedIsSoftAndIdempotent(t *testing.T) {
	s := openTestStore(t)
	ts := time.Unix(1700000000, 0).UTC()
	require.NoError(t, s.RegisterFile("/incoming/a.hdf5", ts, 0, 10))

	require.NoError(t, s.MarkConsumed([]string{"/incoming/a.hdf5", "/incoming/a.hdf5"}))

	files, err := s.AllFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.True(t, files[0].Consumed)
}

func TestMarkConsumedEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.MarkConsumed(nil))
}
