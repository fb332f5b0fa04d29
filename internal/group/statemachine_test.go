package group

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsa110/continuum-pipeline/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestValidTransitionTable(t *testing.T) {
	require.True(t, ValidTransition(store.GroupCollecting, store.GroupPending))
	require.True(t, ValidTransition(store.GroupCollecting, store.GroupFailed))
	require.True(t, ValidTransition(store.GroupPending, store.GroupInProgress))
	require.True(t, ValidTransition(store.GroupInProgress, store.GroupCompleted))
	require.True(t, ValidTransition(store.GroupInProgress, store.GroupPending))
	require.True(t, ValidTransition(store.GroupFailed, store.GroupPending))
	require.False(t, ValidTransition(store.GroupCollecting, store.GroupCompleted))
	require.False(t, ValidTransition(store.GroupAbandoned, store.GroupPending))
}

func TestRunCreatesCollectingGroupWhenIncomplete(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RegisterFile("/a/sb00.hdf5", base, 0, 1000))

	a := New(s, 60, 16, 10*time.Minute)
	require.NoError(t, a.Run(base))

	g, err := s.GetGroup("2025-06-01T00:00:00")
	require.NoError(t, err)
	require.NotNil(t, g)
	require.Equal(t, store.GroupCollecting, g.State)
}

func TestRunMovesToPendingWhenComplete(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for sb := 0; sb < 16; sb++ {
		require.NoError(t, s.RegisterFile("/a/sb"+string(rune('0'+sb))+".hdf5", base.Add(time.Duration(sb)*time.Second), sb, 1000))
	}

	a := New(s, 60, 16, 10*time.Minute)
	require.NoError(t, a.Run(base))

	g, err := s.GetGroup("2025-06-01T00:00:00")
	require.NoError(t, err)
	require.Equal(t, store.GroupPending, g.State)
}

func TestRunMergesLateMemberWhileCollecting(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RegisterFile("/a/sb00.hdf5", base, 0, 1000))

	a := New(s, 60, 16, 10*time.Minute)
	require.NoError(t, a.Run(base))

	require.NoError(t, s.RegisterFile("/a/sb01.hdf5", base.Add(time.Second), 1, 1000))
	require.NoError(t, a.Run(base.Add(time.Second)))

	g, err := s.GetGroup("2025-06-01T00:00:00")
	require.NoError(t, err)
	require.Len(t, g.MemberPaths, 2)
}

func TestRunQuarantinesLateArrivalAfterInProgress(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RegisterFile("/a/sb00.hdf5", base, 0, 1000))

	a := New(s, 60, 16, 10*time.Minute)
	require.NoError(t, a.Run(base))
	require.NoError(t, a.Transition("2025-06-01T00:00:00", store.GroupPending, ""))
	require.NoError(t, a.Transition("2025-06-01T00:00:00", store.GroupInProgress, ""))

	require.NoError(t, s.RegisterFile("/a/sb01.hdf5", base.Add(time.Second), 1, 1000))
	require.NoError(t, a.Run(base.Add(time.Second)))

	original, err := s.GetGroup("2025-06-01T00:00:00")
	require.NoError(t, err)
	require.Len(t, original.MemberPaths, 1, "in_progress group must not be mutated by late arrival")

	groups, err := s.GroupsByState(store.GroupCollecting)
	require.NoError(t, err)
	require.Len(t, groups, 1, "late arrival becomes its own quarantined group")
}

func TestFailStaleCollectingPastTimeout(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RegisterFile("/a/sb00.hdf5", base, 0, 1000))

	a := New(s, 60, 16, 10*time.Minute)
	require.NoError(t, a.Run(base))

	n, err := a.FailStaleCollecting(base.Add(10*time.Minute + time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	g, err := s.GetGroup("2025-06-01T00:00:00")
	require.NoError(t, err)
	require.Equal(t, store.GroupFailed, g.State)
	require.Equal(t, "incomplete", g.LastError)
}

func TestFailStaleCollectingNotYetTimedOut(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RegisterFile("/a/sb00.hdf5", base, 0, 1000))

	a := New(s, 60, 16, 10*time.Minute)
	require.NoError(t, a.Run(base))

	n, err := a.FailStaleCollecting(base.Add(5 * time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
