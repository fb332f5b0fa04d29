package group

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsa110/continuum-pipeline/internal/store"
)

func rawFile(ts time.Time, sb int, size int64) store.RawFile {
	return store.RawFile{Path: ts.Format(time.RFC3339) + "_sb.hdf5", Timestamp: ts, SubbandIndex: sb, SizeBytes: size}
}

func happyPath16(base time.Time, step time.Duration) []store.RawFile {
	var files []store.RawFile
	for sb := 0; sb < 16; sb++ {
		files = append(files, rawFile(base.Add(time.Duration(sb)*step), sb, 1000))
	}
	return files
}

func TestAssembleHappyPathSingleGroup(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	files := happyPath16(base, time.Second)

	clusters := Assemble(files, 60)
	require.Len(t, clusters, 1)
	require.Equal(t, "2025-06-01T00:00:00", clusters[0].GroupID())
	require.Len(t, clusters[0].Members, 16)
}

func TestAssembleJitterStillOneGroup(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var files []store.RawFile
	offsets := []int{0, 3, 6, 9, 13, 16, 19, 22, 25, 28, 31, 35, 38, 41, 44, 47}
	for sb, off := range offsets {
		files = append(files, rawFile(base.Add(time.Duration(off)*time.Second), sb, 1000))
	}

	clusters := Assemble(files, 60)
	require.Len(t, clusters, 1)
	require.Equal(t, "2025-06-01T00:00:00", clusters[0].GroupID())
}

func TestAssembleSplitAtToleranceBoundary(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	exact := []store.RawFile{
		rawFile(base, 0, 1000),
		rawFile(base.Add(60*time.Second), 1, 1000), // exactly at tolerance: same cluster
	}
	clusters := Assemble(exact, 60)
	require.Len(t, clusters, 1, "files differing by exactly tolerance_s belong together")

	over := []store.RawFile{
		rawFile(base, 0, 1000),
		rawFile(base.Add(61*time.Second), 1, 1000), // strictly beyond tolerance: new cluster
	}
	clusters = Assemble(over, 60)
	require.Len(t, clusters, 2, "files differing by more than tolerance_s must split")
}

func TestAssembleSplitAtToleranceSeedScenario(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	files := happyPath16(base, time.Second)
	// sb15 arrives 90s after sb00, 30s beyond the 60s tolerance.
	files[15] = rawFile(base.Add(90*time.Second), 15, 1000)

	clusters := Assemble(files, 60)
	require.Len(t, clusters, 2)
	require.Len(t, clusters[0].Members, 15, "first cluster missing sb15")
	require.Len(t, clusters[1].Members, 1, "second cluster has only the late sb15")
}

func TestAssembleDuplicateSubbandKeepsLarger(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	files := []store.RawFile{
		{Path: "/a/small.hdf5", Timestamp: base, SubbandIndex: 0, SizeBytes: 100},
		{Path: "/a/big.hdf5", Timestamp: base.Add(time.Second), SubbandIndex: 0, SizeBytes: 5000},
	}
	clusters := Assemble(files, 60)
	require.Len(t, clusters, 1)
	require.Equal(t, "/a/big.hdf5", clusters[0].Members[0].path)
}

func TestAssembleDeterminismAcrossShuffledInput(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	files := happyPath16(base, 3*time.Second)

	first := Assemble(files, 60)

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		shuffled := make([]store.RawFile, len(files))
		copy(shuffled, files)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Assemble(shuffled, 60)
		require.Equal(t, len(first), len(got))
		require.Equal(t, first[0].GroupID(), got[0].GroupID())
		require.Equal(t, first[0].MemberPaths(), got[0].MemberPaths())
	}
}
