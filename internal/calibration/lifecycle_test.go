package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsa110/continuum-pipeline/internal/clock"
	"github.com/dsa110/continuum-pipeline/internal/pipeerr"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSelectForApplyPrefersClosestMidpoint(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertCalTable(store.CalTable{TablePath: "/a", Kind: store.CalKindGain, CalibratorName: "x", ValidMJDStart: 59000, ValidMJDEnd: 59001, Quality: 80, Status: store.CalTableActive, CreatedAt: time.Now()}))
	require.NoError(t, s.InsertCalTable(store.CalTable{TablePath: "/b", Kind: store.CalKindGain, CalibratorName: "x", ValidMJDStart: 59000.8, ValidMJDEnd: 59001.8, Quality: 80, Status: store.CalTableActive, CreatedAt: time.Now()}))

	m := New(s, 6, 6, 0.5, 50)
	got, err := m.SelectForApply(store.CalKindGain, 59001.2)
	require.NoError(t, err)
	require.Equal(t, "/b", got.TablePath)
}

func TestSelectForApplyMissingCalibration(t *testing.T) {
	s := openTestStore(t)
	m := New(s, 6, 6, 0.5, 50)
	_, err := m.SelectForApply(store.CalKindBandpass, 59000)
	require.Error(t, err)
	require.Equal(t, pipeerr.MissingCalibration, pipeerr.ClassifyOf(err))
}

func TestSelectForApplyRespectsExtrapolationBudget(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertCalTable(store.CalTable{TablePath: "/a", Kind: store.CalKindGain, CalibratorName: "x", ValidMJDStart: 59000, ValidMJDEnd: 59001, Quality: 80, Status: store.CalTableActive, CreatedAt: time.Now()}))

	m := New(s, 6, 1, 0.5, 50) // 1h extrapolation budget
	_, err := m.SelectForApply(store.CalKindGain, 59001+2.0/24.0) // 2h beyond window
	require.Error(t, err)
}

func TestValidityWindowPadsSymmetrically(t *testing.T) {
	m := New(nil, 6, 6, 0.5, 50)
	start, end := m.ValidityWindow(59000, 59001)
	require.InDelta(t, 59000-0.25, start, 1e-9)
	require.InDelta(t, 59001+0.25, end, 1e-9)
}

func TestRegisterSolvedRetiresLowerQualityOverlap(t *testing.T) {
	s := openTestStore(t)
	m := New(s, 0, 6, 0.5, 50)
	old := store.CalTable{TablePath: "/old", Kind: store.CalKindBandpass, CalibratorName: "REFCAL_A", ValidMJDStart: 59000, ValidMJDEnd: 59001, Quality: 40, Status: store.CalTableActive, CreatedAt: time.Now()}
	require.NoError(t, s.InsertCalTable(old))

	newer := store.CalTable{TablePath: "/new", Kind: store.CalKindBandpass, CalibratorName: "REFCAL_A", ValidMJDStart: 59000.2, ValidMJDEnd: 59000.8, Quality: 90, CreatedAt: time.Now()}
	require.NoError(t, m.RegisterSolved(newer))

	active, err := s.ActiveCalTables(store.CalKindBandpass)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "/new", active[0].TablePath)
}

func TestRegisterSolvedRetiresOnQualityTie(t *testing.T) {
	s := openTestStore(t)
	m := New(s, 0, 6, 0.5, 50)
	old := store.CalTable{TablePath: "/old", Kind: store.CalKindGain, CalibratorName: "REFCAL_A", ValidMJDStart: 59000, ValidMJDEnd: 59001, Quality: 70, Status: store.CalTableActive, CreatedAt: time.Now()}
	require.NoError(t, s.InsertCalTable(old))

	newer := store.CalTable{TablePath: "/new", Kind: store.CalKindGain, CalibratorName: "REFCAL_A", ValidMJDStart: 59000.2, ValidMJDEnd: 59000.8, Quality: 70, CreatedAt: time.Now()}
	require.NoError(t, m.RegisterSolved(newer))

	active, err := s.ActiveCalTables(store.CalKindGain)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "/new", active[0].TablePath, "tie retires the older table")
}

func TestSelectRefantBreaksTiesByLowestIndex(t *testing.T) {
	stats := []AntennaStat{
		{Index: 3, UnflaggedFraction: 0.9, AmplitudeRMS: 0.1},
		{Index: 1, UnflaggedFraction: 0.9, AmplitudeRMS: 0.1},
		{Index: 2, UnflaggedFraction: 0.5, AmplitudeRMS: 0.01},
	}
	require.Equal(t, 1, SelectRefant(stats, 0))
}

func TestSelectRefantFallsBackWhenEmpty(t *testing.T) {
	require.Equal(t, 7, SelectRefant(nil, 7))
}

func TestDetectTransitPicksBestWeightedFlux(t *testing.T) {
	m := New(nil, 6, 6, 5.0, 50)
	meridianRA := clock.MeridianRADeg(59000, clock.DSA110)

	calibrators := []store.CalibratorSource{
		{Name: "dim_close", RADeg: meridianRA, Flux1400MHzJy: 1, QualityScore: 80},
		{Name: "bright_far", RADeg: meridianRA + 2, Flux1400MHzJy: 50, QualityScore: 80},
		{Name: "blacklisted", RADeg: meridianRA, Flux1400MHzJy: 100, QualityScore: 90, Blacklisted: true},
	}
	got := m.DetectTransit(59000, calibrators, 3.0, 0.01)
	require.NotNil(t, got)
	require.NotEqual(t, "blacklisted", got.Calibrator.Name)
	require.Equal(t, "bright_far", got.Calibrator.Name)
}

func TestDetectTransitReturnsNilWhenNoneQualify(t *testing.T) {
	m := New(nil, 6, 6, 0.1, 50)
	calibrators := []store.CalibratorSource{{Name: "far", RADeg: 200, QualityScore: 80, Flux1400MHzJy: 10}}
	require.Nil(t, m.DetectTransit(59000, calibrators, 3.0, 0.01))
}
