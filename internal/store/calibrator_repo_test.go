package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceCalibratorRegistryIsAtomicSwap(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.ReplaceCalibratorRegistry([]CalibratorSource{
		{Name: "3C286", RADeg: 202.78, DecDeg: 30.5, Flux1400MHzJy: 14.7, DecStrip: 3, QualityScore: 90},
	}))

	require.NoError(t, s.ReplaceCalibratorRegistry([]CalibratorSource{
		{Name: "3C48", RADeg: 24.4, DecDeg: 33.2, Flux1400MHzJy: 16.5, DecStrip: 3, QualityScore: 85},
	}))

	all, err := s.AllCalibrators()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "3C48", all[0].Name)
}

func TestQueryCalibratorsExcludesBlacklistedAndFiltersDecStrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.ReplaceCalibratorRegistry([]CalibratorSource{
		{Name: "near", DecStrip: 3, QualityScore: 80},
		{Name: "far", DecStrip: 20, QualityScore: 95},
		{Name: "bad", DecStrip: 3, QualityScore: 99, Blacklisted: true, BlacklistReason: "confused source"},
	}))

	got, err := s.QueryCalibrators(3, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "near", got[0].Name)
}

func TestQueryCalibratorsOrdersByQualityDescending(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.ReplaceCalibratorRegistry([]CalibratorSource{
		{Name: "low", DecStrip: 0, QualityScore: 10},
		{Name: "high", DecStrip: 0, QualityScore: 90},
	}))

	got, err := s.QueryCalibrators(0, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "high", got[0].Name)
}

func TestBlacklistCalibratorPersists(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.ReplaceCalibratorRegistry([]CalibratorSource{
		{Name: "3C286", DecStrip: 3, QualityScore: 90},
	}))

	require.NoError(t, s.BlacklistCalibrator("3C286", "repeated solve failures"))

	got, err := s.GetCalibrator("3C286")
	require.NoError(t, err)
	require.True(t, got.Blacklisted)
	require.Equal(t, "repeated solve failures", got.BlacklistReason)
}

func TestBlacklistCalibratorUnknownNameErrors(t *testing.T) {
	s := openTestStore(t)
	err := s.BlacklistCalibrator("ghost", "nope")
	require.Error(t, err)
}

func TestCalibratorSpectralIndexRoundTrip(t *testing.T) {
	s := openTestStore(t)
	idx := -0.7
	require.NoError(t, s.ReplaceCalibratorRegistry([]CalibratorSource{
		{Name: "3C286", DecStrip: 3, QualityScore: 90, SpectralIndex: &idx},
	}))

	got, err := s.GetCalibrator("3C286")
	require.NoError(t, err)
	require.NotNil(t, got.SpectralIndex)
	require.InDelta(t, -0.7, *got.SpectralIndex, 1e-9)
}
