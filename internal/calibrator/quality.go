// Package calibrator builds and serves the Calibrator Registry: a
// read-mostly, quality-scored table of reference calibrator sources used
// for selection during calibration, plus the Coverage Engine that
// recommends and validates read-only reference catalogs by sky position.
package calibrator

import "math"

// CandidateSource is one row of a raw catalog snapshot, before quality
// scoring and dec_strip assignment fold it into a store.CalibratorSource.
type CandidateSource struct {
	Name          string   `json:"name"`
	RADeg         float64  `json:"ra_deg"`
	DecDeg        float64  `json:"dec_deg"`
	Flux1400MHzJy float64  `json:"flux_1400mhz_jy"`
	SpectralIndex *float64 `json:"spectral_index,omitempty"`
	Compactness   *float64 `json:"compactness,omitempty"` // in [0,1]; unknown if nil
}

// DecStrip buckets a declination into its ⌊dec/10⌋·10 strip.
func DecStrip(decDeg float64) int {
	return int(math.Floor(decDeg/10)) * 10
}

// QualityScore sums the flux, spectrum and compactness components
// (each computed once, at registry build) into the 0-100 calibrator
// quality score.
func QualityScore(c CandidateSource) int {
	return fluxComponent(c.Flux1400MHzJy) + spectrumComponent(c.SpectralIndex) + compactnessComponent(c.Compactness)
}

// fluxComponent is worth up to 40 points: 40 at or above 10 Jy, 30
// between 1 and 10 Jy, 20 between 0.5 and 1 Jy, else scaled linearly
// under 0.5 Jy.
func fluxComponent(fluxJy float64) int {
	switch {
	case fluxJy >= 10:
		return 40
	case fluxJy >= 1:
		return 30
	case fluxJy >= 0.5:
		return 20
	case fluxJy <= 0:
		return 0
	default:
		return int(fluxJy / 0.5 * 20)
	}
}

// spectrumComponent is worth up to 30 points, rewarding a flat spectrum
// (small |alpha|). Unknown spectral index scores the midpoint, 15.
func spectrumComponent(alpha *float64) int {
	if alpha == nil {
		return 15
	}
	a := *alpha
	if a < 0 {
		a = -a
	}
	switch {
	case a < 0.2:
		return 30
	case a < 0.5:
		return 20
	default:
		return 10
	}
}

// compactnessComponent is worth up to 30 points, proportional to a
// compactness metric in [0,1] (1 = point-like). Unknown compactness
// scores the midpoint, 15.
func compactnessComponent(compactness *float64) int {
	if compactness == nil {
		return 15
	}
	c := *compactness
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return int(c * 30)
}
