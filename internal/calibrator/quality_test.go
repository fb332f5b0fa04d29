package calibrator

import "testing"

func ptr(f float64) *float64 { return &f }

func TestDecStrip(t *testing.T) {
	cases := []struct {
		dec  float64
		want int
	}{
		{5, 0},
		{15, 10},
		{-5, -10},
		{-15, -20},
		{0, 0},
		{-10, -10},
	}
	for _, c := range cases {
		if got := DecStrip(c.dec); got != c.want {
			t.Errorf("DecStrip(%v) = %d, want %d", c.dec, got, c.want)
		}
	}
}

func TestFluxComponentThresholds(t *testing.T) {
	if fluxComponent(10) != 40 {
		t.Error("10 Jy should score 40")
	}
	if fluxComponent(5) != 30 {
		t.Error("5 Jy should score 30")
	}
	if fluxComponent(0.7) != 20 {
		t.Error("0.7 Jy should score 20")
	}
	if fluxComponent(0.25) != 10 {
		t.Error("0.25 Jy should score proportionally to 10")
	}
	if fluxComponent(0) != 0 {
		t.Error("0 Jy should score 0")
	}
}

func TestSpectrumComponentThresholds(t *testing.T) {
	if spectrumComponent(nil) != 15 {
		t.Error("unknown alpha should score 15")
	}
	if spectrumComponent(ptr(0.1)) != 30 {
		t.Error("|alpha|<0.2 should score 30")
	}
	if spectrumComponent(ptr(-0.3)) != 20 {
		t.Error("|alpha|<0.5 should score 20")
	}
	if spectrumComponent(ptr(0.9)) != 10 {
		t.Error("|alpha|>=0.5 should score 10")
	}
}

func TestCompactnessComponentThresholds(t *testing.T) {
	if compactnessComponent(nil) != 15 {
		t.Error("unknown compactness should score 15")
	}
	if compactnessComponent(ptr(1.0)) != 30 {
		t.Error("fully compact should score 30")
	}
	if compactnessComponent(ptr(0.0)) != 0 {
		t.Error("fully extended should score 0")
	}
}

func TestQualityScoreSumsComponents(t *testing.T) {
	c := CandidateSource{Flux1400MHzJy: 10, SpectralIndex: ptr(0.1), Compactness: ptr(1.0)}
	if got := QualityScore(c); got != 100 {
		t.Errorf("QualityScore = %d, want 100 for a maximal source", got)
	}
}
