package calibrator

import "testing"

func TestRecommendCatalogsPrioritizesBestFor(t *testing.T) {
	recs := RecommendCatalogs(120, 30, "astrometry")
	if len(recs) == 0 {
		t.Fatal("expected at least one catalog at dec=30")
	}
	if recs[0].Catalog != "FIRST" {
		t.Errorf("expected FIRST prioritized for astrometry, got %s first", recs[0].Catalog)
	}
	if recs[0].Priority != 0 {
		t.Errorf("best-for match should have priority 0, got %d", recs[0].Priority)
	}
}

func TestRecommendCatalogsExcludesOutOfCoverage(t *testing.T) {
	recs := RecommendCatalogs(0, -70, "flux_reference")
	for _, r := range recs {
		if r.Catalog == "NVSS" || r.Catalog == "FIRST" {
			t.Errorf("catalog %s should not cover dec=-70", r.Catalog)
		}
	}
}

func TestValidateRejectsOutsideCoverage(t *testing.T) {
	ok, msg := Validate("FIRST", 0, -50)
	if ok {
		t.Error("FIRST should not validate at dec=-50")
	}
	if msg == "" {
		t.Error("expected a rejection message")
	}
}

func TestValidateAcceptsWithinCoverage(t *testing.T) {
	ok, _ := Validate("NVSS", 0, 30)
	if !ok {
		t.Error("NVSS should validate at dec=30")
	}
}

func TestValidateUnknownCatalog(t *testing.T) {
	ok, msg := Validate("NOPE", 0, 0)
	if ok {
		t.Error("unknown catalog should not validate")
	}
	if msg == "" {
		t.Error("expected an unknown-catalog message")
	}
}
