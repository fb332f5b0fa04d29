package calibrator

import "sort"

// CatalogInfo is the hard-coded coverage metadata for one read-only
// reference catalog consumed downstream by photometry cross-matching.
type CatalogInfo struct {
	Name           string
	DecMinDeg      float64
	DecMaxDeg      float64
	FrequencyMHz   float64
	ResolutionArcsec float64
	RMSJy          float64
	BestFor        []string
}

// catalogs is the coverage engine's fixed reference table. Declination
// bounds, frequency and resolution are the catalogs' published survey
// parameters; RMS is typical sensitivity at 1.4 GHz-equivalent depth.
var catalogs = []CatalogInfo{
	{Name: "NVSS", DecMinDeg: -40, DecMaxDeg: 90, FrequencyMHz: 1400, ResolutionArcsec: 45, RMSJy: 0.00045, BestFor: []string{"flux_reference", "wide_field"}},
	{Name: "FIRST", DecMinDeg: -10, DecMaxDeg: 90, FrequencyMHz: 1400, ResolutionArcsec: 5, RMSJy: 0.00015, BestFor: []string{"astrometry", "compact_sources"}},
	{Name: "VLASS", DecMinDeg: -40, DecMaxDeg: 90, FrequencyMHz: 3000, ResolutionArcsec: 2.5, RMSJy: 0.00012, BestFor: []string{"transients", "compact_sources"}},
	{Name: "TGSS", DecMinDeg: -53, DecMaxDeg: 90, FrequencyMHz: 150, ResolutionArcsec: 25, RMSJy: 0.0035, BestFor: []string{"spectral_index", "low_frequency"}},
}

// recommendation pairs a catalog with its priority (ascending = best
// first) and the reason it was selected.
type recommendation struct {
	Catalog  string
	Priority int
	Reason   string
}

// RecommendCatalogs ranks catalogs usable at (ra, dec) for the given
// purpose (e.g. "flux_reference", "astrometry"), sorted by priority
// ascending. A catalog tagged best_for the requested purpose ranks ahead
// of one merely covering the position.
func RecommendCatalogs(raDeg, decDeg float64, purpose string) []recommendation {
	var recs []recommendation
	for _, c := range catalogs {
		if decDeg < c.DecMinDeg || decDeg > c.DecMaxDeg {
			continue
		}
		priority := 10
		reason := "covers position"
		for _, tag := range c.BestFor {
			if tag == purpose {
				priority = 0
				reason = "best-for " + purpose
				break
			}
		}
		recs = append(recs, recommendation{Catalog: c.Name, Priority: priority, Reason: reason})
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority < recs[j].Priority })
	return recs
}

// Validate reports whether a catalog applies at (ra, dec), rejecting
// positions outside its declination coverage.
func Validate(catalog string, raDeg, decDeg float64) (bool, string) {
	for _, c := range catalogs {
		if c.Name != catalog {
			continue
		}
		if decDeg < c.DecMinDeg || decDeg > c.DecMaxDeg {
			return false, "declination outside catalog coverage"
		}
		return true, ""
	}
	return false, "unknown catalog"
}
