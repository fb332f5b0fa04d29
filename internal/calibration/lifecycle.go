// Package calibration selects and assigns CalTables to science
// observations, derives validity windows for newly solved tables, and
// detects calibrator transit opportunities.
package calibration

import (
	"math"
	"sort"
	"time"

	"github.com/dsa110/continuum-pipeline/internal/clock"
	"github.com/dsa110/continuum-pipeline/internal/pipeerr"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

// Store is the subset of *store.Store the lifecycle manager needs.
type Store interface {
	ActiveCalTables(kind store.CalKind) ([]store.CalTable, error)
	OverlappingActiveCalTables(kind store.CalKind, calibratorName string, start, end float64) ([]store.CalTable, error)
	InsertCalTable(c store.CalTable) error
	RetireCalTable(tablePath string) error
}

// Manager implements the selection, validity-window, refant and
// transit-detection rules of the calibration lifecycle (spec.md §4.8).
type Manager struct {
	store          Store
	windowH        float64
	maxExtrapH     float64
	transitDeg     float64
	minQuality     int
	position       clock.GeodeticPosition
}

// New builds a Manager. windowH is δ_pre = δ_post for newly solved
// tables; maxExtrapH bounds how far outside a validity window a table
// may still be applied; transitDeg is Δ_transit_deg; minQuality is the
// calibrator quality floor for transit candidacy.
func New(st Store, windowH, maxExtrapH, transitDeg float64, minQuality int) *Manager {
	return &Manager{
		store:      st,
		windowH:    windowH,
		maxExtrapH: maxExtrapH,
		transitDeg: transitDeg,
		minQuality: minQuality,
		position:   clock.DSA110,
	}
}

// SelectForApply picks the best active CalTable of the given kind for an
// observation at the given midpoint MJD: smallest |mid(window) - mjd|,
// tie-broken by higher quality then newest created_at. Returns a
// pipeerr.MissingCalibration error if none qualify within
// max_extrapolation hours of their validity window.
func (m *Manager) SelectForApply(kind store.CalKind, mjd float64) (*store.CalTable, error) {
	candidates, err := m.store.ActiveCalTables(kind)
	if err != nil {
		return nil, err
	}

	extrapDays := m.maxExtrapH / 24.0
	var best *store.CalTable
	var bestDelta float64
	for i := range candidates {
		c := candidates[i]
		if mjd < c.ValidMJDStart-extrapDays || mjd > c.ValidMJDEnd+extrapDays {
			continue
		}
		delta := math.Abs(c.MidValidMJD() - mjd)
		if best == nil ||
			delta < bestDelta ||
			(delta == bestDelta && c.Quality > best.Quality) ||
			(delta == bestDelta && c.Quality == best.Quality && c.CreatedAt.After(best.CreatedAt)) {
			sel := c
			best = &sel
			bestDelta = delta
		}
	}
	if best == nil {
		return nil, pipeerr.New(pipeerr.MissingCalibration,
			"no active "+string(kind)+" CalTable valid (within extrapolation budget) at the observation midpoint")
	}
	return best, nil
}

// ValidityWindow derives [valid_mjd_start, valid_mjd_end] for a table
// solved from an MS spanning [mjdStart, mjdEnd]: symmetric padding of
// windowH hours on either side.
func (m *Manager) ValidityWindow(mjdStart, mjdEnd float64) (float64, float64) {
	padDays := m.windowH / 24.0
	return mjdStart - padDays, mjdEnd + padDays
}

// RegisterSolved inserts a newly solved CalTable and retires any
// overlapping active table of the same kind/calibrator with quality no
// higher than the new one. A quality tie retires the older table (an
// Open Question resolution recorded in DESIGN.md): the newest entry
// wins ties, consistent with SelectForApply's own newest-wins
// tie-break, so exactly one active table remains per
// (kind, calibrator, epoch).
func (m *Manager) RegisterSolved(c store.CalTable) error {
	start, end := m.ValidityWindow(c.ValidMJDStart, c.ValidMJDEnd)
	c.ValidMJDStart, c.ValidMJDEnd = start, end
	if c.Status == "" {
		c.Status = store.CalTableActive
	}

	overlapping, err := m.store.OverlappingActiveCalTables(c.Kind, c.CalibratorName, start, end)
	if err != nil {
		return err
	}
	if err := m.store.InsertCalTable(c); err != nil {
		return err
	}
	for _, old := range overlapping {
		if c.Quality >= old.Quality {
			if err := m.store.RetireCalTable(old.TablePath); err != nil {
				return err
			}
		}
	}
	return nil
}

// AntennaStat is one antenna's candidate refant metrics.
type AntennaStat struct {
	Index              int
	UnflaggedFraction  float64
	AmplitudeRMS       float64
}

// SelectRefant picks the antenna maximizing unflagged-data fraction and
// minimum amplitude RMS, breaking ties by lowest antenna index. Returns
// fallback if stats is empty.
func SelectRefant(stats []AntennaStat, fallback int) int {
	if len(stats) == 0 {
		return fallback
	}
	best := stats[0]
	for _, s := range stats[1:] {
		if s.UnflaggedFraction > best.UnflaggedFraction ||
			(s.UnflaggedFraction == best.UnflaggedFraction && s.AmplitudeRMS < best.AmplitudeRMS) ||
			(s.UnflaggedFraction == best.UnflaggedFraction && s.AmplitudeRMS == best.AmplitudeRMS && s.Index < best.Index) {
			best = s
		}
	}
	return best.Index
}

// TransitCandidate pairs a calibrator with its weighted-flux score
// (flux x primary-beam response) for a group under transit-detection.
type TransitCandidate struct {
	Calibrator     store.CalibratorSource
	SeparationDeg  float64
	PBResponse     float64
	WeightedFlux   float64
}

// PrimaryBeamResponse is a simple cosine-squared primary beam model
// used only to rank transit candidates, not to calibrate flux scales.
func PrimaryBeamResponse(separationDeg, beamHalfPowerDeg float64) float64 {
	if beamHalfPowerDeg <= 0 {
		return 0
	}
	x := separationDeg / beamHalfPowerDeg * (math.Pi / 2)
	if x > math.Pi/2 {
		return 0
	}
	return math.Cos(x) * math.Cos(x)
}

// DetectTransit reports whether the group at midMJD is a calibrator
// transit candidate: the meridian RA at midMJD lies within transitDeg of
// some quality>=minQuality calibrator with primary-beam response above
// pbThreshold. Among multiple matches, the best is chosen by weighted
// flux (flux x PB).
func (m *Manager) DetectTransit(midMJD float64, calibrators []store.CalibratorSource, beamHalfPowerDeg, pbThreshold float64) *TransitCandidate {
	meridianRA := clock.MeridianRADeg(midMJD, m.position)

	var candidates []TransitCandidate
	for _, c := range calibrators {
		if c.Blacklisted || c.QualityScore < m.minQuality {
			continue
		}
		sep := clock.AngularSeparationDeg(c.RADeg, meridianRA)
		if sep > m.transitDeg {
			continue
		}
		pb := PrimaryBeamResponse(sep, beamHalfPowerDeg)
		if pb < pbThreshold {
			continue
		}
		candidates = append(candidates, TransitCandidate{
			Calibrator:    c,
			SeparationDeg: sep,
			PBResponse:    pb,
			WeightedFlux:  c.Flux1400MHzJy * pb,
		})
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].WeightedFlux > candidates[j].WeightedFlux })
	return &candidates[0]
}

// MJDFromTime is a convenience re-export so callers need not import
// internal/clock directly just to convert an observation timestamp.
func MJDFromTime(t time.Time) float64 { return clock.TimeToMJD(t) }
