package calibrator

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/dsa110/continuum-pipeline/internal/logging"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

// Store is the subset of *store.Store the registry needs.
type Store interface {
	ReplaceCalibratorRegistry(sources []store.CalibratorSource) error
	QueryCalibrators(centerDecStrip, decStripWidth int) ([]store.CalibratorSource, error)
	AllCalibrators() ([]store.CalibratorSource, error)
	GetCalibrator(name string) (*store.CalibratorSource, error)
	BlacklistCalibrator(name, reason string) error
}

// Registry serves indexed calibrator selection queries against a
// quality-scored snapshot of candidate sources, kept fresh by periodic
// rebuilds from a read-only catalog file.
type Registry struct {
	store       Store
	maxPerStrip int
	snapshot    atomic.Pointer[[]store.CalibratorSource]
}

// New builds a Registry bound to the given store. Call Refresh (or Build)
// at least once before Query/Best return results from an in-memory
// snapshot; until then queries fall through to the store directly.
func New(st Store, maxPerStrip int) *Registry {
	return &Registry{store: st, maxPerStrip: maxPerStrip}
}

// Build reads a catalog snapshot file (JSON array of CandidateSource),
// scores and buckets every entry by dec_strip, keeps up to max_per_strip
// per strip ordered by quality, and atomically replaces the active
// registry both in the store and in this Registry's in-memory cache.
// Build is idempotent: running it again with the same input file produces
// the same snapshot.
func (r *Registry) Build(sourcesPath string) (int, error) {
	data, err := os.ReadFile(sourcesPath)
	if err != nil {
		return 0, fmt.Errorf("calibrator: read sources file: %w", err)
	}
	var candidates []CandidateSource
	if err := json.Unmarshal(data, &candidates); err != nil {
		return 0, fmt.Errorf("calibrator: parse sources file: %w", err)
	}
	return r.build(candidates)
}

func (r *Registry) build(candidates []CandidateSource) (int, error) {
	scored := lo.Map(candidates, func(c CandidateSource, _ int) store.CalibratorSource {
		return store.CalibratorSource{
			Name:          c.Name,
			RADeg:         c.RADeg,
			DecDeg:        c.DecDeg,
			Flux1400MHzJy: c.Flux1400MHzJy,
			SpectralIndex: c.SpectralIndex,
			DecStrip:      DecStrip(c.DecDeg),
			QualityScore:  QualityScore(c),
		}
	})

	byStrip := lo.GroupBy(scored, func(s store.CalibratorSource) int { return s.DecStrip })

	var kept []store.CalibratorSource
	for _, strip := range lo.Keys(byStrip) {
		sources := byStrip[strip]
		sort.SliceStable(sources, func(i, j int) bool {
			if sources[i].QualityScore != sources[j].QualityScore {
				return sources[i].QualityScore > sources[j].QualityScore
			}
			return sources[i].Flux1400MHzJy > sources[j].Flux1400MHzJy
		})
		if len(sources) > r.maxPerStrip {
			sources = sources[:r.maxPerStrip]
		}
		kept = append(kept, sources...)
	}

	if err := r.store.ReplaceCalibratorRegistry(kept); err != nil {
		return 0, fmt.Errorf("calibrator: replace registry: %w", err)
	}
	r.snapshot.Store(&kept)
	logging.Get(logging.CategoryCalibrator).Info("calibrator registry built: %d sources kept across %d strips", len(kept), len(byStrip))
	return len(kept), nil
}

// Refresh reloads the in-memory snapshot from the store (used after an
// out-of-process registry rebuild, or at process startup).
func (r *Registry) Refresh() error {
	all, err := r.store.AllCalibrators()
	if err != nil {
		return err
	}
	r.snapshot.Store(&all)
	return nil
}

func (r *Registry) sources() []store.CalibratorSource {
	if s := r.snapshot.Load(); s != nil {
		return *s
	}
	all, err := r.store.AllCalibrators()
	if err != nil {
		return nil
	}
	return all
}

// QueryCalibrators returns non-blacklisted sources within dec_tolerance of
// dec_deg meeting the flux/quality floors, sorted by quality_score
// descending then flux descending, capped at max_sources. It filters the
// in-memory snapshot (or, before one is loaded, the store's full
// calibrator list) and does not use the store's strip-indexed lookup.
func (r *Registry) QueryCalibrators(decDeg, decTolerance, minFluxJy float64, minQuality, maxSources int) []store.CalibratorSource {
	var out []store.CalibratorSource
	for _, s := range r.sources() {
		if s.Blacklisted {
			continue
		}
		delta := s.DecDeg - decDeg
		if delta < 0 {
			delta = -delta
		}
		if delta > decTolerance {
			continue
		}
		if s.Flux1400MHzJy < minFluxJy || s.QualityScore < minQuality {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QualityScore != out[j].QualityScore {
			return out[i].QualityScore > out[j].QualityScore
		}
		return out[i].Flux1400MHzJy > out[j].Flux1400MHzJy
	})
	if maxSources > 0 && len(out) > maxSources {
		out = out[:maxSources]
	}
	return out
}

// BestCalibrator returns the single top-ranked match, or nil if none
// qualify.
func (r *Registry) BestCalibrator(decDeg, decTolerance, minFluxJy float64, minQuality int) *store.CalibratorSource {
	matches := r.QueryCalibrators(decDeg, decTolerance, minFluxJy, minQuality, 1)
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

// Blacklist permanently excludes a calibrator from future selection.
// Idempotent: blacklisting an already-blacklisted source is a no-op
// success, not an error.
func (r *Registry) Blacklist(name, reason string) error {
	if err := r.store.BlacklistCalibrator(name, reason); err != nil {
		return fmt.Errorf("calibrator: blacklist %s: %w", name, err)
	}
	return r.Refresh()
}
