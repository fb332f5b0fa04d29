package store

import (
	"database/sql"

	"github.com/dsa110/continuum-pipeline/internal/logging"
)

// ReplaceCalibratorRegistry atomically swaps the entire calibrator source
// snapshot: deletes every existing row and inserts the new set within one
// write transaction, so a concurrent reader never observes a partially
// rebuilt registry.
func (s *Store) ReplaceCalibratorRegistry(sources []CalibratorSource) error {
	return s.withWrite(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM calibrator_sources`); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
			INSERT INTO calibrator_sources(name, ra_deg, dec_deg, flux_1400mhz_jy, spectral_index,
				dec_strip, quality_score, blacklisted, blacklist_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, src := range sources {
			if _, err := stmt.Exec(src.Name, src.RADeg, src.DecDeg, src.Flux1400MHzJy, src.SpectralIndex,
				src.DecStrip, src.QualityScore, boolToInt(src.Blacklisted), src.BlacklistReason); err != nil {
				return err
			}
		}
		logging.Get(logging.CategoryCalibrator).Info("calibrator registry rebuilt: %d sources", len(sources))
		return nil
	})
}

// QueryCalibrators returns non-blacklisted calibrators whose dec_strip value
// lies within ±decStripWidth of centerDecStrip (both in dec_strip units),
// ordered by quality descending then name — the
// candidate pool a calibrator selection pass narrows to its final pick.
func (s *Store) QueryCalibrators(centerDecStrip, decStripWidth int) ([]CalibratorSource, error) {
	rows, err := s.readDB.Query(`
		SELECT name, ra_deg, dec_deg, flux_1400mhz_jy, spectral_index, dec_strip, quality_score,
			blacklisted, blacklist_reason
		FROM calibrator_sources
		WHERE blacklisted = 0 AND dec_strip BETWEEN ? AND ?
		ORDER BY quality_score DESC, name ASC
	`, centerDecStrip-decStripWidth, centerDecStrip+decStripWidth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalibratorRows(rows)
}

// AllCalibrators returns the full registry snapshot including blacklisted
// entries, used by registry rebuild and diagnostics.
func (s *Store) AllCalibrators() ([]CalibratorSource, error) {
	rows, err := s.readDB.Query(`
		SELECT name, ra_deg, dec_deg, flux_1400mhz_jy, spectral_index, dec_strip, quality_score,
			blacklisted, blacklist_reason
		FROM calibrator_sources ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalibratorRows(rows)
}

// GetCalibrator fetches a single calibrator by name, or (nil, nil) if absent.
func (s *Store) GetCalibrator(name string) (*CalibratorSource, error) {
	row := s.readDB.QueryRow(`
		SELECT name, ra_deg, dec_deg, flux_1400mhz_jy, spectral_index, dec_strip, quality_score,
			blacklisted, blacklist_reason
		FROM calibrator_sources WHERE name = ?
	`, name)
	src, err := scanCalibrator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return src, err
}

// BlacklistCalibrator marks a calibrator permanently ineligible for
// selection, recording why (e.g. repeated solve failures, confusion with
// a nearby bright source).
func (s *Store) BlacklistCalibrator(name, reason string) error {
	return s.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE calibrator_sources SET blacklisted = 1, blacklist_reason = ? WHERE name = ?
		`, reason, name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		logging.Get(logging.CategoryCalibrator).Warn("calibrator %s blacklisted: %s", name, reason)
		return nil
	})
}

func scanCalibratorRows(rows *sql.Rows) ([]CalibratorSource, error) {
	var out []CalibratorSource
	for rows.Next() {
		src, err := scanCalibrator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

func scanCalibrator(row scanner) (*CalibratorSource, error) {
	var src CalibratorSource
	var blacklisted int
	var spectralIndex sql.NullFloat64
	if err := row.Scan(&src.Name, &src.RADeg, &src.DecDeg, &src.Flux1400MHzJy, &spectralIndex,
		&src.DecStrip, &src.QualityScore, &blacklisted, &src.BlacklistReason); err != nil {
		return nil, err
	}
	src.Blacklisted = blacklisted != 0
	if spectralIndex.Valid {
		v := spectralIndex.Float64
		src.SpectralIndex = &v
	}
	return &src, nil
}
