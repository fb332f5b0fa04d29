package store

import "database/sql"

// InsertPhotometryRows bulk-inserts forced-photometry measurements for one
// image/MS within a single transaction.
func (s *Store) InsertPhotometryRows(rowsIn []PhotometryRow) error {
	if len(rowsIn) == 0 {
		return nil
	}
	return s.withWrite(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO photometry_rows(source_id, ms_path, mjd, flux_jy, flux_err_jy, normalized_flux, is_upper_limit)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rowsIn {
			if _, err := stmt.Exec(r.SourceID, r.MSPath, r.MJD, r.FluxJy, r.FluxErrJy, r.NormalizedFlux, boolToInt(r.IsUpperLimit)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PhotometryBySource returns the flux time series for a source, ordered
// by MJD ascending — the basis for variability/ESE detection.
func (s *Store) PhotometryBySource(sourceID string) ([]PhotometryRow, error) {
	rows, err := s.readDB.Query(`
		SELECT id, source_id, ms_path, mjd, flux_jy, flux_err_jy, normalized_flux, is_upper_limit
		FROM photometry_rows WHERE source_id = ? ORDER BY mjd ASC
	`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhotometryRow
	for rows.Next() {
		var r PhotometryRow
		var upper int
		if err := rows.Scan(&r.ID, &r.SourceID, &r.MSPath, &r.MJD, &r.FluxJy, &r.FluxErrJy, &r.NormalizedFlux, &upper); err != nil {
			return nil, err
		}
		r.IsUpperLimit = upper != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
