package store

import (
	"database/sql"
	"time"
)

// InsertCalTable records a calibration table with the status it carries;
// the calibration manager's RegisterSolved sets newly solved tables active.
func (s *Store) InsertCalTable(c CalTable) error {
	return s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO cal_tables(table_path, kind, calibrator_name, solved_from_ms,
				valid_mjd_start, valid_mjd_end, quality, status, refant, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.TablePath, string(c.Kind), c.CalibratorName, c.SolvedFromMS,
			c.ValidMJDStart, c.ValidMJDEnd, c.Quality, string(c.Status), c.Refant, c.CreatedAt.Unix())
		return err
	})
}

// ActiveCalTables returns every active table of the given kind, used by
// the calibration lifecycle manager's selection policy.
func (s *Store) ActiveCalTables(kind CalKind) ([]CalTable, error) {
	rows, err := s.readDB.Query(`
		SELECT table_path, kind, calibrator_name, solved_from_ms, valid_mjd_start, valid_mjd_end,
			quality, status, refant, created_at
		FROM cal_tables WHERE kind = ? AND status = 'active'
	`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalTable
	for rows.Next() {
		c, err := scanCalTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// OverlappingActiveCalTables returns active tables of the same kind and
// calibrator whose validity window overlaps [start, end], used to decide
// retirement when a new table is solved.
func (s *Store) OverlappingActiveCalTables(kind CalKind, calibratorName string, start, end float64) ([]CalTable, error) {
	rows, err := s.readDB.Query(`
		SELECT table_path, kind, calibrator_name, solved_from_ms, valid_mjd_start, valid_mjd_end,
			quality, status, refant, created_at
		FROM cal_tables
		WHERE kind = ? AND calibrator_name = ? AND status = 'active'
			AND valid_mjd_start <= ? AND valid_mjd_end >= ?
	`, string(kind), calibratorName, end, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalTable
	for rows.Next() {
		c, err := scanCalTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// RetireCalTable marks a table retired; the row is never deleted.
func (s *Store) RetireCalTable(tablePath string) error {
	return s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE cal_tables SET status = 'retired' WHERE table_path = ?`, tablePath)
		return err
	})
}

func scanCalTable(row scanner) (*CalTable, error) {
	var c CalTable
	var kind, status string
	var created int64
	if err := row.Scan(&c.TablePath, &kind, &c.CalibratorName, &c.SolvedFromMS,
		&c.ValidMJDStart, &c.ValidMJDEnd, &c.Quality, &status, &c.Refant, &created); err != nil {
		return nil, err
	}
	c.Kind = CalKind(kind)
	c.Status = CalTableStatus(status)
	c.CreatedAt = time.Unix(created, 0).UTC()
	return &c, nil
}
