package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertMS registers a newly converted Measurement Set. ms_path is
// globally unique.
func (s *Store) InsertMS(m MSRecord) error {
	return s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO ms_records(ms_path, group_id, center_ra_deg, center_dec_deg,
				mjd_start, mjd_end, stage, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.MSPath, m.GroupID, m.CenterRADeg, m.CenterDecDeg, m.MJDStart, m.MJDEnd,
			string(m.Stage), string(m.Status), m.CreatedAt.Unix())
		return err
	})
}

// GetMS fetches an MSRecord by path, or (nil, nil) if absent.
func (s *Store) GetMS(msPath string) (*MSRecord, error) {
	row := s.readDB.QueryRow(`
		SELECT ms_path, group_id, center_ra_deg, center_dec_deg, mjd_start, mjd_end,
			stage, status, created_at
		FROM ms_records WHERE ms_path = ?
	`, msPath)
	m, err := scanMS(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// MSByGroup returns the (at most one, by convention) active MSRecord for
// a group.
func (s *Store) MSByGroup(groupID string) (*MSRecord, error) {
	row := s.readDB.QueryRow(`
		SELECT ms_path, group_id, center_ra_deg, center_dec_deg, mjd_start, mjd_end,
			stage, status, created_at
		FROM ms_records WHERE group_id = ? AND status != 'superseded'
		ORDER BY created_at DESC LIMIT 1
	`, groupID)
	m, err := scanMS(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// AdvanceStage moves an MSRecord's stage forward. Stage must never
// regress; attempting to set a stage behind the current one is a no-op
// that returns nil, so re-running a completed stage never regresses state.
func (s *Store) AdvanceStage(msPath string, newStage MSStage) error {
	return s.withWrite(func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRow(`SELECT stage FROM ms_records WHERE ms_path = ?`, msPath).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("store: ms %s not found", msPath)
			}
			return err
		}
		if MSStage(current).AtLeast(newStage) {
			return nil
		}
		_, err := tx.Exec(`UPDATE ms_records SET stage = ? WHERE ms_path = ?`, string(newStage), msPath)
		return err
	})
}

// SetMSStatus updates the outcome status of an MSRecord (e.g. to 'failed'
// on a terminating error, or 'superseded' when a newer MS replaces it).
func (s *Store) SetMSStatus(msPath string, status MSStatus) error {
	return s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE ms_records SET status = ? WHERE ms_path = ?`, string(status), msPath)
		return err
	})
}

func scanMS(row scanner) (*MSRecord, error) {
	var m MSRecord
	var stage, status string
	var created int64
	if err := row.Scan(&m.MSPath, &m.GroupID, &m.CenterRADeg, &m.CenterDecDeg,
		&m.MJDStart, &m.MJDEnd, &stage, &status, &created); err != nil {
		return nil, err
	}
	m.Stage = MSStage(stage)
	m.Status = MSStatus(status)
	m.CreatedAt = time.Unix(created, 0).UTC()
	return &m, nil
}
