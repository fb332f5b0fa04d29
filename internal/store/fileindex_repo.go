package store

import (
	"database/sql"
	"time"

	"github.com/dsa110/continuum-pipeline/internal/logging"
)

// RegisterFile idempotently records a raw file. Duplicates keyed by
// (timestamp, subband_index) update size only, so a file rewritten in
// place never produces a second row.
func (s *Store) RegisterFile(path string, timestamp time.Time, subbandIndex int, sizeBytes int64) error {
	return s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO raw_files(path, timestamp_unix, subband_index, size_bytes, discovered_at, consumed)
			VALUES (?, ?, ?, ?, ?, 0)
			ON CONFLICT(timestamp_unix, subband_index) DO UPDATE SET size_bytes = excluded.size_bytes
		`, path, timestamp.Unix(), subbandIndex, sizeBytes, time.Now().Unix())
		if err != nil {
			return err
		}
		logging.FileIndexDebug("registered %s (sb=%d, ts=%s, size=%d)", path, subbandIndex, timestamp, sizeBytes)
		return nil
	})
}

// QueryWindow returns all raw files with timestamps in [tStart, tEnd],
// ordered by timestamp then subband_index.
func (s *Store) QueryWindow(tStart, tEnd time.Time) ([]RawFile, error) {
	rows, err := s.readDB.Query(`
		SELECT path, timestamp_unix, subband_index, size_bytes, discovered_at, consumed
		FROM raw_files
		WHERE timestamp_unix BETWEEN ? AND ?
		ORDER BY timestamp_unix ASC, subband_index ASC
	`, tStart.Unix(), tEnd.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RawFile
	for rows.Next() {
		var f RawFile
		var ts, discovered int64
		var consumed int
		if err := rows.Scan(&f.Path, &ts, &f.SubbandIndex, &f.SizeBytes, &discovered, &consumed); err != nil {
			return nil, err
		}
		f.Timestamp = time.Unix(ts, 0).UTC()
		f.DiscoveredAt = time.Unix(discovered, 0).UTC()
		f.Consumed = consumed != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

// AllFiles returns every registered file ordered as QueryWindow would,
// used by the Group Assembler to take a deterministic full snapshot.
func (s *Store) AllFiles() ([]RawFile, error) {
	return s.QueryWindow(time.Unix(0, 0), time.Unix(1<<62, 0))
}

// MarkConsumed tags files as belonging to a completed group. This is a
// soft marker; rows are never deleted.
func (s *Store) MarkConsumed(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.withWrite(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE raw_files SET consumed = 1 WHERE path = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range paths {
			if _, err := stmt.Exec(p); err != nil {
				return err
			}
		}
		return nil
	})
}
