package store

import (
	"database/sql"
	"fmt"

	"github.com/dsa110/continuum-pipeline/internal/logging"
)

// schema is the full DDL for a fresh database, built from idempotent
// CREATE TABLE IF NOT EXISTS statements so repeated startup is safe.
const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_files (
	path TEXT PRIMARY KEY,
	timestamp_unix INTEGER NOT NULL,
	subband_index INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL,
	discovered_at INTEGER NOT NULL,
	consumed INTEGER NOT NULL DEFAULT 0,
	UNIQUE(timestamp_unix, subband_index)
);
CREATE INDEX IF NOT EXISTS idx_raw_files_timestamp ON raw_files(timestamp_unix);

CREATE TABLE IF NOT EXISTS groups (
	group_id TEXT PRIMARY KEY,
	expected_subbands INTEGER NOT NULL,
	member_paths_json TEXT NOT NULL,
	state TEXT NOT NULL,
	fresh_product INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	state_changed_at INTEGER NOT NULL,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_groups_state ON groups(state);

CREATE TABLE IF NOT EXISTS ms_records (
	ms_path TEXT PRIMARY KEY,
	group_id TEXT NOT NULL,
	center_ra_deg REAL NOT NULL,
	center_dec_deg REAL NOT NULL,
	mjd_start REAL NOT NULL,
	mjd_end REAL NOT NULL,
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ms_group ON ms_records(group_id);
CREATE INDEX IF NOT EXISTS idx_ms_stage ON ms_records(stage);

CREATE TABLE IF NOT EXISTS cal_tables (
	table_path TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	calibrator_name TEXT NOT NULL,
	solved_from_ms TEXT NOT NULL,
	valid_mjd_start REAL NOT NULL,
	valid_mjd_end REAL NOT NULL,
	quality INTEGER NOT NULL,
	status TEXT NOT NULL,
	refant INTEGER NOT NULL DEFAULT -1,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_caltables_kind_status ON cal_tables(kind, status);
CREATE INDEX IF NOT EXISTS idx_caltables_calibrator ON cal_tables(calibrator_name, kind);

CREATE TABLE IF NOT EXISTS images (
	image_path TEXT PRIMARY KEY,
	ms_path TEXT NOT NULL,
	center_ra_deg REAL NOT NULL,
	center_dec_deg REAL NOT NULL,
	noise_jy REAL NOT NULL,
	beam_major_arcsec REAL NOT NULL,
	beam_minor_arcsec REAL NOT NULL,
	beam_pa_deg REAL NOT NULL,
	quality TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_images_ms ON images(ms_path);

CREATE TABLE IF NOT EXISTS photometry_rows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id TEXT NOT NULL,
	ms_path TEXT NOT NULL,
	mjd REAL NOT NULL,
	flux_jy REAL NOT NULL,
	flux_err_jy REAL NOT NULL,
	normalized_flux REAL NOT NULL,
	is_upper_limit INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_photometry_source ON photometry_rows(source_id, mjd);
CREATE INDEX IF NOT EXISTS idx_photometry_ms ON photometry_rows(ms_path);

CREATE TABLE IF NOT EXISTS tasks (
	task_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	state TEXT NOT NULL,
	depends_on_json TEXT NOT NULL DEFAULT '[]',
	priority INTEGER NOT NULL DEFAULT 0,
	not_before INTEGER NOT NULL,
	claimed_by TEXT NOT NULL DEFAULT '',
	claim_expires_at INTEGER NOT NULL DEFAULT 0,
	attempt INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	last_error TEXT NOT NULL DEFAULT '',
	parent_task TEXT NOT NULL DEFAULT '',
	dedup_key TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_state_priority ON tasks(state, priority, not_before, task_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_dedup ON tasks(dedup_key) WHERE dedup_key != '';

CREATE TABLE IF NOT EXISTS calibrator_sources (
	name TEXT PRIMARY KEY,
	ra_deg REAL NOT NULL,
	dec_deg REAL NOT NULL,
	flux_1400mhz_jy REAL NOT NULL,
	spectral_index REAL,
	dec_strip INTEGER NOT NULL,
	quality_score INTEGER NOT NULL,
	blacklisted INTEGER NOT NULL DEFAULT 0,
	blacklist_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_calibrator_decstrip ON calibrator_sources(dec_strip);
`

func (s *Store) runMigrations() error {
	timer := logging.StartTimer(logging.CategoryStore, "runMigrations")
	defer timer.Stop()

	if _, err := s.writeDB.Exec(schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if version == 0 {
		if _, err := s.writeDB.Exec(`INSERT INTO schema_meta(id, version) VALUES (1, ?)`, CurrentSchemaVersion); err != nil {
			return fmt.Errorf("store: stamp schema version: %w", err)
		}
		return nil
	}
	if version != CurrentSchemaVersion {
		return &DatabaseMigrationError{FoundVersion: version, WantVersion: CurrentSchemaVersion}
	}
	return nil
}

func (s *Store) schemaVersion() (int, error) {
	var version int
	err := s.writeDB.QueryRow(`SELECT version FROM schema_meta WHERE id = 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}
