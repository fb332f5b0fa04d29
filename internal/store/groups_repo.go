package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dsa110/continuum-pipeline/internal/logging"
)

// UpsertGroup inserts a new group or, if one already exists with this
// group_id, overwrites its member set and state_changed_at in place; the
// other stored fields keep their values (used by the assembler to register late-arriving members while a group
// is still collecting/pending). State transitions go through
// TransitionGroup, not UpsertGroup, to keep the state machine auditable.
func (s *Store) UpsertGroup(g Group) error {
	memberJSON, err := json.Marshal(g.MemberPaths)
	if err != nil {
		return fmt.Errorf("store: marshal group members: %w", err)
	}
	return s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO groups(group_id, expected_subbands, member_paths_json, state, fresh_product,
				created_at, state_changed_at, attempt_count, last_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(group_id) DO UPDATE SET
				member_paths_json = excluded.member_paths_json,
				state_changed_at = excluded.state_changed_at
		`, g.GroupID, g.ExpectedSubbands, string(memberJSON), string(g.State), boolToInt(g.FreshProduct),
			g.CreatedAt.Unix(), g.StateChangedAt.Unix(), g.AttemptCount, g.LastError)
		return err
	})
}

// GetGroup fetches a group by id, or (nil, nil) if none exists.
func (s *Store) GetGroup(groupID string) (*Group, error) {
	row := s.readDB.QueryRow(`
		SELECT group_id, expected_subbands, member_paths_json, state, fresh_product,
			created_at, state_changed_at, attempt_count, last_error
		FROM groups WHERE group_id = ?
	`, groupID)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

// GroupsByState returns all groups currently in the given state.
func (s *Store) GroupsByState(state GroupState) ([]Group, error) {
	rows, err := s.readDB.Query(`
		SELECT group_id, expected_subbands, member_paths_json, state, fresh_product,
			created_at, state_changed_at, attempt_count, last_error
		FROM groups WHERE state = ? ORDER BY created_at ASC
	`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		g, err := scanGroupRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// TransitionGroup atomically moves a group to a new state, recording
// state_changed_at and, on failure, last_error. Callers are responsible
// for validating the transition is legal per the state machine; this
// method just persists it.
func (s *Store) TransitionGroup(groupID string, newState GroupState, lastError string) error {
	return s.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE groups SET state = ?, state_changed_at = ?, last_error = ?
			WHERE group_id = ?
		`, string(newState), time.Now().Unix(), lastError, groupID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("store: group %s not found", groupID)
		}
		logging.GroupDebug("group %s -> %s (%s)", groupID, newState, lastError)
		return nil
	})
}

// IncrementGroupAttempt bumps attempt_count, used on operator retry.
func (s *Store) IncrementGroupAttempt(groupID string) error {
	return s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE groups SET attempt_count = attempt_count + 1 WHERE group_id = ?`, groupID)
		return err
	})
}

// SetGroupFreshProduct sets the observational FreshProduct flag on an
// in_progress group.
func (s *Store) SetGroupFreshProduct(groupID string, fresh bool) error {
	return s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE groups SET fresh_product = ? WHERE group_id = ?`, boolToInt(fresh), groupID)
		return err
	})
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGroup(row scanner) (*Group, error) {
	return scanGroupRows(row)
}

func scanGroupRows(row scanner) (*Group, error) {
	var g Group
	var memberJSON string
	var state string
	var fresh int
	var created, changed int64
	if err := row.Scan(&g.GroupID, &g.ExpectedSubbands, &memberJSON, &state, &fresh,
		&created, &changed, &g.AttemptCount, &g.LastError); err != nil {
		return nil, err
	}
	g.State = GroupState(state)
	g.FreshProduct = fresh != 0
	g.CreatedAt = time.Unix(created, 0).UTC()
	g.StateChangedAt = time.Unix(changed, 0).UTC()
	g.MemberPaths = map[int]string{}
	if err := json.Unmarshal([]byte(memberJSON), &g.MemberPaths); err != nil {
		return nil, fmt.Errorf("store: unmarshal group members: %w", err)
	}
	return &g, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
