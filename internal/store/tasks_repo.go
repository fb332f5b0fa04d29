package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dsa110/continuum-pipeline/internal/logging"
)

// Spawn inserts a new task. If depends_on names tasks that have not all
// succeeded yet, the task starts blocked; otherwise it starts ready
// immediately. DependsOn entries must already exist — spawning a task that
// depends on an unknown task_id is rejected, which also makes a dependency
// cycle impossible to construct through this API (a brand-new task_id can
// never already be an ancestor of an existing task).
func (s *Store) Spawn(t Task) error {
	payloadJSON, err := json.Marshal(t.Payload)
	if err != nil {
		return fmt.Errorf("store: marshal task payload: %w", err)
	}
	dependsJSON, err := json.Marshal(t.DependsOn)
	if err != nil {
		return fmt.Errorf("store: marshal task deps: %w", err)
	}

	return s.withWrite(func(tx *sql.Tx) error {
		allSatisfied := true
		for _, dep := range t.DependsOn {
			var state string
			err := tx.QueryRow(`SELECT state FROM tasks WHERE task_id = ?`, dep).Scan(&state)
			if err == sql.ErrNoRows {
				return fmt.Errorf("store: spawn %s: dependency %s does not exist", t.TaskID, dep)
			}
			if err != nil {
				return err
			}
			if state != string(TaskSucceeded) {
				allSatisfied = false
			}
		}

		initial := TaskBlocked
		if allSatisfied {
			initial = TaskReady
		}
		if t.MaxAttempts == 0 {
			t.MaxAttempts = 3
		}
		notBefore := t.NotBefore
		if notBefore.IsZero() {
			notBefore = t.CreatedAt
		}

		_, err := tx.Exec(`
			INSERT INTO tasks(task_id, kind, payload_json, state, depends_on_json, priority,
				not_before, claimed_by, claim_expires_at, attempt, max_attempts, last_error,
				parent_task, dedup_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, '', 0, 0, ?, '', ?, ?, ?)
		`, t.TaskID, t.Kind, string(payloadJSON), string(initial), string(dependsJSON), t.Priority,
			notBefore.Unix(), t.MaxAttempts, t.ParentTask, t.DedupKey, t.CreatedAt.Unix())
		if err != nil {
			return err
		}
		logging.SchedulerDebug("spawned task %s (%s) state=%s deps=%v", t.TaskID, t.Kind, initial, t.DependsOn)
		return nil
	})
}

// Claim atomically selects and leases the single highest-priority ready
// task whose not_before has elapsed, ordering by priority then not_before
// then task_id for determinism among ties. Because claim runs inside the
// store's single logical write transaction, no other writer can observe
// or steal the same row between selection and lease — the SKIP LOCKED
// semantics a multi-writer database would need here falls out for free.
func (s *Store) Claim(workerID string, leaseFor time.Duration) (*Task, error) {
	var claimed *Task
	err := s.withWrite(func(tx *sql.Tx) error {
		now := time.Now()
		row := tx.QueryRow(`
			SELECT task_id, kind, payload_json, state, depends_on_json, priority, not_before,
				claimed_by, claim_expires_at, attempt, max_attempts, last_error, parent_task,
				dedup_key, created_at
			FROM tasks
			WHERE state = 'ready' AND not_before <= ?
			ORDER BY priority ASC, not_before ASC, task_id ASC
			LIMIT 1
		`, now.Unix())

		t, err := scanTask(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		expires := now.Add(leaseFor)
		_, err = tx.Exec(`
			UPDATE tasks SET state = 'claimed', claimed_by = ?, claim_expires_at = ?, attempt = attempt + 1
			WHERE task_id = ?
		`, workerID, expires.Unix(), t.TaskID)
		if err != nil {
			return err
		}
		t.State = TaskClaimed
		t.ClaimedBy = workerID
		t.ClaimExpiresAt = expires
		t.Attempt++
		claimed = t
		logging.SchedulerDebug("claimed task %s by %s (attempt %d)", t.TaskID, workerID, t.Attempt)
		return nil
	})
	return claimed, err
}

// Heartbeat extends a claimed/running task's lease, used by long-running
// executor calls to avoid being reaped mid-flight.
func (s *Store) Heartbeat(taskID string, leaseFor time.Duration) error {
	return s.withWrite(func(tx *sql.Tx) error {
		expires := time.Now().Add(leaseFor)
		res, err := tx.Exec(`
			UPDATE tasks SET claim_expires_at = ?
			WHERE task_id = ? AND state IN ('claimed', 'running')
		`, expires.Unix(), taskID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("store: task %s not claimed, cannot heartbeat", taskID)
		}
		return nil
	})
}

// MarkRunning transitions a claimed task into running, used once the
// executor adapter has actually started work rather than just leased it.
func (s *Store) MarkRunning(taskID string) error {
	return s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE tasks SET state = 'running' WHERE task_id = ? AND state = 'claimed'`, taskID)
		return err
	})
}

// Complete marks a task succeeded and promotes any blocked task whose
// dependencies are now all satisfied into ready.
func (s *Store) Complete(taskID string) error {
	return s.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE tasks SET state = 'succeeded' WHERE task_id = ?`, taskID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: task %s not found", taskID)
		}
		if err := promoteBlockedDependents(tx); err != nil {
			return err
		}
		logging.SchedulerDebug("task %s succeeded", taskID)
		return nil
	})
}

// Fail records a task failure. Retryable failures under the attempt
// ceiling return to ready after the given backoff delay — dependencies
// were already satisfied once, and satisfaction is monotonic, so the task
// goes straight back to ready rather than back to blocked. Failures that
// exhaust max_attempts (or are marked non-retryable by the caller) go to
// failed, which cascades failure to every blocked descendant.
func (s *Store) Fail(taskID string, errMsg string, retryable bool, backoffDelay time.Duration) error {
	return s.withWrite(func(tx *sql.Tx) error {
		var attempt, maxAttempts int
		if err := tx.QueryRow(`SELECT attempt, max_attempts FROM tasks WHERE task_id = ?`, taskID).
			Scan(&attempt, &maxAttempts); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("store: task %s not found", taskID)
			}
			return err
		}

		if retryable && attempt < maxAttempts {
			notBefore := time.Now().Add(backoffDelay)
			_, err := tx.Exec(`
				UPDATE tasks SET state = 'ready', last_error = ?, not_before = ?, claimed_by = '', claim_expires_at = 0
				WHERE task_id = ?
			`, errMsg, notBefore.Unix(), taskID)
			if err != nil {
				return err
			}
			logging.SchedulerDebug("task %s failed (retry %d/%d): %s", taskID, attempt, maxAttempts, errMsg)
			return nil
		}

		if _, err := tx.Exec(`UPDATE tasks SET state = 'failed', last_error = ? WHERE task_id = ?`, errMsg, taskID); err != nil {
			return err
		}
		logging.Scheduler("task %s exhausted/non-retryable, marking failed: %s", taskID, errMsg)
		return cascadeFailure(tx, taskID)
	})
}

// cascadeFailure transitively fails every blocked descendant of a failed
// task — a task waiting on a dependency that will never succeed can never
// become ready on its own.
func cascadeFailure(tx *sql.Tx, failedTaskID string) error {
	rows, err := tx.Query(`SELECT task_id, depends_on_json FROM tasks WHERE state = 'blocked'`)
	if err != nil {
		return err
	}
	type blocked struct {
		id   string
		deps []string
	}
	var all []blocked
	for rows.Next() {
		var id, depsJSON string
		if err := rows.Scan(&id, &depsJSON); err != nil {
			rows.Close()
			return err
		}
		var deps []string
		if err := json.Unmarshal([]byte(depsJSON), &deps); err != nil {
			rows.Close()
			return fmt.Errorf("store: unmarshal depends_on: %w", err)
		}
		all = append(all, blocked{id: id, deps: deps})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	dead := map[string]bool{failedTaskID: true}
	changed := true
	for changed {
		changed = false
		for _, b := range all {
			if dead[b.id] {
				continue
			}
			for _, d := range b.deps {
				if dead[d] {
					dead[b.id] = true
					changed = true
					break
				}
			}
		}
	}
	delete(dead, failedTaskID)
	for id := range dead {
		if _, err := tx.Exec(`UPDATE tasks SET state = 'failed', last_error = 'dependency failed' WHERE task_id = ?`, id); err != nil {
			return err
		}
		logging.Scheduler("task %s failed: dependency %s failed", id, failedTaskID)
	}
	return nil
}

// promoteBlockedDependents moves every blocked task whose depends_on are
// now all succeeded into ready. Runs to a fixed point since promoting one
// task can unblock another in the same chain.
func promoteBlockedDependents(tx *sql.Tx) error {
	for {
		rows, err := tx.Query(`SELECT task_id, depends_on_json FROM tasks WHERE state = 'blocked'`)
		if err != nil {
			return err
		}
		type candidate struct {
			id   string
			deps []string
		}
		var candidates []candidate
		for rows.Next() {
			var id, depsJSON string
			if err := rows.Scan(&id, &depsJSON); err != nil {
				rows.Close()
				return err
			}
			var deps []string
			if err := json.Unmarshal([]byte(depsJSON), &deps); err != nil {
				rows.Close()
				return fmt.Errorf("store: unmarshal depends_on: %w", err)
			}
			candidates = append(candidates, candidate{id: id, deps: deps})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		promotedAny := false
		for _, c := range candidates {
			satisfied := true
			for _, dep := range c.deps {
				var state string
				if err := tx.QueryRow(`SELECT state FROM tasks WHERE task_id = ?`, dep).Scan(&state); err != nil {
					return err
				}
				if state != string(TaskSucceeded) {
					satisfied = false
					break
				}
			}
			if satisfied {
				if _, err := tx.Exec(`UPDATE tasks SET state = 'ready' WHERE task_id = ?`, c.id); err != nil {
					return err
				}
				promotedAny = true
			}
		}
		if !promotedAny {
			return nil
		}
	}
}

// ReapExpiredClaims returns every claimed/running task whose lease has
// expired back to ready, incrementing nothing further (the claimant's own
// next Claim call will bump attempt). Returns the reaped task IDs.
func (s *Store) ReapExpiredClaims() ([]string, error) {
	var reaped []string
	err := s.withWrite(func(tx *sql.Tx) error {
		now := time.Now().Unix()
		rows, err := tx.Query(`
			SELECT task_id FROM tasks
			WHERE state IN ('claimed', 'running') AND claim_expires_at > 0 AND claim_expires_at < ?
		`, now)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			_, err := tx.Exec(`
				UPDATE tasks SET state = 'ready', claimed_by = '', claim_expires_at = 0,
					last_error = 'claim lease expired'
				WHERE task_id = ?
			`, id)
			if err != nil {
				return err
			}
			logging.Scheduler("reaped expired claim on task %s", id)
		}
		reaped = ids
		return nil
	})
	return reaped, err
}

// DeadLetter moves an exhausted failed task to the terminal dead state,
// used when dead-letter handling is enabled so a human/operator tool can
// distinguish "failed, will never be retried" from "failed, awaiting
// cascade bookkeeping."
func (s *Store) DeadLetter(taskID string) error {
	return s.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE tasks SET state = 'dead' WHERE task_id = ? AND state = 'failed'`, taskID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: task %s not in failed state, cannot dead-letter", taskID)
		}
		logging.Scheduler("task %s moved to dead-letter", taskID)
		return nil
	})
}

// GetTask fetches a task by id, or (nil, nil) if absent.
func (s *Store) GetTask(taskID string) (*Task, error) {
	row := s.readDB.QueryRow(`
		SELECT task_id, kind, payload_json, state, depends_on_json, priority, not_before,
			claimed_by, claim_expires_at, attempt, max_attempts, last_error, parent_task,
			dedup_key, created_at
		FROM tasks WHERE task_id = ?
	`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// TasksByState returns all tasks currently in the given state.
func (s *Store) TasksByState(state TaskState) ([]Task, error) {
	rows, err := s.readDB.Query(`
		SELECT task_id, kind, payload_json, state, depends_on_json, priority, not_before,
			claimed_by, claim_expires_at, attempt, max_attempts, last_error, parent_task,
			dedup_key, created_at
		FROM tasks WHERE state = ? ORDER BY priority ASC, not_before ASC, task_id ASC
	`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	var payloadJSON, dependsJSON, state string
	var notBefore, claimExpires, created int64
	if err := row.Scan(&t.TaskID, &t.Kind, &payloadJSON, &state, &dependsJSON, &t.Priority, &notBefore,
		&t.ClaimedBy, &claimExpires, &t.Attempt, &t.MaxAttempts, &t.LastError, &t.ParentTask,
		&t.DedupKey, &created); err != nil {
		return nil, err
	}
	t.State = TaskState(state)
	t.NotBefore = time.Unix(notBefore, 0).UTC()
	t.ClaimExpiresAt = time.Unix(claimExpires, 0).UTC()
	t.CreatedAt = time.Unix(created, 0).UTC()
	if err := json.Unmarshal([]byte(payloadJSON), &t.Payload); err != nil {
		return nil, fmt.Errorf("store: unmarshal task payload: %w", err)
	}
	if err := json.Unmarshal([]byte(dependsJSON), &t.DependsOn); err != nil {
		return nil, fmt.Errorf("store: unmarshal task depends_on: %w", err)
	}
	return &t, nil
}
