// Package housekeeping runs the periodic, idempotent maintenance actions
// that keep the State Store and filesystem consistent across worker
// crashes: reverting stuck groups, failing stale collections, reaping
// expired task claims, checkpointing the WAL, and pruning orphaned
// scratch directories.
package housekeeping

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dsa110/continuum-pipeline/internal/executor"
	"github.com/dsa110/continuum-pipeline/internal/group"
	"github.com/dsa110/continuum-pipeline/internal/logging"
	"github.com/dsa110/continuum-pipeline/internal/scheduler"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

// OrchestrateTaskID is the scheduler task_id convention the orchestrator's
// caller uses when spawning the task that drives a group: one orchestrate
// task per group, so recover-in-progress can look it up deterministically
// instead of needing a dedicated group->task index.
func OrchestrateTaskID(groupID string) string {
	return "orchestrate:" + groupID
}

// Store is the subset of *store.Store housekeeping needs beyond what it
// reaches through group.Assembler and scheduler.Scheduler.
type Store interface {
	GroupsByState(state store.GroupState) ([]store.Group, error)
	TransitionGroup(groupID string, newState store.GroupState, lastError string) error
	GetTask(taskID string) (*store.Task, error)
	Checkpoint() error
	WALSizeBytes() int64
}

// Config bundles the thresholds housekeeping's actions read.
type Config struct {
	InProgressTimeout     time.Duration
	ScratchRetention       time.Duration
	WALCheckpointThreshold int64
}

// Runner executes each housekeeping action exactly once per invocation.
// Run is called directly, by a ticker in the worker command and once by
// the housekeeping command; it is not a scheduler task, and no claim
// keeps two passes in different processes from running at the same time.
type Runner struct {
	store      Store
	assembler  *group.Assembler
	sched      *scheduler.Scheduler
	scratchDir string
	cfg        Config
}

// New builds a Runner. scratchDir is the root `<state_dir>/scratch`
// directory PruneScratch sweeps.
func New(st Store, assembler *group.Assembler, sched *scheduler.Scheduler, scratchDir string, cfg Config) *Runner {
	return &Runner{store: st, assembler: assembler, sched: sched, scratchDir: scratchDir, cfg: cfg}
}

// Report summarizes what one housekeeping pass did, for logging and
// operator status commands.
type Report struct {
	RecoveredInProgress int
	FailedStaleCollecting int
	ReapedClaims        int
	Checkpointed        bool
	PrunedScratchDirs   int
}

// Run executes every action in order and returns a summary. Each action
// is independently idempotent, so a partial failure (returned alongside
// whatever Report fields were already populated) can simply be retried
// on the next scheduled run.
func (r *Runner) Run(now time.Time) (Report, error) {
	var rep Report

	n, err := r.RecoverInProgress(now)
	if err != nil {
		return rep, fmt.Errorf("housekeeping: recover in-progress: %w", err)
	}
	rep.RecoveredInProgress = n

	n, err = r.assembler.FailStaleCollecting(now)
	if err != nil {
		return rep, fmt.Errorf("housekeeping: fail stale collecting: %w", err)
	}
	rep.FailedStaleCollecting = n

	reaped, err := r.sched.ReapExpiredClaims()
	if err != nil {
		return rep, fmt.Errorf("housekeeping: reap expired claims: %w", err)
	}
	rep.ReapedClaims = reaped

	checkpointed, err := r.CheckpointIfDue()
	if err != nil {
		return rep, fmt.Errorf("housekeeping: checkpoint: %w", err)
	}
	rep.Checkpointed = checkpointed

	pruned, err := r.PruneScratch(now)
	if err != nil {
		return rep, fmt.Errorf("housekeeping: prune scratch: %w", err)
	}
	rep.PrunedScratchDirs = pruned

	logging.Housekeeping("pass complete: recovered=%d failed_stale=%d reaped=%d checkpointed=%v pruned=%d",
		rep.RecoveredInProgress, rep.FailedStaleCollecting, rep.ReapedClaims, rep.Checkpointed, rep.PrunedScratchDirs)
	return rep, nil
}

// RecoverInProgress reverts groups stuck `in_progress` longer than
// in_progress_timeout whose owning orchestrate task is no longer live
// (absent, failed, or dead-lettered) back to `pending`, so the scheduler
// re-admits them for another attempt.
func (r *Runner) RecoverInProgress(now time.Time) (int, error) {
	groups, err := r.store.GroupsByState(store.GroupInProgress)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, g := range groups {
		if now.Sub(g.StateChangedAt) < r.cfg.InProgressTimeout {
			continue
		}
		task, err := r.store.GetTask(OrchestrateTaskID(g.GroupID))
		if err != nil {
			return recovered, err
		}
		if task != nil && (task.State == store.TaskReady || task.State == store.TaskClaimed || task.State == store.TaskRunning) {
			continue
		}
		if err := r.store.TransitionGroup(g.GroupID, store.GroupPending, ""); err != nil {
			return recovered, err
		}
		recovered++
		logging.Housekeeping("recovered stuck in_progress group %s to pending", g.GroupID)
	}
	return recovered, nil
}

// CheckpointIfDue triggers a WAL checkpoint when the WAL file exceeds the
// configured threshold, bounding the ahead-of-durable tail.
func (r *Runner) CheckpointIfDue() (bool, error) {
	if r.cfg.WALCheckpointThreshold <= 0 {
		return false, nil
	}
	if r.store.WALSizeBytes() < r.cfg.WALCheckpointThreshold {
		return false, nil
	}
	if err := r.store.Checkpoint(); err != nil {
		return false, err
	}
	return true, nil
}

// PruneScratch removes scratch directories older than scratch_retention
// whose ownership sentinel shows no recent activity, refusing to touch
// anything a live task might still be writing into.
func (r *Runner) PruneScratch(now time.Time) (int, error) {
	if r.scratchDir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(r.scratchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("housekeeping: read scratch dir: %w", err)
	}

	pruned := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(r.scratchDir, entry.Name())
		age, err := executor.SentinelAge(dir, now)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return pruned, err
		}
		if age < r.cfg.ScratchRetention {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return pruned, fmt.Errorf("housekeeping: remove stale scratch dir %s: %w", dir, err)
		}
		pruned++
		logging.Housekeeping("pruned stale scratch dir %s (age %s)", dir, age)
	}
	return pruned, nil
}
