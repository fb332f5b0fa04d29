// Package scheduler is the durable task queue: it leases store-persisted
// tasks to a bounded worker pool, computes retry backoff, and reaps
// workers that go silent mid-lease.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dsa110/continuum-pipeline/internal/logging"
	"github.com/dsa110/continuum-pipeline/internal/pipeerr"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

// Store is the subset of *store.Store the scheduler drives.
type Store interface {
	Spawn(t store.Task) error
	Claim(workerID string, leaseFor time.Duration) (*store.Task, error)
	Heartbeat(taskID string, leaseFor time.Duration) error
	MarkRunning(taskID string) error
	Complete(taskID string) error
	Fail(taskID string, errMsg string, retryable bool, backoffDelay time.Duration) error
	DeadLetter(taskID string) error
	ReapExpiredClaims() ([]string, error)
	GetTask(taskID string) (*store.Task, error)
	TasksByState(state store.TaskState) ([]store.Task, error)
}

// Runner executes a claimed task's work, returning a classified error on
// failure so the Scheduler can decide retry-vs-fail.
type Runner func(ctx context.Context, task store.Task) error

// Scheduler wires the task store to a bounded worker pool and drives
// retry backoff and dependency cascades on completion/failure.
type Scheduler struct {
	store       Store
	leaseFor    time.Duration
	backoffBase time.Duration
	maxAttempts int
	deadLetter  bool
	pool        WorkerPool
}

// WorkerPool is the subset of *pond.WorkerPool the scheduler needs, kept
// as an interface so tests can run tasks synchronously.
type WorkerPool interface {
	Submit(task func())
	StopAndWait()
}

// New builds a Scheduler. pool is typically a *pond.WorkerPool sized from
// admission_concurrency.
func New(st Store, pool WorkerPool, leaseFor time.Duration, backoffBaseS, maxAttempts int, deadLetter bool) *Scheduler {
	return &Scheduler{
		store:       st,
		leaseFor:    leaseFor,
		backoffBase: time.Duration(backoffBaseS) * time.Second,
		maxAttempts: maxAttempts,
		deadLetter:  deadLetter,
		pool:        pool,
	}
}

// Spawn validates the dependency graph is acyclic before delegating to the
// store. The store's "deps must already exist" rule on Spawn already
// makes a cycle impossible to construct through this API (a new task_id
// cannot be an ancestor of an existing task); this pass exists to turn
// that structural guarantee into an explicit, checked invariant rather
// than an implicit one, and to give a clear INVARIANT_VIOLATION error if
// that ever stops being true.
func (s *Scheduler) Spawn(t store.Task) error {
	if err := s.checkAcyclic(t); err != nil {
		return err
	}
	return s.store.Spawn(t)
}

func (s *Scheduler) checkAcyclic(t store.Task) error {
	visited := map[string]bool{}
	var visit func(id string) error
	visit = func(id string) error {
		if id == t.TaskID {
			return pipeerr.New(pipeerr.InvariantViolation, fmt.Sprintf("scheduler: spawning %s would introduce a dependency cycle", t.TaskID))
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		dep, err := s.store.GetTask(id)
		if err != nil {
			return err
		}
		if dep == nil {
			return nil
		}
		for _, d := range dep.DependsOn {
			if err := visit(d); err != nil {
				return err
			}
		}
		return nil
	}
	for _, d := range t.DependsOn {
		if err := visit(d); err != nil {
			return err
		}
	}
	return nil
}

// Backoff computes the retry delay for a given attempt number, following
// delay = base*2^(attempt-1) + U(0,base). The ExponentialBackOff value only
// holds the base, multiplier and cap; the U(0,base) jitter is drawn with
// math/rand. The doubled part is capped at 1024×base for every task kind;
// there is no per-kind cap.
func (s *Scheduler) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.backoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 1.0 // not used by the computation below
	b.MaxInterval = s.backoffBase * time.Duration(1<<10)

	d := b.InitialInterval
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * b.Multiplier)
		if d > b.MaxInterval {
			d = b.MaxInterval
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(s.backoffBase) + 1))
	return d + jitter
}

// RunOnce claims at most one ready task and submits it to the worker
// pool. Returns false if no task was ready to claim.
func (s *Scheduler) RunOnce(ctx context.Context, workerID string, run Runner) (bool, error) {
	task, err := s.store.Claim(workerID, s.leaseFor)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	s.pool.Submit(func() {
		s.execute(ctx, *task, run)
	})
	return true, nil
}

func (s *Scheduler) execute(ctx context.Context, task store.Task, run Runner) {
	if err := s.store.MarkRunning(task.TaskID); err != nil {
		logging.Get(logging.CategoryScheduler).Error("task %s: mark running: %v", task.TaskID, err)
		return
	}

	runErr := run(ctx, task)
	if runErr == nil {
		if err := s.store.Complete(task.TaskID); err != nil {
			logging.Get(logging.CategoryScheduler).Error("task %s: complete: %v", task.TaskID, err)
		}
		return
	}

	retryable := pipeerr.ClassifyOf(runErr).Retryable()
	delay := s.Backoff(task.Attempt)
	if err := s.store.Fail(task.TaskID, runErr.Error(), retryable, delay); err != nil {
		logging.Get(logging.CategoryScheduler).Error("task %s: fail: %v", task.TaskID, err)
		return
	}
	logging.Scheduler("task %s failed (attempt %d/%d, retryable=%v): %v", task.TaskID, task.Attempt, task.MaxAttempts, retryable, runErr)

	if s.deadLetter && (!retryable || task.Attempt >= task.MaxAttempts) {
		if err := s.store.DeadLetter(task.TaskID); err != nil {
			logging.SchedulerWarn("task %s: dead-letter: %v", task.TaskID, err)
		}
	}
}

// ReapExpiredClaims returns stalled claims to ready, reporting how many
// were reaped.
func (s *Scheduler) ReapExpiredClaims() (int, error) {
	ids, err := s.store.ReapExpiredClaims()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Stop drains the worker pool, waiting for in-flight tasks to finish.
func (s *Scheduler) Stop() {
	s.pool.StopAndWait()
}
