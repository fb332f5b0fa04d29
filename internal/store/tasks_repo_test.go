package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTask(id string, deps ...string) Task {
	return Task{
		TaskID:      id,
		Kind:        "convert",
		Payload:     map[string]interface{}{"group_id": "g1"},
		DependsOn:   deps,
		MaxAttempts: 3,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSpawnWithNoDepsStartsReady(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))

	got, err := s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, TaskReady, got.State)
}

func TestSpawnWithUnsatisfiedDepsStartsBlocked(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))
	require.NoError(t, s.Spawn(newTestTask("t2", "t1")))

	got, err := s.GetTask("t2")
	require.NoError(t, err)
	require.Equal(t, TaskBlocked, got.State)
}

func TestSpawnWithSatisfiedDepsStartsReady(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))
	_, err := s.Claim("worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Complete("t1"))

	require.NoError(t, s.Spawn(newTestTask("t2", "t1")))
	got, err := s.GetTask("t2")
	require.NoError(t, err)
	require.Equal(t, TaskReady, got.State)
}

func TestSpawnRejectsUnknownDependency(t *testing.T) {
	s := openTestStore(t)
	err := s.Spawn(newTestTask("t2", "ghost"))
	require.Error(t, err)
}

func TestClaimSelectsHighestPriorityThenEarliest(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	low := newTestTask("low")
	low.Priority = 10
	low.CreatedAt = now
	low.NotBefore = now

	high := newTestTask("high")
	high.Priority = 1
	high.CreatedAt = now
	high.NotBefore = now

	require.NoError(t, s.Spawn(low))
	require.NoError(t, s.Spawn(high))

	claimed, err := s.Claim("worker-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "high", claimed.TaskID)
}

func TestClaimHonorsNotBefore(t *testing.T) {
	s := openTestStore(t)
	future := newTestTask("future")
	future.NotBefore = time.Now().Add(time.Hour)
	require.NoError(t, s.Spawn(future))

	claimed, err := s.Claim("worker-1", time.Minute)
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestClaimReturnsNilWhenNoneReady(t *testing.T) {
	s := openTestStore(t)
	claimed, err := s.Claim("worker-1", time.Minute)
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestClaimMovesStateAndBumpsAttempt(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))

	claimed, err := s.Claim("worker-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, TaskClaimed, claimed.State)
	require.Equal(t, 1, claimed.Attempt)
	require.Equal(t, "worker-1", claimed.ClaimedBy)

	again, err := s.Claim("worker-2", time.Minute)
	require.NoError(t, err)
	require.Nil(t, again, "exactly one claimant per task")
}

func TestHeartbeatExtendsLease(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))
	_, err := s.Claim("worker-1", time.Second)
	require.NoError(t, err)

	require.NoError(t, s.Heartbeat("t1", time.Hour))

	got, err := s.GetTask("t1")
	require.NoError(t, err)
	require.True(t, got.ClaimExpiresAt.After(time.Now().Add(time.Minute)))
}

func TestHeartbeatOnUnclaimedTaskErrors(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))
	err := s.Heartbeat("t1", time.Hour)
	require.Error(t, err)
}

func TestCompletePromotesDependentChain(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))
	require.NoError(t, s.Spawn(newTestTask("t2", "t1")))
	require.NoError(t, s.Spawn(newTestTask("t3", "t2")))

	_, err := s.Claim("worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Complete("t1"))

	t2, err := s.GetTask("t2")
	require.NoError(t, err)
	require.Equal(t, TaskReady, t2.State)

	t3, err := s.GetTask("t3")
	require.NoError(t, err)
	require.Equal(t, TaskBlocked, t3.State, "t3 still waits on t2")
}

func TestFailRetriesUnderMaxAttempts(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))
	_, err := s.Claim("worker-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Fail("t1", "transient blip", true, time.Millisecond))

	got, err := s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, TaskReady, got.State)
	require.Equal(t, "transient blip", got.LastError)
}

func TestFailExhaustsToFailedState(t *testing.T) {
	s := openTestStore(t)
	task := newTestTask("t1")
	task.MaxAttempts = 1
	require.NoError(t, s.Spawn(task))

	_, err := s.Claim("worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Fail("t1", "still broken", true, 0))

	got, err := s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, TaskFailed, got.State)
}

func TestFailNonRetryableGoesStraightToFailed(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))
	_, err := s.Claim("worker-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Fail("t1", "malformed input", false, 0))

	got, err := s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, TaskFailed, got.State)
}

func TestFailCascadesToBlockedDependents(t *testing.T) {
	s := openTestStore(t)
	task := newTestTask("t1")
	task.MaxAttempts = 1
	require.NoError(t, s.Spawn(task))
	require.NoError(t, s.Spawn(newTestTask("t2", "t1")))
	require.NoError(t, s.Spawn(newTestTask("t3", "t2")))

	_, err := s.Claim("worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Fail("t1", "fatal", false, 0))

	t2, err := s.GetTask("t2")
	require.NoError(t, err)
	require.Equal(t, TaskFailed, t2.State)

	t3, err := s.GetTask("t3")
	require.NoError(t, err)
	require.Equal(t, TaskFailed, t3.State, "failure cascades transitively")
}

func TestReapExpiredClaimsReturnsToReady(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))
	_, err := s.Claim("worker-1", -time.Second)
	require.NoError(t, err)

	reaped, err := s.ReapExpiredClaims()
	require.NoError(t, err)
	require.Equal(t, []string{"t1"}, reaped)

	got, err := s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, TaskReady, got.State)
	require.Empty(t, got.ClaimedBy)
}

func TestReapExpiredClaimsIgnoresFreshLeases(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))
	_, err := s.Claim("worker-1", time.Hour)
	require.NoError(t, err)

	reaped, err := s.ReapExpiredClaims()
	require.NoError(t, err)
	require.Empty(t, reaped)
}

func TestDeadLetterRequiresFailedState(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Spawn(newTestTask("t1")))
	require.Error(t, s.DeadLetter("t1"), "ready task is not eligible for dead-letter")
}

func TestDeadLetterMovesFailedToDead(t *testing.T) {
	s := openTestStore(t)
	task := newTestTask("t1")
	task.MaxAttempts = 1
	require.NoError(t, s.Spawn(task))
	_, err := s.Claim("w1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Fail("t1", "boom", true, time.Millisecond))

	require.NoError(t, s.DeadLetter("t1"))
	got, err := s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, TaskDead, got.State)
}

func TestTasksByStateOrdersByPriorityThenNotBeforeThenID(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	for _, id := range []string{"b", "a", "c"} {
		task := newTestTask(id)
		task.NotBefore = now
		require.NoError(t, s.Spawn(task))
	}

	ready, err := s.TasksByState(TaskReady)
	require.NoError(t, err)
	require.Len(t, ready, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{ready[0].TaskID, ready[1].TaskID, ready[2].TaskID})
}
