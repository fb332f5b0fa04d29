package group

import (
	"fmt"
	"time"

	"github.com/dsa110/continuum-pipeline/internal/logging"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

// transitions enumerates the legal moves of the Group state machine
// (spec.md §4.3). Any TransitionGroup call outside this table is
// rejected before it reaches the store.
var transitions = map[store.GroupState][]store.GroupState{
	store.GroupCollecting: {store.GroupPending, store.GroupFailed},
	store.GroupPending:    {store.GroupInProgress},
	store.GroupInProgress: {store.GroupCompleted, store.GroupFailed, store.GroupPending},
	store.GroupFailed:     {store.GroupPending, store.GroupAbandoned},
	store.GroupCompleted:  {store.GroupAbandoned},
	store.GroupAbandoned:  {},
}

// ValidTransition reports whether moving a Group from `from` to `to` is
// legal per the state machine.
func ValidTransition(from, to store.GroupState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Store is the subset of *store.Store the assembler needs.
type Store interface {
	AllFiles() ([]store.RawFile, error)
	GetGroup(groupID string) (*store.Group, error)
	UpsertGroup(g store.Group) error
	TransitionGroup(groupID string, newState store.GroupState, lastError string) error
	GroupsByState(state store.GroupState) ([]store.Group, error)
	MarkConsumed(paths []string) error
}

// Assembler drives raw files through clustering and the Group state
// machine against a Store.
type Assembler struct {
	store              Store
	toleranceS         int
	expectedSubbands   int
	collectingTimeout  time.Duration
}

// New builds an Assembler with the given clustering tolerance, expected
// subband count, and collecting-state timeout.
func New(st Store, toleranceS, expectedSubbands int, collectingTimeout time.Duration) *Assembler {
	return &Assembler{
		store:             st,
		toleranceS:        toleranceS,
		expectedSubbands:  expectedSubbands,
		collectingTimeout: collectingTimeout,
	}
}

// Run takes a fresh File Index snapshot, clusters it, and reconciles the
// result against persisted Group rows: new clusters are created
// `collecting` (or `pending` if already complete), existing
// `collecting`/`pending` groups absorb newly arrived members, and members
// that arrive for a cluster whose persisted group has already left
// collecting/pending are quarantined into a new group rather than
// mutating the in-flight or terminal one.
func (a *Assembler) Run(now time.Time) error {
	files, err := a.store.AllFiles()
	if err != nil {
		return fmt.Errorf("group: load file index: %w", err)
	}

	clusters := Assemble(files, a.toleranceS)
	for _, c := range clusters {
		if err := a.reconcile(c, now); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) reconcile(c Cluster, now time.Time) error {
	groupID := c.GroupID()
	if groupID == "" {
		return ErrEmptyCluster
	}
	members := c.MemberPaths()

	existing, err := a.store.GetGroup(groupID)
	if err != nil {
		return fmt.Errorf("group: lookup %s: %w", groupID, err)
	}

	if existing == nil {
		state := store.GroupCollecting
		if len(members) >= a.expectedSubbands {
			state = store.GroupPending
		}
		g := store.Group{
			GroupID:          groupID,
			ExpectedSubbands: a.expectedSubbands,
			MemberPaths:      members,
			State:            state,
			CreatedAt:        now,
			StateChangedAt:   now,
		}
		if err := a.store.UpsertGroup(g); err != nil {
			return fmt.Errorf("group: create %s: %w", groupID, err)
		}
		logging.Group("new group %s (%d/%d subbands, state=%s)", groupID, len(members), a.expectedSubbands, state)
		return nil
	}

	switch existing.State {
	case store.GroupCollecting, store.GroupPending:
		merged := mergeMembers(existing.MemberPaths, members)
		g := *existing
		g.MemberPaths = merged
		if err := a.store.UpsertGroup(g); err != nil {
			return fmt.Errorf("group: merge members into %s: %w", groupID, err)
		}
		if existing.State == store.GroupCollecting && len(merged) >= a.expectedSubbands {
			return a.transition(groupID, store.GroupPending, "")
		}
		return nil
	default:
		// Late arrival after the group left collecting/pending: quarantine
		// any member not already recorded rather than mutating the group.
		extra := newMembers(existing.MemberPaths, members)
		if len(extra) == 0 {
			return nil
		}
		return a.quarantineLateArrival(groupID, extra, now)
	}
}

func mergeMembers(existing, incoming map[int]string) map[int]string {
	out := make(map[int]string, len(existing)+len(incoming))
	for sb, p := range existing {
		out[sb] = p
	}
	for sb, p := range incoming {
		out[sb] = p
	}
	return out
}

func newMembers(existing, incoming map[int]string) map[int]string {
	out := map[int]string{}
	for sb, p := range incoming {
		if _, ok := existing[sb]; !ok {
			out[sb] = p
		}
	}
	return out
}

func (a *Assembler) quarantineLateArrival(originalGroupID string, extra map[int]string, now time.Time) error {
	quarantineID := fmt.Sprintf("%s#late#%d", originalGroupID, now.UnixNano())
	g := store.Group{
		GroupID:          quarantineID,
		ExpectedSubbands: a.expectedSubbands,
		MemberPaths:      extra,
		State:            store.GroupCollecting,
		CreatedAt:        now,
		StateChangedAt:   now,
		LastError:        fmt.Sprintf("late arrival after group %s left collecting/pending", originalGroupID),
	}
	if err := a.store.UpsertGroup(g); err != nil {
		return fmt.Errorf("group: quarantine late arrival for %s: %w", originalGroupID, err)
	}
	logging.Get(logging.CategoryGroupAssembly).Warn("late arrival quarantined as %s (original group %s)", quarantineID, originalGroupID)
	return nil
}

// transition validates and applies a Group state move.
func (a *Assembler) transition(groupID string, to store.GroupState, lastError string) error {
	g, err := a.store.GetGroup(groupID)
	if err != nil {
		return err
	}
	if g == nil {
		return fmt.Errorf("group: %s not found", groupID)
	}
	if !ValidTransition(g.State, to) {
		return fmt.Errorf("group: illegal transition %s -> %s for %s", g.State, to, groupID)
	}
	return a.store.TransitionGroup(groupID, to, lastError)
}

// Transition exposes the validated transition to external callers (the
// orchestrator advancing a group through in_progress/completed/failed).
func (a *Assembler) Transition(groupID string, to store.GroupState, lastError string) error {
	return a.transition(groupID, to, lastError)
}

// FailStaleCollecting marks every group still `collecting` whose
// creation time is older than the configured collecting_timeout as
// `failed`(incomplete) — the Group Assembler's half of Housekeeping's
// "fail stale collecting" action (spec.md §4.9).
func (a *Assembler) FailStaleCollecting(now time.Time) (int, error) {
	groups, err := a.store.GroupsByState(store.GroupCollecting)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, g := range groups {
		if now.Sub(g.CreatedAt) < a.collectingTimeout {
			continue
		}
		if err := a.transition(g.GroupID, store.GroupFailed, "incomplete"); err != nil {
			return failed, err
		}
		failed++
	}
	return failed, nil
}
