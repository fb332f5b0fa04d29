package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsa110/continuum-pipeline/internal/group"
	"github.com/dsa110/continuum-pipeline/internal/housekeeping"
	"github.com/dsa110/continuum-pipeline/internal/scheduler"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

var housekeepingCmd = &cobra.Command{
	Use:   "housekeeping",
	Short: "run one housekeeping pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		assembler := group.New(st, cfg.Group.ClusterToleranceS, cfg.Group.ExpectedSubbands, cfg.Group.CollectingTimeout())
		// The scheduler gets a pool that runs nothing: this one-shot pass
		// only calls reap_expired_claims on it and never submits work.
		sched := scheduler.New(st, noopPool{}, cfg.Scheduler.TaskLease(), cfg.Scheduler.TaskBackoffBaseS, cfg.Scheduler.TaskMaxAttempts, true)

		hk := housekeeping.New(st, assembler, sched, scratchRoot(), housekeeping.Config{
			InProgressTimeout:      cfg.Group.InProgressTimeout(),
			ScratchRetention:       time.Duration(cfg.Housekeeping.ScratchRetentionS) * time.Second,
			WALCheckpointThreshold: cfg.Housekeeping.WALCheckpointThresholdBytes,
		})

		rep, err := hk.Run(nowUTC())
		if err != nil {
			return fmt.Errorf("housekeeping run: %w", err)
		}
		fmt.Printf("recovered_in_progress=%d failed_stale_collecting=%d reaped_claims=%d checkpointed=%v pruned_scratch_dirs=%d\n",
			rep.RecoveredInProgress, rep.FailedStaleCollecting, rep.ReapedClaims, rep.Checkpointed, rep.PrunedScratchDirs)
		return nil
	},
}

// noopPool never actually runs anything; the housekeeping CLI invocation
// never submits scheduler work, only calls ReapExpiredClaims directly.
type noopPool struct{}

func (noopPool) Submit(func()) {}
func (noopPool) StopAndWait()  {}
