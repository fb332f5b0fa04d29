package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsa110/continuum-pipeline/internal/store"
)

var groupStates = []store.GroupState{
	store.GroupCollecting, store.GroupPending, store.GroupInProgress,
	store.GroupCompleted, store.GroupFailed, store.GroupAbandoned,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print a summary of group and task counts by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		fmt.Println("groups:")
		for _, gs := range groupStates {
			groups, err := st.GroupsByState(gs)
			if err != nil {
				return fmt.Errorf("groups by state %s: %w", gs, err)
			}
			fmt.Printf("  %-12s %d\n", gs, len(groups))
		}

		taskStates := []store.TaskState{
			store.TaskBlocked, store.TaskReady, store.TaskClaimed,
			store.TaskRunning, store.TaskSucceeded, store.TaskFailed, store.TaskDead,
		}
		fmt.Println("tasks:")
		for _, ts := range taskStates {
			tasks, err := st.TasksByState(ts)
			if err != nil {
				return fmt.Errorf("tasks by state %s: %w", ts, err)
			}
			fmt.Printf("  %-12s %d\n", ts, len(tasks))
		}

		fmt.Printf("wal_size_bytes: %d\n", st.WALSizeBytes())
		return nil
	},
}
