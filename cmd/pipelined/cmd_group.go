package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsa110/continuum-pipeline/internal/store"
)

var groupListState string

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "inspect observation groups in the State Store",
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "list groups, optionally filtered by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		states := groupStates
		if groupListState != "" {
			states = []store.GroupState{store.GroupState(groupListState)}
		}

		for _, gs := range states {
			groups, err := st.GroupsByState(gs)
			if err != nil {
				return fmt.Errorf("groups by state %s: %w", gs, err)
			}
			for _, g := range groups {
				fmt.Printf("%s\t%s\t%d/%d subbands\tattempts=%d\tfresh=%v\n",
					g.GroupID, g.State, len(g.MemberPaths), g.ExpectedSubbands, g.AttemptCount, g.FreshProduct)
				if g.LastError != "" {
					fmt.Printf("\tlast_error: %s\n", g.LastError)
				}
			}
		}
		return nil
	},
}

func init() {
	groupListCmd.Flags().StringVar(&groupListState, "state", "", "filter by group state (collecting, pending, in_progress, completed, failed, abandoned)")
}
