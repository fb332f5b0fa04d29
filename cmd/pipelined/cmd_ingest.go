package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsa110/continuum-pipeline/internal/fileindex"
	"github.com/dsa110/continuum-pipeline/internal/group"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "one-shot scan of the incoming directory, then assemble and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		w, err := fileindex.New(cfg.IncomingDir, st)
		if err != nil {
			return fmt.Errorf("create file watcher: %w", err)
		}
		if err := w.ScanExisting(); err != nil {
			return fmt.Errorf("scan incoming directory: %w", err)
		}

		assembler := group.New(st, cfg.Group.ClusterToleranceS, cfg.Group.ExpectedSubbands, cfg.Group.CollectingTimeout())
		if err := assembler.Run(nowUTC()); err != nil {
			return fmt.Errorf("assemble groups: %w", err)
		}

		fmt.Println("ingest complete")
		return nil
	},
}
