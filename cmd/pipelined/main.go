// Command pipelined is the continuum pipeline's operator-facing daemon
// and maintenance CLI: it runs the worker loop (file ingest, group
// assembly, task scheduling, stage orchestration, housekeeping) and
// exposes one-shot subcommands for operators to inspect and repair
// pipeline state.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dsa110/continuum-pipeline/internal/config"
	"github.com/dsa110/continuum-pipeline/internal/logging"
)

var (
	configPath string
	stateDirFlag string
	debugFlag  bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pipelined",
	Short: "continuum-pipeline daemon and maintenance CLI",
	Long: `pipelined ingests raw subband files, assembles them into observation
groups, schedules and orchestrates their processing stages, and runs
periodic housekeeping against the State Store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if stateDirFlag != "" {
			loaded.StateDir = stateDirFlag
		}
		if debugFlag {
			loaded.Debug = true
		}
		cfg = loaded

		zapCfg := zap.NewProductionConfig()
		if cfg.Debug {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initialize zap logger: %w", err)
		}

		if err := logging.Initialize(cfg.StateDir, cfg.Debug); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&stateDirFlag, "state-dir", "", "override state_dir from config")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "v", false, "enable debug logging")

	groupCmd.AddCommand(groupListCmd)

	rootCmd.AddCommand(
		workerCmd,
		ingestCmd,
		housekeepingCmd,
		migrateCmd,
		statusCmd,
		groupCmd,
	)
}

func scratchRoot() string {
	return filepath.Join(cfg.StateDir, "scratch")
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
