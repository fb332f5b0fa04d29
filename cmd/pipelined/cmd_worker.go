package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dsa110/continuum-pipeline/internal/calibration"
	"github.com/dsa110/continuum-pipeline/internal/calibrator"
	"github.com/dsa110/continuum-pipeline/internal/executor"
	"github.com/dsa110/continuum-pipeline/internal/fileindex"
	"github.com/dsa110/continuum-pipeline/internal/group"
	"github.com/dsa110/continuum-pipeline/internal/housekeeping"
	"github.com/dsa110/continuum-pipeline/internal/logging"
	"github.com/dsa110/continuum-pipeline/internal/orchestrator"
	"github.com/dsa110/continuum-pipeline/internal/scheduler"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

const taskKindOrchestrate = "orchestrate"

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "run the continuum pipeline daemon: ingest, assemble, schedule, orchestrate, housekeep",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context())
	},
}

func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	assembler := group.New(st, cfg.Group.ClusterToleranceS, cfg.Group.ExpectedSubbands, cfg.Group.CollectingTimeout())

	registry := calibrator.New(st, cfg.Calibrator.MaxPerStrip)
	if _, err := registry.Build(cfg.Calibrator.SourcesPath); err != nil {
		logging.Get(logging.CategoryCalibrator).Warn("initial calibrator registry build failed, continuing with store snapshot: %v", err)
	}

	calMgr := calibration.New(st, cfg.Calibration.WindowH, cfg.Calibration.MaxExtrapH, cfg.Calibration.TransitSearchDeg, cfg.Calibration.MinQuality)

	exec := executor.NewComposite(executor.New(
		cfg.Executor.ConvertBinary, cfg.Executor.SolveBinary, cfg.Executor.ApplyBinary,
		cfg.Executor.ImageBinary, cfg.Executor.PhotometryBinary,
		time.Duration(cfg.Executor.TimeoutS)*time.Second,
	))

	orch := orchestrator.New(st, assembler, calMgr, registry, exec, orchestrator.NoSources{}, cfg.StateDir, orchestrator.Params{
		Image:                   executor.ImageParams{CellSizeArcsec: 3, ImageSizePix: 4096, Robust: -0.5},
		TransitBeamHalfPowerDeg: 1.5,
		TransitPBThreshold:      0.3,
		MinFluxJy:               cfg.Calibrator.MinQualityJy,
		MinCalibratorQuality:    cfg.Calibration.MinQuality,
		RefantDefault:           cfg.Calibration.RefantDefault,
	})

	pool := pond.New(cfg.Scheduler.AdmissionConcurrency, 0, pond.MinWorkers(cfg.Scheduler.AdmissionConcurrency), pond.Context(ctx))
	defer pool.StopAndWait()

	sched := scheduler.New(st, pool, cfg.Scheduler.TaskLease(), cfg.Scheduler.TaskBackoffBaseS, cfg.Scheduler.TaskMaxAttempts, true)

	runner := func(ctx context.Context, task store.Task) error {
		switch task.Kind {
		case taskKindOrchestrate:
			groupID, _ := task.Payload["group_id"].(string)
			return orch.ProcessGroup(ctx, groupID)
		default:
			return fmt.Errorf("worker: unknown task kind %q", task.Kind)
		}
	}

	watcher, err := fileindex.New(cfg.IncomingDir, st)
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.ScanExisting(); err != nil {
		logging.FileIndex("initial incoming scan reported: %v", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start file watcher: %w", err)
	}
	defer watcher.Stop()

	hk := housekeeping.New(st, assembler, sched, scratchRoot(), housekeeping.Config{
		InProgressTimeout:      cfg.Group.InProgressTimeout(),
		ScratchRetention:       time.Duration(cfg.Housekeeping.ScratchRetentionS) * time.Second,
		WALCheckpointThreshold: cfg.Housekeeping.WALCheckpointThresholdBytes,
	})

	workerID := fmt.Sprintf("worker-%s", uuid.New().String())
	assembleTicker := time.NewTicker(5 * time.Second)
	defer assembleTicker.Stop()
	housekeepTicker := time.NewTicker(time.Duration(cfg.Housekeeping.IntervalS) * time.Second)
	defer housekeepTicker.Stop()
	pollTicker := time.NewTicker(time.Duration(cfg.Scheduler.PollIntervalMs) * time.Millisecond)
	defer pollTicker.Stop()

	logging.Get(logging.CategoryBoot).Info("worker %s started: state_dir=%s incoming_dir=%s", workerID, cfg.StateDir, cfg.IncomingDir)

	for {
		select {
		case <-ctx.Done():
			sched.Stop()
			logging.Get(logging.CategoryBoot).Info("worker %s shutting down", workerID)
			return nil

		case <-assembleTicker.C:
			now := time.Now().UTC()
			if err := assembler.Run(now); err != nil {
				logging.GroupDebug("assembler run: %v", err)
			}
			if err := spawnOrchestrateTasksForPendingGroups(st, sched); err != nil {
				logging.SchedulerWarn("spawn orchestrate tasks: %v", err)
			}

		case <-housekeepTicker.C:
			if _, err := hk.Run(time.Now().UTC()); err != nil {
				logging.Housekeeping("run: %v", err)
			}

		case <-pollTicker.C:
			if _, err := sched.RunOnce(ctx, workerID, runner); err != nil {
				logging.SchedulerWarn("run once: %v", err)
			}
		}
	}
}

// spawnOrchestrateTasksForPendingGroups ensures every group that has
// reached `pending` has exactly one scheduler task driving it, under the
// "orchestrate:<group_id>" task_id convention housekeeping's
// recover-in-progress action also relies on.
func spawnOrchestrateTasksForPendingGroups(st *store.Store, sched *scheduler.Scheduler) error {
	groups, err := st.GroupsByState(store.GroupPending)
	if err != nil {
		return err
	}
	for _, g := range groups {
		taskID := housekeeping.OrchestrateTaskID(g.GroupID)
		existing, err := st.GetTask(taskID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := sched.Spawn(store.Task{
			TaskID:      taskID,
			Kind:        taskKindOrchestrate,
			Payload:     map[string]interface{}{"group_id": g.GroupID},
			MaxAttempts: 3,
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}
	}
	return nil
}
