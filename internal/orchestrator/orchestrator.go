// Package orchestrator drives a Group through the fixed stage DAG
// (Convert -> CalibrationSolve? -> CalibrationApply -> Image ->
// Photometry -> Index/Organize), consulting the Calibrator Registry and
// Calibration Lifecycle Manager and delegating heavy work to an Executor.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/dsa110/continuum-pipeline/internal/calibration"
	"github.com/dsa110/continuum-pipeline/internal/executor"
	"github.com/dsa110/continuum-pipeline/internal/group"
	"github.com/dsa110/continuum-pipeline/internal/logging"
	"github.com/dsa110/continuum-pipeline/internal/pipeerr"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

// Store is the subset of *store.Store the orchestrator needs beyond what
// it reaches through group.Assembler and calibration.Manager.
type Store interface {
	GetGroup(groupID string) (*store.Group, error)
	MSByGroup(groupID string) (*store.MSRecord, error)
	InsertMS(m store.MSRecord) error
	AdvanceStage(msPath string, newStage store.MSStage) error
	SetMSStatus(msPath string, status store.MSStatus) error
	SetGroupFreshProduct(groupID string, fresh bool) error
	InsertImage(img store.ImageRecord) error
	ImagesByMS(msPath string) ([]store.ImageRecord, error)
	InsertPhotometryRows(rows []store.PhotometryRow) error
}

// CalibratorSource abstracts the registry query the transit check needs.
type CalibratorSource interface {
	QueryCalibrators(decDeg, decTolerance, minFluxJy float64, minQuality, maxSources int) []store.CalibratorSource
}

// SourceProvider resolves forced-photometry target positions for an
// image's field of view. Catalog cross-matching itself is out of scope;
// this is the seam a caller plugs a real catalog lookup into.
type SourceProvider interface {
	Sources(centerRADeg, centerDecDeg float64) ([]executor.SourcePosition, error)
}

// NoSources is a SourceProvider that resolves no photometry targets,
// useful for groups/tests with no catalog configured.
type NoSources struct{}

func (NoSources) Sources(float64, float64) ([]executor.SourcePosition, error) { return nil, nil }

// Params bundles the per-run configuration the stage DAG needs beyond
// what's stored on entities: imaging parameters, transit detection
// thresholds, and calibrator quality/flux floors.
type Params struct {
	Image              executor.ImageParams
	TransitBeamHalfPowerDeg float64
	TransitPBThreshold float64
	DecTolerance       float64
	MinFluxJy          float64
	MinCalibratorQuality int
	RefantDefault      int
}

// Orchestrator drives one group at a time through the stage DAG.
type Orchestrator struct {
	store      Store
	assembler  *group.Assembler
	calMgr     *calibration.Manager
	registry   CalibratorSource
	exec       executor.Executor
	sources    SourceProvider
	stateDir   string
	params     Params
}

// New builds an Orchestrator. stateDir is the root under which scratch
// directories are created (AcquireScratch joins "scratch/<id>" onto it),
// matching the layout housekeeping's prune-scratch action sweeps.
func New(st Store, assembler *group.Assembler, calMgr *calibration.Manager, registry CalibratorSource, exec executor.Executor, sources SourceProvider, stateDir string, params Params) *Orchestrator {
	if sources == nil {
		sources = NoSources{}
	}
	return &Orchestrator{store: st, assembler: assembler, calMgr: calMgr, registry: registry, exec: exec, sources: sources, stateDir: stateDir, params: params}
}

// ProcessGroup drives groupID through every remaining stage, short-
// circuiting any stage whose target has already been reached (the
// idempotence mechanism of spec.md §4.7: an MSRecord's stage is checked
// before running, never re-run past its current point). Returns a
// classified pipeerr.Error on failure; the caller (the scheduler, via a
// task Runner) decides retry vs. terminal based on Kind.Retryable().
func (o *Orchestrator) ProcessGroup(ctx context.Context, groupID string) error {
	g, err := o.store.GetGroup(groupID)
	if err != nil {
		return err
	}
	if g == nil {
		return pipeerr.New(pipeerr.InvariantViolation, fmt.Sprintf("orchestrator: group %s not found", groupID))
	}

	if g.State == store.GroupPending {
		if err := o.assembler.Transition(groupID, store.GroupInProgress, ""); err != nil {
			return err
		}
	} else if g.State != store.GroupInProgress {
		return pipeerr.New(pipeerr.InvariantViolation, fmt.Sprintf("orchestrator: group %s is %s, not pending/in_progress", groupID, g.State))
	}

	ms, err := o.ensureConverted(ctx, *g)
	if err != nil {
		return o.fail(groupID, ms, err)
	}

	if !ms.Stage.AtLeast(store.StageCalibrated) {
		ms, err = o.calibrate(ctx, *g, ms)
		if err != nil {
			return o.fail(groupID, ms, err)
		}
	}

	if !ms.Stage.AtLeast(store.StageImaged) {
		ms, err = o.image(ctx, ms)
		if err != nil {
			return o.fail(groupID, ms, err)
		}
	}

	if !ms.Stage.AtLeast(store.StagePhotometryComplete) {
		ms, err = o.photometry(ctx, ms)
		if err != nil {
			return o.fail(groupID, ms, err)
		}
	}

	if err := o.store.SetMSStatus(ms.MSPath, store.MSStatusOK); err != nil {
		return err
	}
	if err := o.assembler.Transition(groupID, store.GroupCompleted, ""); err != nil {
		return err
	}
	logging.Orchestrator("group %s completed: ms=%s", groupID, ms.MSPath)
	return nil
}

func (o *Orchestrator) ensureConverted(ctx context.Context, g store.Group) (store.MSRecord, error) {
	existing, err := o.store.MSByGroup(g.GroupID)
	if err != nil {
		return store.MSRecord{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	scratch, err := executor.AcquireScratch(o.stateDir, g.GroupID)
	if err != nil {
		return store.MSRecord{}, pipeerr.Wrap(pipeerr.Transient, "orchestrator: acquire scratch for convert", err)
	}
	ms, err := o.exec.Convert(ctx, g, scratch)
	if err != nil {
		return store.MSRecord{}, err
	}
	ms.Stage = store.StageConverted
	if ms.Status == "" {
		ms.Status = store.MSStatusOK
	}
	if err := o.store.InsertMS(ms); err != nil {
		return store.MSRecord{}, err
	}
	logging.OrchestratorDebug("group %s converted: ms=%s", g.GroupID, ms.MSPath)
	return ms, nil
}

func (o *Orchestrator) calibrate(ctx context.Context, g store.Group, ms store.MSRecord) (store.MSRecord, error) {
	midMJD := ms.MidMJD()

	if cand := o.detectTransit(midMJD); cand != nil {
		if err := o.solveAndRegister(ctx, ms, cand.Calibrator); err != nil {
			return ms, err
		}
		if err := o.store.SetGroupFreshProduct(g.GroupID, true); err != nil {
			return ms, err
		}
	}

	bp, err := o.calMgr.SelectForApply(store.CalKindBandpass, midMJD)
	if err != nil {
		return ms, err
	}
	gain, err := o.calMgr.SelectForApply(store.CalKindGain, midMJD)
	if err != nil {
		return ms, err
	}

	scratch, err := executor.AcquireScratch(o.stateDir, ms.MSPath)
	if err != nil {
		return ms, pipeerr.Wrap(pipeerr.Transient, "orchestrator: acquire scratch for apply", err)
	}
	applied, err := o.exec.ApplyCalibration(ctx, ms, []store.CalTable{*bp, *gain}, scratch)
	if err != nil {
		return ms, err
	}
	if err := o.store.AdvanceStage(ms.MSPath, store.StageCalibrated); err != nil {
		return ms, err
	}
	applied.Stage = store.StageCalibrated
	logging.OrchestratorDebug("ms %s calibrated (bp=%s gain=%s)", ms.MSPath, bp.TablePath, gain.TablePath)
	return applied, nil
}

func (o *Orchestrator) detectTransit(midMJD float64) *calibration.TransitCandidate {
	candidates := o.registry.QueryCalibrators(0, 90, o.params.MinFluxJy, o.params.MinCalibratorQuality, 0)
	return o.calMgr.DetectTransit(midMJD, candidates, o.params.TransitBeamHalfPowerDeg, o.params.TransitPBThreshold)
}

func (o *Orchestrator) solveAndRegister(ctx context.Context, ms store.MSRecord, calibrator store.CalibratorSource) error {
	scratch, err := executor.AcquireScratch(o.stateDir, ms.MSPath+"-solve")
	if err != nil {
		return pipeerr.Wrap(pipeerr.Transient, "orchestrator: acquire scratch for solve", err)
	}
	tables, err := o.exec.SolveCalibration(ctx, ms, calibrator, nil, scratch)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t.CalibratorName == "" {
			t.CalibratorName = calibrator.Name
		}
		if t.SolvedFromMS == "" {
			t.SolvedFromMS = ms.MSPath
		}
		if err := o.calMgr.RegisterSolved(t); err != nil {
			return err
		}
	}
	logging.Orchestrator("solved %d cal tables for %s from transit of %s", len(tables), ms.MSPath, calibrator.Name)
	return nil
}

func (o *Orchestrator) image(ctx context.Context, ms store.MSRecord) (store.MSRecord, error) {
	scratch, err := executor.AcquireScratch(o.stateDir, ms.MSPath+"-image")
	if err != nil {
		return ms, pipeerr.Wrap(pipeerr.Transient, "orchestrator: acquire scratch for image", err)
	}
	img, err := o.exec.Image(ctx, ms, o.params.Image, scratch)
	if err != nil {
		return ms, err
	}
	if err := o.store.InsertImage(img); err != nil {
		return ms, err
	}
	if err := o.store.AdvanceStage(ms.MSPath, store.StageImaged); err != nil {
		return ms, err
	}
	ms.Stage = store.StageImaged
	logging.OrchestratorDebug("ms %s imaged: %s", ms.MSPath, img.ImagePath)
	return ms, nil
}

func (o *Orchestrator) photometry(ctx context.Context, ms store.MSRecord) (store.MSRecord, error) {
	images, err := o.store.ImagesByMS(ms.MSPath)
	if err != nil {
		return ms, err
	}
	if len(images) == 0 {
		return ms, pipeerr.New(pipeerr.InvariantViolation, fmt.Sprintf("orchestrator: ms %s reached photometry with no image", ms.MSPath))
	}
	img := images[len(images)-1]

	sources, err := o.sources.Sources(img.CenterRADeg, img.CenterDecDeg)
	if err != nil {
		return ms, err
	}
	rows, err := o.exec.Photometry(ctx, img, sources)
	if err != nil {
		return ms, err
	}
	if err := o.store.InsertPhotometryRows(rows); err != nil {
		return ms, err
	}
	if err := o.store.AdvanceStage(ms.MSPath, store.StagePhotometryComplete); err != nil {
		return ms, err
	}
	ms.Stage = store.StagePhotometryComplete
	logging.OrchestratorDebug("ms %s photometry complete: %d rows", ms.MSPath, len(rows))
	return ms, nil
}

// fail classifies a stage error: RECOVERABLE (pipeerr.Transient) errors
// are returned as-is so the scheduler retries the task and the group
// stays in_progress; everything else fails the MS and the group
// terminally, per spec.md §4.7's DATA/FATAL handling.
func (o *Orchestrator) fail(groupID string, ms store.MSRecord, err error) error {
	kind := pipeerr.ClassifyOf(err)
	if kind.Retryable() {
		return err
	}
	if ms.MSPath != "" {
		if setErr := o.store.SetMSStatus(ms.MSPath, store.MSStatusFailed); setErr != nil {
			logging.OrchestratorWarn("group %s: failed to mark ms %s failed: %v", groupID, ms.MSPath, setErr)
		}
	}
	if transErr := o.assembler.Transition(groupID, store.GroupFailed, err.Error()); transErr != nil {
		logging.OrchestratorWarn("group %s: failed to transition to failed: %v", groupID, transErr)
	}
	return err
}
