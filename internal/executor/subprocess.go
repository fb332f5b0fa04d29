package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/dsa110/continuum-pipeline/internal/logging"
	"github.com/dsa110/continuum-pipeline/internal/pipeerr"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

// SubprocessExecutor shells out to the configured external binaries
// (uvh5_to_ms, casa_solve, casa_apply, wsclean, forced_phot), feeding each
// a JSON-encoded request on stdin and expecting a JSON-encoded result on
// stdout — a uniform wire contract so the orchestrator never needs to
// know any external tool's native CLI surface.
type SubprocessExecutor struct {
	ConvertBinary    string
	SolveBinary      string
	ApplyBinary      string
	ImageBinary      string
	PhotometryBinary string
	Timeout          time.Duration
}

// New builds a SubprocessExecutor from the given binary names and
// per-invocation timeout.
func New(convertBin, solveBin, applyBin, imageBin, photometryBin string, timeout time.Duration) *SubprocessExecutor {
	return &SubprocessExecutor{
		ConvertBinary:    convertBin,
		SolveBinary:      solveBin,
		ApplyBinary:      applyBin,
		ImageBinary:      imageBin,
		PhotometryBinary: photometryBin,
		Timeout:          timeout,
	}
}

// run executes binary with request marshaled to JSON on stdin, unmarshals
// the JSON result from stdout into result, and classifies failures: a
// context deadline is a pipeerr.Transient (retryable) error, the kind of
// transient executor failure §4.7's RECOVERABLE class describes; a
// non-zero exit is a pipeerr.ExecutorFailure, which is not retried.
func (e *SubprocessExecutor) run(ctx context.Context, binary string, request, result interface{}) error {
	timer := logging.StartTimer(logging.CategoryExecutor, fmt.Sprintf("run %s", binary))
	defer timer.Stop()

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	payload, err := json.Marshal(request)
	if err != nil {
		return pipeerr.Wrap(pipeerr.DataInconsistency, "executor: marshal request", err)
	}

	cmd := exec.CommandContext(execCtx, binary)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.ExecutorDebug("running %s (timeout=%s)", binary, e.Timeout)
	if err := cmd.Run(); err != nil {
		if execCtx.Err() != nil {
			return pipeerr.Wrap(pipeerr.Transient, fmt.Sprintf("executor: %s timed out", binary), execCtx.Err())
		}
		return pipeerr.Wrap(pipeerr.ExecutorFailure, fmt.Sprintf("executor: %s failed: %s", binary, stderr.String()), err)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(stdout.Bytes(), result); err != nil {
		return pipeerr.Wrap(pipeerr.DataInconsistency, fmt.Sprintf("executor: %s produced unparseable output", binary), err)
	}
	return nil
}

func (e *SubprocessExecutor) Convert(ctx context.Context, group store.Group, scratchDir string) (store.MSRecord, error) {
	req := map[string]interface{}{"group_id": group.GroupID, "member_paths": group.MemberPaths, "scratch_dir": scratchDir}
	var ms store.MSRecord
	err := e.run(ctx, e.ConvertBinary, req, &ms)
	return ms, err
}

func (e *SubprocessExecutor) SolveCalibration(ctx context.Context, ms store.MSRecord, calibrator store.CalibratorSource, refant *int, scratchDir string) ([]store.CalTable, error) {
	req := map[string]interface{}{"ms_path": ms.MSPath, "calibrator": calibrator, "refant": refant, "scratch_dir": scratchDir}
	var tables []store.CalTable
	err := e.run(ctx, e.SolveBinary, req, &tables)
	return tables, err
}

func (e *SubprocessExecutor) ApplyCalibration(ctx context.Context, ms store.MSRecord, tables []store.CalTable, scratchDir string) (store.MSRecord, error) {
	req := map[string]interface{}{"ms_path": ms.MSPath, "cal_tables": tables, "scratch_dir": scratchDir}
	var out store.MSRecord
	err := e.run(ctx, e.ApplyBinary, req, &out)
	return out, err
}

func (e *SubprocessExecutor) Image(ctx context.Context, ms store.MSRecord, params ImageParams, scratchDir string) (store.ImageRecord, error) {
	req := map[string]interface{}{"ms_path": ms.MSPath, "params": params, "scratch_dir": scratchDir}
	var img store.ImageRecord
	err := e.run(ctx, e.ImageBinary, req, &img)
	return img, err
}

func (e *SubprocessExecutor) Photometry(ctx context.Context, img store.ImageRecord, sources []SourcePosition) ([]store.PhotometryRow, error) {
	req := map[string]interface{}{"image_path": img.ImagePath, "sources": sources}
	var rows []store.PhotometryRow
	err := e.run(ctx, e.PhotometryBinary, req, &rows)
	return rows, err
}

var _ Executor = (*SubprocessExecutor)(nil)
