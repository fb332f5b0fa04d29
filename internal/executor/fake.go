package executor

import (
	"context"

	"github.com/dsa110/continuum-pipeline/internal/store"
)

// Fake is a deterministic in-memory Executor for tests: it records every
// call it receives and returns caller-supplied canned results (or an
// error), so orchestrator tests can exercise stage sequencing without a
// real CASA/wsclean installation.
type Fake struct {
	Calls []string

	ConvertResult store.MSRecord
	ConvertErr    error

	SolveResult []store.CalTable
	SolveErr    error

	ApplyResult store.MSRecord
	ApplyErr    error

	ImageResult store.ImageRecord
	ImageErr    error

	PhotometryResult []store.PhotometryRow
	PhotometryErr    error
}

func (f *Fake) Convert(ctx context.Context, group store.Group, scratchDir string) (store.MSRecord, error) {
	f.Calls = append(f.Calls, "convert:"+group.GroupID)
	return f.ConvertResult, f.ConvertErr
}

func (f *Fake) SolveCalibration(ctx context.Context, ms store.MSRecord, calibrator store.CalibratorSource, refant *int, scratchDir string) ([]store.CalTable, error) {
	f.Calls = append(f.Calls, "solve:"+ms.MSPath)
	return f.SolveResult, f.SolveErr
}

func (f *Fake) ApplyCalibration(ctx context.Context, ms store.MSRecord, tables []store.CalTable, scratchDir string) (store.MSRecord, error) {
	f.Calls = append(f.Calls, "apply:"+ms.MSPath)
	return f.ApplyResult, f.ApplyErr
}

func (f *Fake) Image(ctx context.Context, ms store.MSRecord, params ImageParams, scratchDir string) (store.ImageRecord, error) {
	f.Calls = append(f.Calls, "image:"+ms.MSPath)
	return f.ImageResult, f.ImageErr
}

func (f *Fake) Photometry(ctx context.Context, img store.ImageRecord, sources []SourcePosition) ([]store.PhotometryRow, error) {
	f.Calls = append(f.Calls, "photometry:"+img.ImagePath)
	return f.PhotometryResult, f.PhotometryErr
}

var _ Executor = (*Fake)(nil)
