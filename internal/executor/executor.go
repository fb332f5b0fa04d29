// Package executor is the uniform, replaceable adapter around the heavy
// external operations (MS conversion, calibration solve/apply, imaging,
// photometry) that the orchestrator drives but never performs itself.
package executor

import (
	"context"

	"github.com/dsa110/continuum-pipeline/internal/store"
)

// ImageParams are the stage-specific parameters Image reads from the
// MSRecord and configuration rather than hard-coding.
type ImageParams struct {
	CellSizeArcsec float64
	ImageSizePix   int
	Robust         float64
}

// SourcePosition is one forced-photometry target, read from a reference
// catalog.
type SourcePosition struct {
	SourceID string
	RADeg    float64
	DecDeg   float64
}

// Executor is the boundary contract with the heavy external operations:
// every method takes and returns only §3 entities plus opaque filesystem
// paths, and must not read or mutate the State Store itself — all
// persistence happens in the orchestrator, from the values an Executor
// returns.
type Executor interface {
	Convert(ctx context.Context, group store.Group, scratchDir string) (store.MSRecord, error)
	SolveCalibration(ctx context.Context, ms store.MSRecord, calibrator store.CalibratorSource, refant *int, scratchDir string) ([]store.CalTable, error)
	ApplyCalibration(ctx context.Context, ms store.MSRecord, tables []store.CalTable, scratchDir string) (store.MSRecord, error)
	Image(ctx context.Context, ms store.MSRecord, params ImageParams, scratchDir string) (store.ImageRecord, error)
	Photometry(ctx context.Context, img store.ImageRecord, sources []SourcePosition) ([]store.PhotometryRow, error)
}
