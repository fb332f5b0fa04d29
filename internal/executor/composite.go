package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/dsa110/continuum-pipeline/internal/store"
)

// Composite routes each operation to a registered Executor, falling back
// to a default when no override is registered — grounded on the pattern
// of routing by mode to a registered handler, generalized here from
// "sandbox mode" to "pipeline operation kind" so a deployment can swap in
// a specialized executor (e.g. a GPU-backed imager) for one operation
// without replacing the whole adapter.
type Composite struct {
	mu       sync.RWMutex
	fallback Executor
	byKind   map[string]Executor
}

// Operation kinds a Composite can route independently.
const (
	OpConvert           = "convert"
	OpSolveCalibration  = "solve_calibration"
	OpApplyCalibration  = "apply_calibration"
	OpImage             = "image"
	OpPhotometry        = "photometry"
)

// NewComposite builds a Composite that falls back to the given Executor
// for any operation without a more specific registration.
func NewComposite(fallback Executor) *Composite {
	return &Composite{fallback: fallback, byKind: map[string]Executor{}}
}

// Register routes a specific operation kind to a dedicated Executor.
func (c *Composite) Register(kind string, e Executor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKind[kind] = e
}

func (c *Composite) resolve(kind string) (Executor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.byKind[kind]; ok {
		return e, nil
	}
	if c.fallback == nil {
		return nil, fmt.Errorf("executor: no executor registered for %s and no fallback set", kind)
	}
	return c.fallback, nil
}

func (c *Composite) Convert(ctx context.Context, group store.Group, scratchDir string) (store.MSRecord, error) {
	e, err := c.resolve(OpConvert)
	if err != nil {
		return store.MSRecord{}, err
	}
	return e.Convert(ctx, group, scratchDir)
}

func (c *Composite) SolveCalibration(ctx context.Context, ms store.MSRecord, calibrator store.CalibratorSource, refant *int, scratchDir string) ([]store.CalTable, error) {
	e, err := c.resolve(OpSolveCalibration)
	if err != nil {
		return nil, err
	}
	return e.SolveCalibration(ctx, ms, calibrator, refant, scratchDir)
}

func (c *Composite) ApplyCalibration(ctx context.Context, ms store.MSRecord, tables []store.CalTable, scratchDir string) (store.MSRecord, error) {
	e, err := c.resolve(OpApplyCalibration)
	if err != nil {
		return store.MSRecord{}, err
	}
	return e.ApplyCalibration(ctx, ms, tables, scratchDir)
}

func (c *Composite) Image(ctx context.Context, ms store.MSRecord, params ImageParams, scratchDir string) (store.ImageRecord, error) {
	e, err := c.resolve(OpImage)
	if err != nil {
		return store.ImageRecord{}, err
	}
	return e.Image(ctx, ms, params, scratchDir)
}

func (c *Composite) Photometry(ctx context.Context, img store.ImageRecord, sources []SourcePosition) ([]store.PhotometryRow, error) {
	e, err := c.resolve(OpPhotometry)
	if err != nil {
		return nil, err
	}
	return e.Photometry(ctx, img, sources)
}

var _ Executor = (*Composite)(nil)
