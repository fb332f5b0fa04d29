package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// sentinelName marks a scratch directory as owned by a live task;
// housekeeping's prune-scratch pass refuses to remove a directory whose
// sentinel is newer than the retention threshold even if the directory
// itself looks stale.
const sentinelName = ".owner"

// AcquireScratch creates `<stateDir>/scratch/<taskID>/` (or a fresh
// uuid-suffixed directory if taskID is empty) and writes its ownership
// sentinel, returning the directory path for the executor to stage
// intermediate artifacts in.
func AcquireScratch(stateDir, taskID string) (string, error) {
	name := taskID
	if name == "" {
		name = uuid.New().String()
	}
	dir := filepath.Join(stateDir, "scratch", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("executor: create scratch dir: %w", err)
	}
	sentinel := filepath.Join(dir, sentinelName)
	if err := os.WriteFile(sentinel, []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		return "", fmt.Errorf("executor: write scratch sentinel: %w", err)
	}
	return dir, nil
}

// PublishArtifact atomically moves a finished scratch artifact to its
// final location via rename, so a reader never observes a partially
// written file at the destination path.
func PublishArtifact(scratchPath, finalPath string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("executor: create destination dir: %w", err)
	}
	if err := os.Rename(scratchPath, finalPath); err != nil {
		return fmt.Errorf("executor: publish artifact: %w", err)
	}
	return nil
}

// ReleaseScratch removes a task's scratch directory once its artifacts
// have been published elsewhere.
func ReleaseScratch(stateDir, taskID string) error {
	dir := filepath.Join(stateDir, "scratch", taskID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("executor: release scratch dir: %w", err)
	}
	return nil
}

// SentinelAge returns how long ago a scratch directory's ownership
// sentinel was written, used by housekeeping to decide whether a
// directory is stale enough to prune.
func SentinelAge(scratchDir string, now time.Time) (time.Duration, error) {
	info, err := os.Stat(filepath.Join(scratchDir, sentinelName))
	if err != nil {
		return 0, err
	}
	return now.Sub(info.ModTime()), nil
}
