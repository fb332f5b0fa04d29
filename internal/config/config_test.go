package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 16, cfg.Group.ExpectedSubbands)
	assert.Equal(t, 60, cfg.Group.ClusterToleranceS)
	assert.Equal(t, 3, cfg.Scheduler.TaskMaxAttempts)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Group.ExpectedSubbands, cfg.Group.ExpectedSubbands)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
state_dir: /var/pipeline/state
group:
  expected_subbands: 8
  group_cluster_tolerance_s: 30
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/pipeline/state", cfg.StateDir)
	assert.Equal(t, 8, cfg.Group.ExpectedSubbands)
	assert.Equal(t, 30, cfg.Group.ClusterToleranceS)
	// Untouched fields keep their defaults.
	assert.Equal(t, 3, cfg.Scheduler.TaskMaxAttempts)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
group:
  expected_subbands: 8
`), 0o644))

	t.Setenv("PIPELINE_GROUP_EXPECTED_SUBBANDS", "4")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Group.ExpectedSubbands)
}
