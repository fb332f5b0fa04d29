// Package config loads the continuum pipeline's configuration from YAML
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pipeline configuration.
type Config struct {
	StateDir string `yaml:"state_dir"`
	IncomingDir string `yaml:"incoming_dir"`
	Debug    bool   `yaml:"debug"`

	Group       GroupConfig       `yaml:"group"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Calibrator  CalibratorConfig  `yaml:"calibrator"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Executor    ExecutorConfig    `yaml:"executor"`
}

// CalibratorConfig controls the Calibrator Registry & Coverage Engine.
type CalibratorConfig struct {
	SourcesPath    string  `yaml:"sources_path"`
	MaxPerStrip    int     `yaml:"max_per_strip"`
	DecStripWidth  int     `yaml:"dec_strip_width"`
	MinQualityJy   float64 `yaml:"min_flux_jy"`
}

// GroupConfig controls the File Index and Group Assembler.
type GroupConfig struct {
	ExpectedSubbands       int `yaml:"expected_subbands"`
	ClusterToleranceS      int `yaml:"group_cluster_tolerance_s"`
	CollectingTimeoutS     int `yaml:"collecting_timeout_s"`
	InProgressTimeoutS     int `yaml:"in_progress_timeout_s"`
}

// SchedulerConfig controls task leasing, retry and admission control.
type SchedulerConfig struct {
	TaskLeaseS        int `yaml:"task_lease_s"`
	TaskBackoffBaseS  int `yaml:"task_backoff_base_s"`
	TaskMaxAttempts   int `yaml:"task_max_attempts"`
	AdmissionConcurrency int `yaml:"admission_concurrency"`
	PollIntervalMs    int `yaml:"poll_interval_ms"`
}

// CalibrationConfig controls calibration validity and transit detection.
type CalibrationConfig struct {
	WindowH          float64 `yaml:"calibration_window_h"`
	MaxExtrapH       float64 `yaml:"calibration_max_extrap_h"`
	TransitSearchDeg float64 `yaml:"transit_search_deg"`
	RefantDefault    int     `yaml:"refant_default"`
	MinQuality       int     `yaml:"min_calibrator_quality"`
}

// HousekeepingConfig controls periodic maintenance.
type HousekeepingConfig struct {
	ScratchRetentionS int `yaml:"scratch_retention_s"`
	WALCheckpointThresholdBytes int64 `yaml:"wal_checkpoint_threshold_bytes"`
	IntervalS int `yaml:"interval_s"`
}

// ExecutorConfig controls the external tool adapter.
type ExecutorConfig struct {
	TimeoutS          int    `yaml:"timeout_s"`
	ConvertBinary      string `yaml:"convert_binary"`
	SolveBinary        string `yaml:"solve_binary"`
	ApplyBinary        string `yaml:"apply_binary"`
	ImageBinary        string `yaml:"image_binary"`
	PhotometryBinary   string `yaml:"photometry_binary"`
}

// Default returns the pipeline's documented defaults.
func Default() *Config {
	return &Config{
		StateDir:    "./state",
		IncomingDir: "./incoming",
		Debug:       false,
		Group: GroupConfig{
			ExpectedSubbands:   16,
			ClusterToleranceS:  60,
			CollectingTimeoutS: 600,
			InProgressTimeoutS: 3600,
		},
		Scheduler: SchedulerConfig{
			TaskLeaseS:           300,
			TaskBackoffBaseS:     5,
			TaskMaxAttempts:      3,
			AdmissionConcurrency: 8,
			PollIntervalMs:       500,
		},
		Calibrator: CalibratorConfig{
			SourcesPath:   "calibrator_sources.json",
			MaxPerStrip:   20,
			DecStripWidth: 10,
			MinQualityJy:  0.1,
		},
		Calibration: CalibrationConfig{
			WindowH:          6,
			MaxExtrapH:       6,
			TransitSearchDeg: 0.5,
			RefantDefault:    0,
			MinQuality:       50,
		},
		Housekeeping: HousekeepingConfig{
			ScratchRetentionS:           86400,
			WALCheckpointThresholdBytes: 1 << 30,
			IntervalS:                   60,
		},
		Executor: ExecutorConfig{
			TimeoutS:         3600,
			ConvertBinary:    "uvh5_to_ms",
			SolveBinary:      "casa_solve",
			ApplyBinary:      "casa_apply",
			ImageBinary:      "wsclean",
			PhotometryBinary: "forced_phot",
		},
	}
}

// Load reads a YAML config file, falling back to defaults for any field
// left unset, then applies PIPELINE_* environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides layers PIPELINE_<SECTION>_<KEY>=value environment
// variables on top of the parsed YAML config, mirroring the two-layer
// precedence (file then environment) common to operator-facing CLIs.
func applyEnvOverrides(cfg *Config) {
	set := func(env string, dst *int) {
		if v, ok := os.LookupEnv(env); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(env string, dst *float64) {
		if v, ok := os.LookupEnv(env); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setStr := func(env string, dst *string) {
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}
	setBool := func(env string, dst *bool) {
		if v, ok := os.LookupEnv(env); ok {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	setStr("PIPELINE_STATE_DIR", &cfg.StateDir)
	setStr("PIPELINE_INCOMING_DIR", &cfg.IncomingDir)
	setBool("PIPELINE_DEBUG", &cfg.Debug)

	set("PIPELINE_GROUP_EXPECTED_SUBBANDS", &cfg.Group.ExpectedSubbands)
	set("PIPELINE_GROUP_CLUSTER_TOLERANCE_S", &cfg.Group.ClusterToleranceS)
	set("PIPELINE_GROUP_COLLECTING_TIMEOUT_S", &cfg.Group.CollectingTimeoutS)
	set("PIPELINE_GROUP_IN_PROGRESS_TIMEOUT_S", &cfg.Group.InProgressTimeoutS)

	set("PIPELINE_SCHEDULER_TASK_LEASE_S", &cfg.Scheduler.TaskLeaseS)
	set("PIPELINE_SCHEDULER_TASK_BACKOFF_BASE_S", &cfg.Scheduler.TaskBackoffBaseS)
	set("PIPELINE_SCHEDULER_TASK_MAX_ATTEMPTS", &cfg.Scheduler.TaskMaxAttempts)
	set("PIPELINE_SCHEDULER_ADMISSION_CONCURRENCY", &cfg.Scheduler.AdmissionConcurrency)

	setFloat("PIPELINE_CALIBRATION_WINDOW_H", &cfg.Calibration.WindowH)
	setFloat("PIPELINE_CALIBRATION_MAX_EXTRAP_H", &cfg.Calibration.MaxExtrapH)
	setFloat("PIPELINE_CALIBRATION_TRANSIT_SEARCH_DEG", &cfg.Calibration.TransitSearchDeg)

	set("PIPELINE_HOUSEKEEPING_SCRATCH_RETENTION_S", &cfg.Housekeeping.ScratchRetentionS)

	setStr("PIPELINE_CALIBRATOR_SOURCES_PATH", &cfg.Calibrator.SourcesPath)
	set("PIPELINE_CALIBRATOR_MAX_PER_STRIP", &cfg.Calibrator.MaxPerStrip)
	set("PIPELINE_CALIBRATOR_DEC_STRIP_WIDTH", &cfg.Calibrator.DecStripWidth)
	setFloat("PIPELINE_CALIBRATOR_MIN_FLUX_JY", &cfg.Calibrator.MinQualityJy)
}

// TaskLease returns the configured lease duration.
func (c *SchedulerConfig) TaskLease() time.Duration {
	return time.Duration(c.TaskLeaseS) * time.Second
}

// CollectingTimeout returns the configured collecting timeout duration.
func (c *GroupConfig) CollectingTimeout() time.Duration {
	return time.Duration(c.CollectingTimeoutS) * time.Second
}

// InProgressTimeout returns the configured stall timeout duration.
func (c *GroupConfig) InProgressTimeout() time.Duration {
	return time.Duration(c.InProgressTimeoutS) * time.Second
}
