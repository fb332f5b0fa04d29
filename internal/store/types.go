package store

import "time"

// RawFile is a registered incoming subband file.
type RawFile struct {
	Path         string
	Timestamp    time.Time
	SubbandIndex int
	SizeBytes    int64
	DiscoveredAt time.Time
	Consumed     bool
}

// GroupState is the Group state-machine's current state.
type GroupState string

const (
	GroupCollecting GroupState = "collecting"
	GroupPending    GroupState = "pending"
	GroupInProgress GroupState = "in_progress"
	GroupCompleted  GroupState = "completed"
	GroupFailed     GroupState = "failed"
	GroupAbandoned  GroupState = "abandoned"
)

// Group is a clustered observation awaiting or undergoing processing.
// FreshProduct marks an in_progress group as still observationally fresh
// (see DESIGN.md) rather than modeling freshness as a distinct state.
type Group struct {
	GroupID          string
	ExpectedSubbands int
	MemberPaths      map[int]string // subband_index -> path
	State            GroupState
	FreshProduct     bool
	CreatedAt        time.Time
	StateChangedAt   time.Time
	AttemptCount     int
	LastError        string
}

// MSStage is the monotonically advancing processing stage of an MSRecord.
type MSStage string

const (
	StageConverted           MSStage = "converted"
	StageCalibrated          MSStage = "calibrated"
	StageImaged              MSStage = "imaged"
	StagePhotometryComplete  MSStage = "photometry_complete"
)

// stageOrder gives each stage a monotonic rank for advancement checks.
var stageOrder = map[MSStage]int{
	StageConverted:          1,
	StageCalibrated:         2,
	StageImaged:             3,
	StagePhotometryComplete: 4,
}

// AtLeast reports whether this stage is at or beyond target.
func (s MSStage) AtLeast(target MSStage) bool {
	return stageOrder[s] >= stageOrder[target]
}

// MSStatus is the outcome status of an MSRecord.
type MSStatus string

const (
	MSStatusOK         MSStatus = "ok"
	MSStatusFailed     MSStatus = "failed"
	MSStatusSuperseded MSStatus = "superseded"
)

// MSRecord is a Measurement Set produced by the convert stage.
type MSRecord struct {
	MSPath       string
	GroupID      string
	CenterRADeg  float64
	CenterDecDeg float64
	MJDStart     float64
	MJDEnd       float64
	Stage        MSStage
	Status       MSStatus
	CreatedAt    time.Time
}

// MidMJD is the observation midpoint used for calibration selection.
func (m MSRecord) MidMJD() float64 { return (m.MJDStart + m.MJDEnd) / 2 }

// CalKind is the calibration table flavor.
type CalKind string

const (
	CalKindDelay    CalKind = "K"
	CalKindBandpass CalKind = "BP"
	CalKindGain     CalKind = "G"
)

// CalTableStatus marks whether a table is eligible for selection.
type CalTableStatus string

const (
	CalTableActive  CalTableStatus = "active"
	CalTableRetired CalTableStatus = "retired"
)

// CalTable is a persisted calibration solution.
type CalTable struct {
	TablePath     string
	Kind          CalKind
	CalibratorName string
	SolvedFromMS  string
	ValidMJDStart float64
	ValidMJDEnd   float64
	Quality       int
	Status        CalTableStatus
	Refant        int
	CreatedAt     time.Time
}

// MidValidMJD is the midpoint of the validity window.
func (c CalTable) MidValidMJD() float64 { return (c.ValidMJDStart + c.ValidMJDEnd) / 2 }

// CalibratorSource is a reference calibrator from the pre-computed
// registry.
type CalibratorSource struct {
	Name           string
	RADeg          float64
	DecDeg         float64
	Flux1400MHzJy  float64
	SpectralIndex  *float64
	DecStrip       int
	QualityScore   int
	Blacklisted    bool
	BlacklistReason string
}

// ImageQuality buckets an ImageRecord's noise/beam quality.
type ImageQuality string

const (
	ImageExcellent ImageQuality = "excellent"
	ImageGood      ImageQuality = "good"
	ImageMarginal  ImageQuality = "marginal"
	ImagePoor      ImageQuality = "poor"
)

// ImageRecord is a continuum image product.
type ImageRecord struct {
	ImagePath       string
	MSPath          string
	CenterRADeg     float64
	CenterDecDeg    float64
	NoiseJy         float64
	BeamMajorArcsec float64
	BeamMinorArcsec float64
	BeamPADeg       float64
	Quality         ImageQuality
	CreatedAt       time.Time
}

// PhotometryRow is one forced-photometry measurement.
type PhotometryRow struct {
	ID             int64
	SourceID       string
	MSPath         string
	MJD            float64
	FluxJy         float64
	FluxErrJy      float64
	NormalizedFlux float64
	IsUpperLimit   bool
}

// TaskState is the scheduler task's lifecycle state.
type TaskState string

const (
	// TaskBlocked is a pre-ready state for tasks with unmet dependencies.
	// A task spawned with unsatisfied depends_on sits here until Complete
	// promotes it once every dependency has succeeded (see DESIGN.md).
	TaskBlocked   TaskState = "blocked"
	TaskReady     TaskState = "ready"
	TaskClaimed   TaskState = "claimed"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskDead      TaskState = "dead"
)

// Task is a unit of scheduled work.
type Task struct {
	TaskID         string
	Kind           string
	Payload        map[string]interface{}
	State          TaskState
	DependsOn      []string
	Priority       int
	NotBefore      time.Time
	ClaimedBy      string
	ClaimExpiresAt time.Time
	Attempt        int
	MaxAttempts    int
	LastError      string
	ParentTask     string
	DedupKey       string
	CreatedAt      time.Time
}
