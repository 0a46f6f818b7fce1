package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the run can no longer change state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// StageState is the lifecycle state of one stage within a run.
type StageState string

const (
	StagePending   StageState = "pending"
	StageRunning   StageState = "running"
	StageCompleted StageState = "completed"
	StageFailed    StageState = "failed"
	StageSkipped   StageState = "skipped"
)

// Stage names, in canonical execution order.
const (
	StageResearch = "research"
	StageGenerate = "generate"
	StageValidate = "validate"
	StageCatalog  = "catalog"
	StageStore    = "store"
)

// StageOrder returns the canonical stage sequence for a run.
func StageOrder() []string {
	return []string{StageResearch, StageGenerate, StageValidate, StageCatalog, StageStore}
}

// StageStatus tracks the progress of a single stage.
type StageStatus struct {
	Name        string     `json:"name"`
	Status      StageState `json:"status"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// RunResults accumulates per-run counters. Counters are only ever incremented.
type RunResults struct {
	Generated         int      `json:"generated"`
	Validated         int      `json:"validated"`
	Stored            int      `json:"stored"`
	DuplicatesSkipped int      `json:"duplicatesSkipped"`
	AverageScore      *float64 `json:"averageScore,omitempty"`
}

// LogLevel of a run log entry.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// RunLogEntry is one line of the run's append-only log.
type RunLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
}

// EquipmentRequest names one item of a batch run.
type EquipmentRequest struct {
	Name           string `json:"name"`
	EquipmentClass string `json:"equipmentClass,omitempty"`
	Facility       string `json:"facility,omitempty"`
}

// RunTarget describes what a run should produce. Either the single-mode fields
// or Items are set, never both.
type RunTarget struct {
	Sector          string             `json:"sector,omitempty"`
	SubSector       string             `json:"subSector,omitempty"`
	Facility        string             `json:"facility,omitempty"`
	EquipmentClass  string             `json:"equipmentClass,omitempty"`
	Quantity        int                `json:"quantity,omitempty"`
	Items           []EquipmentRequest `json:"items,omitempty"`
	SectorHint      string             `json:"sectorHint,omitempty"`
	MinQualityScore *float64           `json:"minQualityScore,omitempty"`
}

// IsBatch reports whether the run was submitted in batch mode.
func (t RunTarget) IsBatch() bool {
	return len(t.Items) > 0
}

// PipelineRun is the full state of one submitted pipeline request.
type PipelineRun struct {
	ID          uuid.UUID     `json:"id"`
	Target      RunTarget     `json:"target"`
	Status      RunStatus     `json:"status"`
	Stages      []StageStatus `json:"stages"`
	Results     RunResults    `json:"results"`
	Logs        []RunLogEntry `json:"logs"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// Stage returns a pointer to the named stage, or nil.
func (r *PipelineRun) Stage(name string) *StageStatus {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// CreateRunRequest is the single-mode submit payload.
type CreateRunRequest struct {
	Sector         string `json:"sector" validate:"required,taxonomy_code"`
	SubSector      string `json:"subSector" validate:"required,taxonomy_code"`
	Facility       string `json:"facility" validate:"required,taxonomy_code"`
	EquipmentClass string `json:"equipmentClass" validate:"required,equipment_class"`
	Quantity       int    `json:"quantity" validate:"required,min=1,max=50"`
}

// CreateBatchRunRequest is the batch-mode submit payload.
type CreateBatchRunRequest struct {
	EquipmentNames  []string `json:"equipmentNames" validate:"required,min=1,max=100,dive,equipment_name"`
	SectorHint      string   `json:"sectorHint,omitempty" validate:"omitempty,taxonomy_code"`
	MinQualityScore *float64 `json:"minQualityScore,omitempty" validate:"omitempty,min=0"`
}

// CreateRunResponse carries the id of the accepted run.
type CreateRunResponse struct {
	RunID uuid.UUID `json:"runId"`
}

// CancelRunResponse reports whether the cancel request took effect.
type CancelRunResponse struct {
	Cancelled bool `json:"cancelled"`
}

// RunList is the list-runs response body.
type RunList []PipelineRun

// Error is the generic error response body.
type Error struct {
	Message string `json:"message"`
}

// RegistryStatistics aggregates registry-wide counters.
type RegistryStatistics struct {
	Total             int `json:"total"`
	Queued            int `json:"queued"`
	Running           int `json:"running"`
	Completed         int `json:"completed"`
	Failed            int `json:"failed"`
	Cancelled         int `json:"cancelled"`
	CardsStored       int `json:"cardsStored"`
	DuplicatesSkipped int `json:"duplicatesSkipped"`
}
