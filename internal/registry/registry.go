package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
)

var ErrRunNotFound = errors.New("run not found")

// RunRegistry is the process-wide state of all pipeline runs. It is the only
// heavily shared mutable structure: polling readers and the orchestrator's
// background tasks go through it concurrently. Reads return deep copies so a
// caller never observes a run mid-mutation; writes are serialized and applied
// atomically through Update's mutator.
type RunRegistry struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*api.PipelineRun
	order []uuid.UUID
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{
		runs: map[uuid.UUID]*api.PipelineRun{},
	}
}

// Create registers a new queued run with all stages pending.
func (r *RunRegistry) Create(target api.RunTarget) api.PipelineRun {
	stages := make([]api.StageStatus, 0, len(api.StageOrder()))
	for _, name := range api.StageOrder() {
		stages = append(stages, api.StageStatus{Name: name, Status: api.StagePending})
	}

	run := &api.PipelineRun{
		ID:        uuid.New(),
		Target:    target,
		Status:    api.RunStatusQueued,
		Stages:    stages,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)

	return copyRun(run)
}

// Get returns a snapshot of the run.
func (r *RunRegistry) Get(id uuid.UUID) (api.PipelineRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return api.PipelineRun{}, ErrRunNotFound
	}
	return copyRun(run), nil
}

// List returns snapshots of all runs in creation order. Runs are never deleted.
func (r *RunRegistry) List() []api.PipelineRun {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]api.PipelineRun, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyRun(r.runs[id]))
	}
	return out
}

// Update applies the mutator under the write lock, so stage transitions and
// their result-counter effects become visible to readers together.
func (r *RunRegistry) Update(id uuid.UUID, mutate func(*api.PipelineRun)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	mutate(run)
	return nil
}

// Cancel marks the run cancelled unless it is already terminal. The
// orchestrator observes the new status at the next stage boundary; nothing is
// interrupted in flight.
func (r *RunRegistry) Cancel(id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return false, ErrRunNotFound
	}
	if run.Status.IsTerminal() {
		return false, nil
	}

	run.Status = api.RunStatusCancelled
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Logs = append(run.Logs, api.RunLogEntry{
		Timestamp: now,
		Level:     api.LogLevelWarn,
		Stage:     "",
		Message:   "cancellation requested",
	})
	return true, nil
}

// Statistics aggregates registry-wide counters for the metrics collector and
// the statistics endpoint.
func (r *RunRegistry) Statistics() api.RegistryStatistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := api.RegistryStatistics{Total: len(r.runs)}
	for _, run := range r.runs {
		switch run.Status {
		case api.RunStatusQueued:
			stats.Queued++
		case api.RunStatusRunning:
			stats.Running++
		case api.RunStatusCompleted:
			stats.Completed++
		case api.RunStatusFailed:
			stats.Failed++
		case api.RunStatusCancelled:
			stats.Cancelled++
		}
		stats.CardsStored += run.Results.Stored
		stats.DuplicatesSkipped += run.Results.DuplicatesSkipped
	}
	return stats
}

func copyRun(run *api.PipelineRun) api.PipelineRun {
	out := *run

	out.Stages = make([]api.StageStatus, len(run.Stages))
	copy(out.Stages, run.Stages)
	for i := range out.Stages {
		if t := out.Stages[i].StartedAt; t != nil {
			tc := *t
			out.Stages[i].StartedAt = &tc
		}
		if t := out.Stages[i].CompletedAt; t != nil {
			tc := *t
			out.Stages[i].CompletedAt = &tc
		}
	}

	out.Logs = make([]api.RunLogEntry, len(run.Logs))
	copy(out.Logs, run.Logs)

	if run.CompletedAt != nil {
		t := *run.CompletedAt
		out.CompletedAt = &t
	}
	if run.Results.AverageScore != nil {
		v := *run.Results.AverageScore
		out.Results.AverageScore = &v
	}
	if run.Target.MinQualityScore != nil {
		v := *run.Target.MinQualityScore
		out.Target.MinQualityScore = &v
	}
	if len(run.Target.Items) > 0 {
		out.Target.Items = make([]api.EquipmentRequest, len(run.Target.Items))
		copy(out.Target.Items, run.Target.Items)
	}

	return out
}
