package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
	"github.com/plantforge/equipment-pipeline/internal/audit"
	"github.com/plantforge/equipment-pipeline/internal/registry"
)

// Submitter schedules pipeline runs for asynchronous execution.
type Submitter interface {
	Submit(target api.RunTarget) api.PipelineRun
}

// AuditTrail is the per-run audit view, with an integrity verdict computed
// over the returned entries.
type AuditTrail struct {
	Entries  []audit.Entry `json:"entries"`
	Verified bool          `json:"verified"`
}

type PipelineService struct {
	submitter Submitter
	registry  *registry.RunRegistry
	auditLog  *audit.Log
}

func NewPipelineService(submitter Submitter, reg *registry.RunRegistry, auditLog *audit.Log) *PipelineService {
	return &PipelineService{
		submitter: submitter,
		registry:  reg,
		auditLog:  auditLog,
	}
}

// CreateRun accepts a single-mode request and schedules it. The run comes back
// queued; stages advance in the background.
func (s *PipelineService) CreateRun(ctx context.Context, request api.CreateRunRequest) (api.PipelineRun, error) {
	target := api.RunTarget{
		Sector:         request.Sector,
		SubSector:      request.SubSector,
		Facility:       request.Facility,
		EquipmentClass: request.EquipmentClass,
		Quantity:       request.Quantity,
	}
	return s.submitter.Submit(target), nil
}

// CreateBatchRun accepts a batch of free-form equipment names and schedules
// one run covering all of them.
func (s *PipelineService) CreateBatchRun(ctx context.Context, request api.CreateBatchRunRequest) (api.PipelineRun, error) {
	items := make([]api.EquipmentRequest, 0, len(request.EquipmentNames))
	for _, name := range request.EquipmentNames {
		items = append(items, api.EquipmentRequest{Name: name})
	}
	target := api.RunTarget{
		Items:           items,
		SectorHint:      request.SectorHint,
		MinQualityScore: request.MinQualityScore,
	}
	return s.submitter.Submit(target), nil
}

func (s *PipelineService) GetRun(ctx context.Context, id uuid.UUID) (api.PipelineRun, error) {
	run, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, registry.ErrRunNotFound) {
			return api.PipelineRun{}, NewErrRunNotFound(id)
		}
		return api.PipelineRun{}, err
	}
	return run, nil
}

// RunDetail is a run expanded with its audit trail.
type RunDetail struct {
	api.PipelineRun
	Audit *AuditTrail `json:"audit,omitempty"`
}

// GetRunDetail returns the run and, when requested, its audit trail in the
// same response.
func (s *PipelineService) GetRunDetail(ctx context.Context, id uuid.UUID, includeAudit bool) (RunDetail, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return RunDetail{}, err
	}
	detail := RunDetail{PipelineRun: run}
	if includeAudit {
		entries := s.auditLog.Trail(id)
		detail.Audit = &AuditTrail{
			Entries:  entries,
			Verified: audit.VerifyIntegrity(entries),
		}
	}
	return detail, nil
}

func (s *PipelineService) ListRuns(ctx context.Context) (api.RunList, error) {
	return s.registry.List(), nil
}

// CancelRun requests cancellation. It reports false without error when the
// run already reached a terminal state.
func (s *PipelineService) CancelRun(ctx context.Context, id uuid.UUID) (bool, error) {
	cancelled, err := s.registry.Cancel(id)
	if err != nil {
		if errors.Is(err, registry.ErrRunNotFound) {
			return false, NewErrRunNotFound(id)
		}
		return false, err
	}
	return cancelled, nil
}

// GetAuditTrail returns the run's audit entries together with a hash-chain
// integrity verdict over exactly those entries.
func (s *PipelineService) GetAuditTrail(ctx context.Context, id uuid.UUID) (AuditTrail, error) {
	if _, err := s.registry.Get(id); err != nil {
		if errors.Is(err, registry.ErrRunNotFound) {
			return AuditTrail{}, NewErrRunNotFound(id)
		}
		return AuditTrail{}, err
	}
	entries := s.auditLog.Trail(id)
	return AuditTrail{
		Entries:  entries,
		Verified: audit.VerifyIntegrity(entries),
	}, nil
}

func (s *PipelineService) Statistics(ctx context.Context) (api.RegistryStatistics, error) {
	return s.registry.Statistics(), nil
}
