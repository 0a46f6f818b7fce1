package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
	"github.com/plantforge/equipment-pipeline/internal/handlers/validator"
	"github.com/plantforge/equipment-pipeline/internal/service"
)

type ServiceHandler struct {
	pipelineSrv *service.PipelineService
}

func NewServiceHandler(pipelineService *service.PipelineService) *ServiceHandler {
	return &ServiceHandler{
		pipelineSrv: pipelineService,
	}
}

// (POST /api/v1alpha1/runs)
func (s *ServiceHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var request api.CreateRunRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	v := validator.NewValidator()
	v.Register(validator.NewRunValidationRules()...)
	if err := v.Struct(request); err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.pipelineSrv.CreateRun(r.Context(), request)
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, "failed to create run")
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, api.CreateRunResponse{RunID: run.ID})
}

// (POST /api/v1alpha1/runs/batch)
func (s *ServiceHandler) CreateBatchRun(w http.ResponseWriter, r *http.Request) {
	var request api.CreateBatchRunRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	v := validator.NewValidator()
	v.Register(validator.NewBatchRunValidationRules()...)
	if err := v.Struct(request); err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.pipelineSrv.CreateBatchRun(r.Context(), request)
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, "failed to create batch run")
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, api.CreateRunResponse{RunID: run.ID})
}

// (GET /api/v1alpha1/runs)
func (s *ServiceHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.pipelineSrv.ListRuns(r.Context())
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, "failed to list runs")
		return
	}
	render.JSON(w, r, runs)
}

// (GET /api/v1alpha1/runs/{id})
func (s *ServiceHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	includeAudit := r.URL.Query().Get("includeAudit") == "true"
	detail, err := s.pipelineSrv.GetRunDetail(r.Context(), id, includeAudit)
	if err != nil {
		switch err.(type) {
		case *service.ErrRunNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, "failed to get run")
		}
		return
	}
	render.JSON(w, r, detail)
}

// (GET /api/v1alpha1/runs/{id}/audit)
func (s *ServiceHandler) GetRunAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	trail, err := s.pipelineSrv.GetAuditTrail(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrRunNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, "failed to get audit trail")
		}
		return
	}
	render.JSON(w, r, trail)
}

// (POST /api/v1alpha1/runs/{id}/cancel)
func (s *ServiceHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	cancelled, err := s.pipelineSrv.CancelRun(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrRunNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, "failed to cancel run")
		}
		return
	}
	render.JSON(w, r, api.CancelRunResponse{Cancelled: cancelled})
}

// (GET /api/v1alpha1/statistics)
func (s *ServiceHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipelineSrv.Statistics(r.Context())
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	render.JSON(w, r, stats)
}

func runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "invalid run id")
		return uuid.UUID{}, false
	}
	return id, true
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, api.Error{Message: message})
}
