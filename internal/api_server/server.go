package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/plantforge/equipment-pipeline/internal/agents"
	"github.com/plantforge/equipment-pipeline/internal/audit"
	"github.com/plantforge/equipment-pipeline/internal/config"
	"github.com/plantforge/equipment-pipeline/internal/events"
	handlers "github.com/plantforge/equipment-pipeline/internal/handlers/v1alpha1"
	"github.com/plantforge/equipment-pipeline/internal/pipeline"
	"github.com/plantforge/equipment-pipeline/internal/registry"
	"github.com/plantforge/equipment-pipeline/internal/research"
	"github.com/plantforge/equipment-pipeline/internal/service"
	"github.com/plantforge/equipment-pipeline/internal/store"
	"github.com/plantforge/equipment-pipeline/pkg/metrics"
	"github.com/plantforge/equipment-pipeline/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	listener net.Listener
	producer *events.EventProducer
}

// New returns a new instance of the equipment foundry server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
	producer *events.EventProducer,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		listener: listener,
		producer: producer,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	breaker := store.NewCircuitBreaker(s.cfg.Pipeline.BreakerThreshold, s.cfg.Pipeline.BreakerCooldown)
	gateway := store.NewGateway(store.NewDataStoreBackend(s.store), breaker, s.cfg.Pipeline.StoreRetryAttempts)

	runRegistry := registry.NewRunRegistry()
	metrics.RegisterRegistryStatsCollector(runRegistry)

	auditLog := audit.NewLog()

	orchestrator := pipeline.NewOrchestrator(pipeline.Params{
		Registry:          runRegistry,
		Gateway:           gateway,
		Researcher:        research.NewCatalogResearcher(),
		AuditLog:          auditLog,
		Compliance:        agents.NewComplianceAgent(s.cfg.Pipeline.MinComplianceFields),
		Quality:           agents.NewQualityGateAgent(),
		Enrichment:        agents.NewEnrichmentAgent(),
		Events:            s.producer,
		ChunkSize:         s.cfg.Pipeline.BatchChunkSize,
		DefaultMinQuality: s.cfg.Pipeline.DefaultMinQuality,
	})

	h := handlers.NewServiceHandler(
		service.NewPipelineService(orchestrator, runRegistry, auditLog),
	)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/api/v1alpha1", func(r chi.Router) {
		r.Post("/runs", h.CreateRun)
		r.Post("/runs/batch", h.CreateBatchRun)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Get("/runs/{id}/audit", h.GetRunAuditTrail)
		r.Post("/runs/{id}/cancel", h.CancelRun)
		r.Get("/statistics", h.GetStatistics)
	})

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
