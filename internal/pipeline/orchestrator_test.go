package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
	"github.com/plantforge/equipment-pipeline/internal/agents"
	"github.com/plantforge/equipment-pipeline/internal/audit"
	"github.com/plantforge/equipment-pipeline/internal/pipeline"
	"github.com/plantforge/equipment-pipeline/internal/registry"
	"github.com/plantforge/equipment-pipeline/internal/research"
	"github.com/plantforge/equipment-pipeline/internal/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// memoryBackend keeps cards in a map keyed by (facility, class, tag). It can
// be switched into a failing mode to exercise store-stage failure paths.
type memoryBackend struct {
	mu         sync.Mutex
	cards      map[string]api.EquipmentCard
	failWrites bool
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{cards: map[string]api.EquipmentCard{}}
}

func cardKey(facility, componentClass, tag string) string {
	return fmt.Sprintf("%s|%s|%s", facility, componentClass, tag)
}

func (m *memoryBackend) seed(card api.EquipmentCard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[cardKey(card.Facility, card.ComponentClass, card.Tag)] = card
}

func (m *memoryBackend) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cards)
}

func (m *memoryBackend) get(facility, componentClass, tag string) (api.EquipmentCard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardKey(facility, componentClass, tag)]
	return card, ok
}

func (m *memoryBackend) Read(ctx context.Context, query string, params store.Record) ([]store.Record, error) {
	if query != store.QueryEquipmentByIdentity {
		return nil, store.NewPermanentError(fmt.Errorf("unknown query %q", query))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cardKey(params["facility"].(string), params["componentClass"].(string), params["tag"].(string))
	if card, ok := m.cards[key]; ok {
		return []store.Record{{"card": card}}, nil
	}
	return nil, nil
}

func (m *memoryBackend) Write(ctx context.Context, statement string, params store.Record) (store.WriteSummary, error) {
	return m.WriteMany(ctx, statement, []store.Record{params})
}

func (m *memoryBackend) WriteMany(ctx context.Context, statement string, items []store.Record) (store.WriteSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites {
		return store.WriteSummary{}, store.NewPermanentError(fmt.Errorf("backend rejected the write"))
	}
	for _, item := range items {
		card, ok := item["card"].(api.EquipmentCard)
		if !ok {
			return store.WriteSummary{}, store.NewPermanentError(fmt.Errorf("record is missing its card"))
		}
		m.cards[cardKey(card.Facility, card.ComponentClass, card.Tag)] = card
	}
	return store.WriteSummary{RowsAffected: int64(len(items))}, nil
}

// gatedResearcher blocks inside Research until released, which pins a run
// inside the research stage.
type gatedResearcher struct {
	inner   research.Researcher
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedResearcher() *gatedResearcher {
	return &gatedResearcher{
		inner:   research.NewCatalogResearcher(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedResearcher) Research(ctx context.Context, equipmentClass string) (*api.ResearchReport, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.inner.Research(ctx, equipmentClass)
}

type fixture struct {
	registry *registry.RunRegistry
	auditLog *audit.Log
	backend  *memoryBackend
	orch     *pipeline.Orchestrator
}

func newFixture(minQuality float64, researcher research.Researcher) *fixture {
	f := &fixture{
		registry: registry.NewRunRegistry(),
		auditLog: audit.NewLog(),
		backend:  newMemoryBackend(),
	}
	if researcher == nil {
		researcher = research.NewCatalogResearcher()
	}
	gateway := store.NewGateway(f.backend, store.NewCircuitBreaker(5, 30*time.Second), 3)
	f.orch = pipeline.NewOrchestrator(pipeline.Params{
		Registry:          f.registry,
		Gateway:           gateway,
		Researcher:        researcher,
		AuditLog:          f.auditLog,
		Compliance:        agents.NewComplianceAgent(3),
		Quality:           agents.NewQualityGateAgent(),
		Enrichment:        agents.NewEnrichmentAgent(),
		ChunkSize:         500,
		DefaultMinQuality: minQuality,
	})
	return f
}

func (f *fixture) await(id uuid.UUID) api.PipelineRun {
	var run api.PipelineRun
	Eventually(func() bool {
		var err error
		run, err = f.registry.Get(id)
		return err == nil && run.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond).Should(BeTrue())
	return run
}

func stageByName(run api.PipelineRun, name string) api.StageStatus {
	for _, s := range run.Stages {
		if s.Name == name {
			return s
		}
	}
	return api.StageStatus{}
}

var _ = Describe("pipeline orchestrator", func() {
	Context("single mode", func() {
		It("runs all five stages to completion", func() {
			f := newFixture(70, nil)

			run := f.orch.Submit(api.RunTarget{
				Sector:         "CHEM",
				SubSector:      "CHEM-BC",
				Facility:       "CHEM-BC-PETRO",
				EquipmentClass: "CentrifugalPump",
				Quantity:       3,
			})
			Expect(run.Status).To(Equal(api.RunStatusQueued))

			final := f.await(run.ID)
			Expect(final.Status).To(Equal(api.RunStatusCompleted))
			for _, name := range api.StageOrder() {
				Expect(stageByName(final, name).Status).To(Equal(api.StageCompleted), name)
			}

			Expect(final.Results.Generated).To(Equal(3))
			Expect(final.Results.Validated).To(Equal(3))
			Expect(final.Results.Stored).To(Equal(3))
			Expect(final.Results.DuplicatesSkipped).To(Equal(0))
			Expect(final.Results.AverageScore).NotTo(BeNil())
			Expect(*final.Results.AverageScore).To(BeNumerically(">=", 70))
			Expect(final.CompletedAt).NotTo(BeNil())

			Expect(f.backend.size()).To(Equal(3))
			stored, ok := f.backend.get("CHEM-BC-PETRO", "CentrifugalPump", "P-101")
			Expect(ok).To(BeTrue())
			Expect(stored.Description).NotTo(BeEmpty())
			Expect(stored.ComponentClassURI).To(HavePrefix("http://data.posccaesar.org/rdl/"))
		})

		It("skips already cataloged equipment and still completes", func() {
			f := newFixture(70, nil)
			for _, tag := range []string{"P-101", "P-102", "P-103"} {
				f.backend.seed(api.EquipmentCard{
					Tag:            tag,
					ComponentClass: "CentrifugalPump",
					Facility:       "CHEM-BC-PETRO",
				})
			}

			run := f.orch.Submit(api.RunTarget{
				Sector:         "CHEM",
				SubSector:      "CHEM-BC",
				Facility:       "CHEM-BC-PETRO",
				EquipmentClass: "CentrifugalPump",
				Quantity:       3,
			})

			final := f.await(run.ID)
			Expect(final.Status).To(Equal(api.RunStatusCompleted))
			Expect(final.Results.Generated).To(Equal(0))
			Expect(final.Results.DuplicatesSkipped).To(Equal(3))
			Expect(final.Results.Stored).To(Equal(0))
			Expect(final.Results.AverageScore).To(BeNil())
			Expect(f.backend.size()).To(Equal(3))
		})

		It("fails the validate stage when the quality threshold is unsatisfiable", func() {
			f := newFixture(101, nil)

			run := f.orch.Submit(api.RunTarget{
				Sector:         "CHEM",
				SubSector:      "CHEM-BC",
				Facility:       "CHEM-BC-PETRO",
				EquipmentClass: "CentrifugalPump",
				Quantity:       2,
			})

			final := f.await(run.ID)
			Expect(final.Status).To(Equal(api.RunStatusFailed))
			Expect(stageByName(final, api.StageValidate).Status).To(Equal(api.StageFailed))
			Expect(stageByName(final, api.StageCatalog).Status).To(Equal(api.StagePending))
			Expect(final.Results.Validated).To(Equal(0))
			Expect(final.Results.Stored).To(Equal(0))
			Expect(f.backend.size()).To(Equal(0))
		})

		It("fails the store stage when the backend rejects writes", func() {
			f := newFixture(70, nil)
			f.backend.failWrites = true

			run := f.orch.Submit(api.RunTarget{
				Sector:         "CHEM",
				SubSector:      "CHEM-BC",
				Facility:       "CHEM-BC-PETRO",
				EquipmentClass: "StorageTank",
				Quantity:       1,
			})

			final := f.await(run.ID)
			Expect(final.Status).To(Equal(api.RunStatusFailed))
			Expect(stageByName(final, api.StageStore).Status).To(Equal(api.StageFailed))
			Expect(final.Results.Validated).To(Equal(1))
			Expect(final.Results.Stored).To(Equal(0))
		})

		It("audits every agent invocation into a verifiable trail", func() {
			f := newFixture(70, nil)

			run := f.orch.Submit(api.RunTarget{
				Sector:         "CHEM",
				SubSector:      "CHEM-BC",
				Facility:       "CHEM-BC-PETRO",
				EquipmentClass: "ControlValve",
				Quantity:       2,
			})

			final := f.await(run.ID)
			Expect(final.Status).To(Equal(api.RunStatusCompleted))

			trail := f.auditLog.Trail(run.ID)
			// research + per card: compliance, quality, enrich; one batch write
			Expect(trail).To(HaveLen(1 + 2*3 + 1))
			Expect(audit.VerifyIntegrity(trail)).To(BeTrue())

			actions := map[string]int{}
			for _, e := range trail {
				actions[e.Action]++
				Expect(e.Status).To(Equal(audit.StatusSuccess))
			}
			Expect(actions["research"]).To(Equal(1))
			Expect(actions["compliance_check"]).To(Equal(2))
			Expect(actions["quality_gate"]).To(Equal(2))
			Expect(actions["enrich"]).To(Equal(2))
			Expect(actions["batch_write"]).To(Equal(1))
		})
	})

	Context("batch mode", func() {
		It("isolates items and stores every healthy card", func() {
			f := newFixture(70, nil)

			run := f.orch.Submit(api.RunTarget{
				Items: []api.EquipmentRequest{
					{Name: "centrifugal pump"},
					{Name: "storage tank"},
				},
				SectorHint: "CHEM",
			})

			final := f.await(run.ID)
			Expect(final.Status).To(Equal(api.RunStatusCompleted))
			Expect(final.Results.Generated).To(Equal(2))
			Expect(final.Results.Validated).To(Equal(2))
			Expect(final.Results.Stored).To(Equal(2))
			Expect(f.backend.size()).To(Equal(2))
		})

		It("fails the run only when no item survives", func() {
			minScore := 101.0
			f := newFixture(70, nil)

			run := f.orch.Submit(api.RunTarget{
				Items: []api.EquipmentRequest{
					{Name: "centrifugal pump"},
					{Name: "storage tank"},
				},
				MinQualityScore: &minScore,
			})

			final := f.await(run.ID)
			Expect(final.Status).To(Equal(api.RunStatusFailed))
			Expect(stageByName(final, api.StageValidate).Status).To(Equal(api.StageFailed))
			Expect(final.Results.Stored).To(Equal(0))
		})

		It("honors a per-run quality threshold override", func() {
			minScore := 10.0
			// default gate would reject everything; the override lets items pass
			f := newFixture(101, nil)

			run := f.orch.Submit(api.RunTarget{
				Items:           []api.EquipmentRequest{{Name: "centrifugal pump"}},
				MinQualityScore: &minScore,
			})

			final := f.await(run.ID)
			Expect(final.Status).To(Equal(api.RunStatusCompleted))
			Expect(final.Results.Stored).To(Equal(1))
		})
	})

	Context("cancellation", func() {
		It("stops at the next stage boundary", func() {
			researcher := newGatedResearcher()
			f := newFixture(70, researcher)

			run := f.orch.Submit(api.RunTarget{
				Sector:         "CHEM",
				SubSector:      "CHEM-BC",
				Facility:       "CHEM-BC-PETRO",
				EquipmentClass: "CentrifugalPump",
				Quantity:       3,
			})

			// wait until the run is pinned inside the research stage
			Eventually(researcher.started, 5*time.Second).Should(BeClosed())

			cancelled, err := f.registry.Cancel(run.ID)
			Expect(err).To(BeNil())
			Expect(cancelled).To(BeTrue())

			close(researcher.release)

			// research finishes in flight, nothing past it starts
			Eventually(func() api.StageState {
				r, err := f.registry.Get(run.ID)
				Expect(err).To(BeNil())
				return stageByName(r, api.StageResearch).Status
			}, 5*time.Second, 10*time.Millisecond).Should(Equal(api.StageCompleted))

			final, err := f.registry.Get(run.ID)
			Expect(err).To(BeNil())
			Expect(final.Status).To(Equal(api.RunStatusCancelled))
			Expect(stageByName(final, api.StageGenerate).Status).To(Equal(api.StagePending))
			Expect(final.Results.Stored).To(Equal(0))
			Expect(f.backend.size()).To(Equal(0))
		})

		It("refuses to cancel a terminal run", func() {
			f := newFixture(70, nil)

			run := f.orch.Submit(api.RunTarget{
				Sector:         "CHEM",
				SubSector:      "CHEM-BC",
				Facility:       "CHEM-BC-PETRO",
				EquipmentClass: "PressureVessel",
				Quantity:       1,
			})

			final := f.await(run.ID)
			Expect(final.Status).To(Equal(api.RunStatusCompleted))

			cancelled, err := f.registry.Cancel(run.ID)
			Expect(err).To(BeNil())
			Expect(cancelled).To(BeFalse())
		})
	})
})
