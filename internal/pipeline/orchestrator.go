package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
	"github.com/plantforge/equipment-pipeline/internal/agents"
	"github.com/plantforge/equipment-pipeline/internal/audit"
	"github.com/plantforge/equipment-pipeline/internal/events"
	"github.com/plantforge/equipment-pipeline/internal/registry"
	"github.com/plantforge/equipment-pipeline/internal/research"
	"github.com/plantforge/equipment-pipeline/internal/store"
	"github.com/plantforge/equipment-pipeline/pkg/metrics"
	"go.uber.org/zap"
)

const (
	researchAgentID = "research-agent"
	gatewayAgentID  = "storage-gateway"
)

// Params wires the orchestrator's collaborators. Registry, gateway and agents
// are injected so tests can instantiate isolated copies.
type Params struct {
	Registry   *registry.RunRegistry
	Gateway    *store.Gateway
	Researcher research.Researcher
	AuditLog   *audit.Log
	Compliance *agents.ComplianceAgent
	Quality    *agents.QualityGateAgent
	Enrichment *agents.EnrichmentAgent
	Events     *events.EventProducer

	ChunkSize         int
	DefaultMinQuality float64
}

// Orchestrator drives pipeline runs through their stages. Submission returns
// immediately; a background task per run advances the state machine and writes
// its progress back through the registry.
type Orchestrator struct {
	registry   *registry.RunRegistry
	gateway    *store.Gateway
	researcher research.Researcher
	auditLog   *audit.Log
	compliance *agents.ComplianceAgent
	quality    *agents.QualityGateAgent
	enrichment *agents.EnrichmentAgent
	producer   *events.EventProducer

	chunkSize         int
	defaultMinQuality float64
	log               *zap.SugaredLogger
}

func NewOrchestrator(p Params) *Orchestrator {
	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = store.DefaultChunkSize
	}
	minQuality := p.DefaultMinQuality
	if minQuality <= 0 {
		minQuality = 70
	}
	return &Orchestrator{
		registry:          p.Registry,
		gateway:           p.Gateway,
		researcher:        p.Researcher,
		auditLog:          p.AuditLog,
		compliance:        p.Compliance,
		quality:           p.Quality,
		enrichment:        p.Enrichment,
		producer:          p.Events,
		chunkSize:         chunkSize,
		defaultMinQuality: minQuality,
		log:               zap.S().Named("orchestrator"),
	}
}

// Submit creates the run and schedules its background execution. The caller
// gets the queued run back without waiting for any stage.
func (o *Orchestrator) Submit(target api.RunTarget) api.PipelineRun {
	run := o.registry.Create(target)

	mode := "single"
	if target.IsBatch() {
		mode = "batch"
	}
	metrics.IncreaseRunsSubmittedMetric(mode)
	o.publishRunEvent(run.ID, string(run.Status), mode, run.Results)

	go o.execute(context.Background(), run.ID)
	return run
}

func (o *Orchestrator) execute(ctx context.Context, runID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Errorw("run execution panicked", "run_id", runID, "panic", r)
			o.failStage(runID, "", fmt.Sprintf("internal error: %v", r))
		}
	}()

	run, err := o.registry.Get(runID)
	if err != nil {
		o.log.Errorw("run vanished before execution", "run_id", runID)
		return
	}
	if run.Status.IsTerminal() {
		return
	}

	_ = o.registry.Update(runID, func(r *api.PipelineRun) {
		if r.Status == api.RunStatusQueued {
			r.Status = api.RunStatusRunning
		}
	})

	if run.Target.IsBatch() {
		o.executeBatch(ctx, runID, run.Target)
	} else {
		o.executeSingle(ctx, runID, run.Target)
	}
}

func (o *Orchestrator) executeSingle(ctx context.Context, runID uuid.UUID, target api.RunTarget) {
	// research
	if o.cancelled(runID) {
		return
	}
	o.beginStage(runID, api.StageResearch)
	report, err := o.runResearch(ctx, runID, target.EquipmentClass)
	if err != nil {
		o.failStage(runID, api.StageResearch, fmt.Sprintf("research failed: %s", err))
		return
	}
	o.completeStage(runID, api.StageResearch, fmt.Sprintf("researched %s", target.EquipmentClass))

	// generate
	if o.cancelled(runID) {
		return
	}
	o.beginStage(runID, api.StageGenerate)
	var cards []*api.EquipmentCard
	for i := 0; i < target.Quantity; i++ {
		card := buildCard(report, target.Sector, target.SubSector, target.Facility, target.EquipmentClass, i)
		if o.isDuplicate(ctx, runID, api.StageGenerate, card.Facility, card.ComponentClass, card.Tag) {
			o.addResults(runID, func(res *api.RunResults) { res.DuplicatesSkipped++ })
			o.appendLog(runID, api.LogLevelInfo, api.StageGenerate, fmt.Sprintf("%s already cataloged, skipping", card.Tag))
			continue
		}
		cards = append(cards, &card)
		o.addResults(runID, func(res *api.RunResults) { res.Generated++ })
	}
	o.completeStage(runID, api.StageGenerate, fmt.Sprintf("generated %d cards", len(cards)))

	// validate
	if o.cancelled(runID) {
		return
	}
	o.beginStage(runID, api.StageValidate)
	scoreSum := 0.0
	for _, card := range cards {
		score, err := o.validateCard(runID, card, o.defaultMinQuality)
		if err != nil {
			o.failStage(runID, api.StageValidate, err.Error())
			return
		}
		scoreSum += score
		o.addResults(runID, func(res *api.RunResults) { res.Validated++ })
	}
	o.completeStage(runID, api.StageValidate, fmt.Sprintf("validated %d cards", len(cards)))

	// catalog
	if o.cancelled(runID) {
		return
	}
	o.beginStage(runID, api.StageCatalog)
	for _, card := range cards {
		if err := o.enrichCard(runID, card, report); err != nil {
			o.failStage(runID, api.StageCatalog, err.Error())
			return
		}
	}
	o.completeStage(runID, api.StageCatalog, fmt.Sprintf("enriched %d cards", len(cards)))

	// store
	if o.cancelled(runID) {
		return
	}
	o.beginStage(runID, api.StageStore)
	stored, failed, err := o.storeCards(ctx, runID, cards)
	o.addResults(runID, func(res *api.RunResults) { res.Stored += stored })
	if err != nil {
		o.failStage(runID, api.StageStore, err.Error())
		return
	}
	if failed > 0 {
		o.failStage(runID, api.StageStore, fmt.Sprintf("%d of %d cards failed to store", failed, len(cards)))
		return
	}
	o.completeStage(runID, api.StageStore, fmt.Sprintf("stored %d cards", stored))

	o.completeRun(runID, average(scoreSum, len(cards)))
}

// batchItem tracks one equipment request through the batch stages.
type batchItem struct {
	name     string
	class    string
	facility string
	report   *api.ResearchReport
	card     *api.EquipmentCard
	failed   bool
	dup      bool
}

func (o *Orchestrator) executeBatch(ctx context.Context, runID uuid.UUID, target api.RunTarget) {
	minScore := o.defaultMinQuality
	if target.MinQualityScore != nil {
		minScore = *target.MinQualityScore
	}

	items := make([]*batchItem, 0, len(target.Items))
	for _, req := range target.Items {
		class := req.EquipmentClass
		if class == "" {
			class = classFromName(req.Name)
		}
		items = append(items, &batchItem{name: req.Name, class: class, facility: req.Facility})
	}

	// research
	if o.cancelled(runID) {
		return
	}
	o.beginStage(runID, api.StageResearch)
	for _, item := range items {
		report, err := o.runResearch(ctx, runID, item.class)
		if err != nil {
			item.failed = true
			o.appendLog(runID, api.LogLevelError, api.StageResearch, fmt.Sprintf("%s: research failed: %s", item.name, err))
			continue
		}
		item.report = report
	}
	if alive(items) == 0 {
		o.failStage(runID, api.StageResearch, "research failed for every item")
		return
	}
	o.completeStage(runID, api.StageResearch, fmt.Sprintf("researched %d/%d items", alive(items), len(items)))

	// generate
	if o.cancelled(runID) {
		return
	}
	o.beginStage(runID, api.StageGenerate)
	for i, item := range items {
		if item.failed {
			continue
		}
		card := buildCard(item.report, target.SectorHint, "", item.facility, item.class, i)
		if o.isDuplicate(ctx, runID, api.StageGenerate, card.Facility, card.ComponentClass, card.Tag) {
			item.dup = true
			o.addResults(runID, func(res *api.RunResults) { res.DuplicatesSkipped++ })
			o.appendLog(runID, api.LogLevelInfo, api.StageGenerate, fmt.Sprintf("%s already cataloged, skipping", item.name))
			continue
		}
		item.card = &card
		o.addResults(runID, func(res *api.RunResults) { res.Generated++ })
	}
	o.completeStage(runID, api.StageGenerate, fmt.Sprintf("generated %d cards", countCards(items)))
	if countCards(items) == 0 {
		// every surviving item short-circuited as a duplicate
		o.finishTrivially(runID, api.StageValidate, api.StageCatalog, api.StageStore)
		o.completeRun(runID, nil)
		return
	}

	// validate
	if o.cancelled(runID) {
		return
	}
	o.beginStage(runID, api.StageValidate)
	scoreSum, validated := 0.0, 0
	for _, item := range items {
		if item.card == nil {
			continue
		}
		score, err := o.validateCard(runID, item.card, minScore)
		if err != nil {
			item.failed = true
			item.card = nil
			o.appendLog(runID, api.LogLevelError, api.StageValidate, fmt.Sprintf("%s: %s", item.name, err))
			continue
		}
		scoreSum += score
		validated++
		o.addResults(runID, func(res *api.RunResults) { res.Validated++ })
	}
	if countCards(items) == 0 {
		if dups(items) > 0 {
			o.completeStage(runID, api.StageValidate, "no new cards passed validation")
			o.finishTrivially(runID, api.StageCatalog, api.StageStore)
			o.completeRun(runID, nil)
			return
		}
		o.failStage(runID, api.StageValidate, "no item passed validation")
		return
	}
	o.completeStage(runID, api.StageValidate, fmt.Sprintf("validated %d cards", validated))

	// catalog
	if o.cancelled(runID) {
		return
	}
	o.beginStage(runID, api.StageCatalog)
	for _, item := range items {
		if item.card == nil {
			continue
		}
		if err := o.enrichCard(runID, item.card, item.report); err != nil {
			item.failed = true
			item.card = nil
			o.appendLog(runID, api.LogLevelError, api.StageCatalog, fmt.Sprintf("%s: %s", item.name, err))
		}
	}
	if countCards(items) == 0 && dups(items) == 0 {
		o.failStage(runID, api.StageCatalog, "no item survived enrichment")
		return
	}
	o.completeStage(runID, api.StageCatalog, fmt.Sprintf("enriched %d cards", countCards(items)))

	// store
	if o.cancelled(runID) {
		return
	}
	o.beginStage(runID, api.StageStore)
	var cards []*api.EquipmentCard
	for _, item := range items {
		if item.card != nil {
			cards = append(cards, item.card)
		}
	}
	stored, failed, err := o.storeCards(ctx, runID, cards)
	o.addResults(runID, func(res *api.RunResults) { res.Stored += stored })
	if err != nil || (stored == 0 && len(cards) > 0 && dups(items) == 0) {
		msg := fmt.Sprintf("no cards could be stored (%d attempted)", len(cards))
		if err != nil {
			msg = err.Error()
		}
		o.failStage(runID, api.StageStore, msg)
		return
	}
	if failed > 0 {
		o.appendLog(runID, api.LogLevelWarn, api.StageStore, fmt.Sprintf("%d cards failed to store", failed))
	}
	o.completeStage(runID, api.StageStore, fmt.Sprintf("stored %d cards", stored))

	o.completeRun(runID, average(scoreSum, validated))
}

// runResearch invokes the research collaborator and audits the call.
func (o *Orchestrator) runResearch(ctx context.Context, runID uuid.UUID, equipmentClass string) (*api.ResearchReport, error) {
	start := time.Now()
	report, err := o.researcher.Research(ctx, equipmentClass)
	input := map[string]any{"equipmentClass": equipmentClass}
	if err != nil {
		o.auditLog.Append(runID, researchAgentID, "research", audit.StatusFailure, input,
			map[string]any{"error": err.Error()}, time.Since(start))
		return nil, err
	}
	o.auditLog.Append(runID, researchAgentID, "research", audit.StatusSuccess, input,
		map[string]any{
			"specifications": len(report.Specifications),
			"standards":      len(report.Standards),
			"manufacturers":  len(report.Manufacturers),
		}, time.Since(start))
	return report, nil
}

// validateCard runs compliance then the quality gate. Critical compliance
// violations and quality rejections are stage-failing errors; everything else
// only lowers the score.
func (o *Orchestrator) validateCard(runID uuid.UUID, card *api.EquipmentCard, minScore float64) (float64, error) {
	start := time.Now()
	creport, err := o.compliance.Execute(card)
	if err != nil {
		o.auditLog.Append(runID, o.compliance.ID(), "compliance_check", audit.StatusFailure,
			map[string]any{"tag": card.Tag}, map[string]any{"error": err.Error()}, time.Since(start))
		return 0, err
	}
	o.auditLog.Append(runID, o.compliance.ID(), "compliance_check", auditStatus(creport.Passed),
		map[string]any{"tag": card.Tag},
		map[string]any{"score": creport.Score, "passed": creport.Passed, "violations": len(creport.Violations)},
		time.Since(start))

	for _, v := range creport.Violations {
		if v.Severity == agents.SeverityCritical {
			return 0, fmt.Errorf("critical compliance violation %s: %s", v.RuleID, v.Message)
		}
	}
	card.Metadata.ValidationScore = creport.Score

	start = time.Now()
	qreport, err := o.quality.Execute(agents.QualityInput{Card: card, MinScore: minScore})
	if err != nil {
		o.auditLog.Append(runID, o.quality.ID(), "quality_gate", audit.StatusFailure,
			map[string]any{"tag": card.Tag}, map[string]any{"error": err.Error()}, time.Since(start))
		return 0, err
	}
	o.auditLog.Append(runID, o.quality.ID(), "quality_gate", auditStatus(qreport.Approved),
		map[string]any{"tag": card.Tag, "minScore": minScore},
		map[string]any{"score": qreport.Score, "approved": qreport.Approved},
		time.Since(start))

	if !qreport.Approved {
		return 0, fmt.Errorf("quality gate rejected %s (score %.1f, required %.1f): %v",
			card.Tag, qreport.Score, minScore, qreport.RejectionReasons)
	}
	return qreport.Score, nil
}

func (o *Orchestrator) enrichCard(runID uuid.UUID, card *api.EquipmentCard, report *api.ResearchReport) error {
	start := time.Now()
	_, err := o.enrichment.Execute(agents.EnrichmentInput{Card: card, Research: report})
	if err != nil {
		o.auditLog.Append(runID, o.enrichment.ID(), "enrich", audit.StatusFailure,
			map[string]any{"tag": card.Tag}, map[string]any{"error": err.Error()}, time.Since(start))
		return err
	}
	o.auditLog.Append(runID, o.enrichment.ID(), "enrich", audit.StatusSuccess,
		map[string]any{"tag": card.Tag},
		map[string]any{"standards": len(card.Standards), "manufacturers": len(card.Manufacturers)},
		time.Since(start))
	return nil
}

// storeCards batch-writes all cards through the gateway and audits the call.
func (o *Orchestrator) storeCards(ctx context.Context, runID uuid.UUID, cards []*api.EquipmentCard) (stored, failed int, err error) {
	if len(cards) == 0 {
		return 0, 0, nil
	}

	records := make([]store.Record, 0, len(cards))
	for _, card := range cards {
		records = append(records, store.CardRecord(*card))
	}

	start := time.Now()
	result, err := o.gateway.BatchWrite(ctx, store.StatementUpsertEquipment, records, o.chunkSize)
	if err != nil {
		o.auditLog.Append(runID, gatewayAgentID, "batch_write", audit.StatusFailure,
			map[string]any{"items": len(records)}, map[string]any{"error": err.Error()}, time.Since(start))
		return 0, len(cards), err
	}
	o.auditLog.Append(runID, gatewayAgentID, "batch_write", auditStatus(result.Failed == 0),
		map[string]any{"items": len(records)},
		map[string]any{"processed": result.Processed, "failed": result.Failed},
		time.Since(start))

	for _, chunkErr := range result.Errors {
		o.appendLog(runID, api.LogLevelError, api.StageStore,
			fmt.Sprintf("chunk starting at item %d failed: %s", chunkErr.ItemIndex, chunkErr.Message))
	}
	return result.Processed, result.Failed, nil
}

// isDuplicate asks the store whether an equivalent record exists. A degraded
// store is treated as "not a duplicate" so generation work is never silently
// dropped.
func (o *Orchestrator) isDuplicate(ctx context.Context, runID uuid.UUID, stage, facility, componentClass, tag string) bool {
	records, err := o.gateway.Read(ctx, store.QueryEquipmentByIdentity, store.IdentityParams(facility, componentClass, tag))
	if err != nil {
		o.appendLog(runID, api.LogLevelWarn, stage, fmt.Sprintf("duplicate check failed, treating %s as new: %s", tag, err))
		return false
	}
	return len(records) > 0
}

func (o *Orchestrator) cancelled(runID uuid.UUID) bool {
	run, err := o.registry.Get(runID)
	if err != nil {
		return true
	}
	return run.Status == api.RunStatusCancelled
}

func (o *Orchestrator) beginStage(runID uuid.UUID, name string) {
	now := time.Now().UTC()
	_ = o.registry.Update(runID, func(r *api.PipelineRun) {
		if s := r.Stage(name); s != nil {
			s.Status = api.StageRunning
			s.StartedAt = &now
		}
		r.Logs = append(r.Logs, api.RunLogEntry{Timestamp: now, Level: api.LogLevelInfo, Stage: name, Message: "stage started"})
	})
}

func (o *Orchestrator) completeStage(runID uuid.UUID, name, message string) {
	now := time.Now().UTC()
	_ = o.registry.Update(runID, func(r *api.PipelineRun) {
		if s := r.Stage(name); s != nil {
			s.Status = api.StageCompleted
			s.CompletedAt = &now
			s.Message = message
		}
		r.Logs = append(r.Logs, api.RunLogEntry{Timestamp: now, Level: api.LogLevelInfo, Stage: name, Message: message})
	})
}

// failStage fails the stage and the run, unless the run is already terminal.
func (o *Orchestrator) failStage(runID uuid.UUID, name, message string) {
	if name != "" {
		metrics.IncreaseStageFailuresMetric(name)
	}
	now := time.Now().UTC()
	_ = o.registry.Update(runID, func(r *api.PipelineRun) {
		if s := r.Stage(name); s != nil {
			s.Status = api.StageFailed
			s.CompletedAt = &now
			s.Message = message
		}
		r.Logs = append(r.Logs, api.RunLogEntry{Timestamp: now, Level: api.LogLevelError, Stage: name, Message: message})
		if !r.Status.IsTerminal() {
			r.Status = api.RunStatusFailed
			r.CompletedAt = &now
		}
	})
	o.log.Warnw("run failed", "run_id", runID, "stage", name, "reason", message)
	o.publishTerminalEvent(runID)
}

func (o *Orchestrator) finishTrivially(runID uuid.UUID, stages ...string) {
	for _, name := range stages {
		o.beginStage(runID, name)
		o.completeStage(runID, name, "no new cards to process")
	}
}

func (o *Orchestrator) completeRun(runID uuid.UUID, averageScore *float64) {
	now := time.Now().UTC()
	_ = o.registry.Update(runID, func(r *api.PipelineRun) {
		if r.Status.IsTerminal() {
			return
		}
		r.Status = api.RunStatusCompleted
		r.CompletedAt = &now
		if averageScore != nil {
			r.Results.AverageScore = averageScore
		}
	})
	o.publishTerminalEvent(runID)
}

func (o *Orchestrator) addResults(runID uuid.UUID, mutate func(*api.RunResults)) {
	_ = o.registry.Update(runID, func(r *api.PipelineRun) {
		mutate(&r.Results)
	})
}

func (o *Orchestrator) appendLog(runID uuid.UUID, level api.LogLevel, stage, message string) {
	_ = o.registry.Update(runID, func(r *api.PipelineRun) {
		r.Logs = append(r.Logs, api.RunLogEntry{Timestamp: time.Now().UTC(), Level: level, Stage: stage, Message: message})
	})
}

func (o *Orchestrator) publishTerminalEvent(runID uuid.UUID) {
	run, err := o.registry.Get(runID)
	if err != nil {
		return
	}
	mode := "single"
	if run.Target.IsBatch() {
		mode = "batch"
	}
	o.publishRunEvent(runID, string(run.Status), mode, run.Results)
}

func (o *Orchestrator) publishRunEvent(runID uuid.UUID, status, mode string, results api.RunResults) {
	if o.producer == nil {
		return
	}
	data, err := json.Marshal(events.RunEvent{
		RunID:             runID.String(),
		Status:            status,
		Mode:              mode,
		Stored:            results.Stored,
		DuplicatesSkipped: results.DuplicatesSkipped,
	})
	if err != nil {
		return
	}
	if err := o.producer.Write(context.TODO(), events.RunMessageKind, bytes.NewReader(data)); err != nil {
		o.log.Warnw("failed to publish run event", "run_id", runID, "error", err)
	}
}

func alive(items []*batchItem) int {
	n := 0
	for _, item := range items {
		if !item.failed {
			n++
		}
	}
	return n
}

func countCards(items []*batchItem) int {
	n := 0
	for _, item := range items {
		if item.card != nil {
			n++
		}
	}
	return n
}

func dups(items []*batchItem) int {
	n := 0
	for _, item := range items {
		if item.dup {
			n++
		}
	}
	return n
}

func auditStatus(ok bool) audit.Status {
	if ok {
		return audit.StatusSuccess
	}
	return audit.StatusFailure
}

func average(sum float64, count int) *float64 {
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	return &avg
}
