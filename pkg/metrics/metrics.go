package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	equipmentFoundry = "equipment_foundry"

	// Run metrics
	runsSubmittedTotal = "runs_submitted_total"
	stageFailuresTotal = "stage_failures_total"

	// Store metrics
	storeRetriesTotal = "store_retries_total"
	BreakerState      = "breaker_state"

	// Labels
	runModeLabel      = "mode"
	stageLabel        = "stage"
	storeOpLabel      = "operation"
	breakerStateLabel = "state"
)

var runsSubmittedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: equipmentFoundry,
		Name:      runsSubmittedTotal,
		Help:      "number of submitted pipeline runs by mode",
	},
	[]string{runModeLabel},
)

var stageFailuresTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: equipmentFoundry,
		Name:      stageFailuresTotal,
		Help:      "number of failed pipeline stages by stage name",
	},
	[]string{stageLabel},
)

var storeRetriesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: equipmentFoundry,
		Name:      storeRetriesTotal,
		Help:      "number of retried store calls by operation",
	},
	[]string{storeOpLabel},
)

var breakerStateMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: equipmentFoundry,
		Name:      BreakerState,
		Help:      "current circuit breaker state (1 for the active state, 0 otherwise)",
	},
	[]string{breakerStateLabel},
)

func IncreaseRunsSubmittedMetric(mode string) {
	runsSubmittedTotalMetric.With(prometheus.Labels{runModeLabel: mode}).Inc()
}

func IncreaseStageFailuresMetric(stage string) {
	stageFailuresTotalMetric.With(prometheus.Labels{stageLabel: stage}).Inc()
}

func IncreaseStoreRetriesMetric(operation string) {
	storeRetriesTotalMetric.With(prometheus.Labels{storeOpLabel: operation}).Inc()
}

func UpdateBreakerStateMetric(state string) {
	for _, s := range []string{"closed", "open", "half_open"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		breakerStateMetric.With(prometheus.Labels{breakerStateLabel: s}).Set(v)
	}
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(runsSubmittedTotalMetric)
	prometheus.MustRegister(stageFailuresTotalMetric)
	prometheus.MustRegister(storeRetriesTotalMetric)
	prometheus.MustRegister(breakerStateMetric)
}
