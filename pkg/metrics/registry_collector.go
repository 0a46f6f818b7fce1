package metrics

import (
	"fmt"

	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
	"github.com/prometheus/client_golang/prometheus"
)

// StatisticsProvider is implemented by the run registry.
type StatisticsProvider interface {
	Statistics() api.RegistryStatistics
}

type registryStatsCollector struct {
	provider          StatisticsProvider
	totalRuns         *prometheus.Desc
	runsByStatus      *prometheus.Desc
	cardsStored       *prometheus.Desc
	duplicatesSkipped *prometheus.Desc
}

func newRegistryStatsCollector(p StatisticsProvider) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_registry_%s", equipmentFoundry, name)
	}

	return &registryStatsCollector{
		provider: p,
		totalRuns: prometheus.NewDesc(
			fqName("runs_total"),
			"Total number of pipeline runs known to the registry.",
			nil,
			prometheus.Labels{},
		),
		runsByStatus: prometheus.NewDesc(
			fqName("runs_by_status"),
			"Number of pipeline runs by status.",
			[]string{"status"},
			prometheus.Labels{},
		),
		cardsStored: prometheus.NewDesc(
			fqName("cards_stored_total"),
			"Total number of equipment cards stored across all runs.",
			nil,
			prometheus.Labels{},
		),
		duplicatesSkipped: prometheus.NewDesc(
			fqName("duplicates_skipped_total"),
			"Total number of duplicate cards skipped across all runs.",
			nil,
			prometheus.Labels{},
		),
	}
}

func (c *registryStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalRuns
	ch <- c.runsByStatus
	ch <- c.cardsStored
	ch <- c.duplicatesSkipped
}

// Collect implements Collector.
func (c *registryStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.provider.Statistics()

	ch <- prometheus.MustNewConstMetric(c.totalRuns, prometheus.GaugeValue, float64(stats.Total))
	ch <- prometheus.MustNewConstMetric(c.runsByStatus, prometheus.GaugeValue, float64(stats.Queued), "queued")
	ch <- prometheus.MustNewConstMetric(c.runsByStatus, prometheus.GaugeValue, float64(stats.Running), "running")
	ch <- prometheus.MustNewConstMetric(c.runsByStatus, prometheus.GaugeValue, float64(stats.Completed), "completed")
	ch <- prometheus.MustNewConstMetric(c.runsByStatus, prometheus.GaugeValue, float64(stats.Failed), "failed")
	ch <- prometheus.MustNewConstMetric(c.runsByStatus, prometheus.GaugeValue, float64(stats.Cancelled), "cancelled")
	ch <- prometheus.MustNewConstMetric(c.cardsStored, prometheus.GaugeValue, float64(stats.CardsStored))
	ch <- prometheus.MustNewConstMetric(c.duplicatesSkipped, prometheus.GaugeValue, float64(stats.DuplicatesSkipped))
}

// RegisterRegistryStatsCollector registers the registry statistics collector
// against the default registerer.
func RegisterRegistryStatsCollector(p StatisticsProvider) {
	prometheus.MustRegister(newRegistryStatsCollector(p))
}
