// Package metrics exposes Prometheus collectors for crawl stages and
// outcomes. They register with the default registry; the batch command
// serves them on --metrics-addr.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopscout",
			Name:      "stage_runs_total",
			Help:      "Crawl stage runs by stage and verdict.",
		},
		[]string{"stage", "verdict"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopscout",
			Name:      "stage_duration_seconds",
			Help:      "Duration of crawl stages.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 45, 90},
		},
		[]string{"stage"},
	)

	CrawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopscout",
			Name:      "crawls_total",
			Help:      "Finished crawls by store type and outcome.",
		},
		[]string{"store_type", "outcome"},
	)

	CrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopscout",
			Name:      "crawl_duration_seconds",
			Help:      "Duration of whole product crawls.",
			Buckets:   []float64{1, 5, 10, 15, 30, 60, 120},
		},
		[]string{"store_type"},
	)

	TitleSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopscout",
			Name:      "title_source_total",
			Help:      "Accepted titles by the source that produced them.",
		},
		[]string{"source"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopscout",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		},
		[]string{"result"},
	)
)

// ObserveStage records one stage run
func ObserveStage(stage, verdict string, elapsed time.Duration) {
	StagesTotal.WithLabelValues(stage, verdict).Inc()
	StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveCrawl records one finished crawl
func ObserveCrawl(storeType, outcome string, elapsed time.Duration) {
	CrawlsTotal.WithLabelValues(storeType, outcome).Inc()
	CrawlDuration.WithLabelValues(storeType).Observe(elapsed.Seconds())
}
