package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "covid_metrics"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	Refreshes       *prometheus.CounterVec // labels: outcome={success,error}
	RefreshDuration prometheus.Histogram

	// Source feed metrics.
	SourceFetches       *prometheus.CounterVec   // labels: feed={us,states,world,population}, outcome={success,error}
	SourceFetchDuration *prometheus.HistogramVec // labels: feed
	SourceRows          *prometheus.GaugeVec     // labels: feed

	// Snapshot metrics.
	SnapshotObservations prometheus.Gauge
	SnapshotRegions      prometheus.Gauge
	SnapshotLoadedAt     prometheus.Gauge

	// View metrics.
	ViewRequests *prometheus.CounterVec // labels: mode, outcome={success,invalid,not_ready}
	ViewCache    *prometheus.CounterVec // labels: result={hit,miss}
	ViewDuration prometheus.Histogram

	ObservationsPublished prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.Refreshes,
		m.RefreshDuration,
		m.SourceFetches,
		m.SourceFetchDuration,
		m.SourceRows,
		m.SnapshotObservations,
		m.SnapshotRegions,
		m.SnapshotLoadedAt,
		m.ViewRequests,
		m.ViewCache,
		m.ViewDuration,
		m.ObservationsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the refresh pipeline is active, 0 when shut down.",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Snapshot refresh attempts by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "CSV feed fetches by feed and outcome.",
		}, []string{"feed", "outcome"}),
		SourceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "CSV feed fetch duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"feed"}),
		SourceRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_rows",
			Help:      "Rows parsed from the most recent fetch of each feed.",
		}, []string{"feed"}),
		SnapshotObservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_observations",
			Help:      "Observations in the current snapshot.",
		}),
		SnapshotRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_regions",
			Help:      "Regions in the current snapshot.",
		}),
		SnapshotLoadedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_loaded_timestamp_seconds",
			Help:      "Unix time the current snapshot was built.",
		}),
		ViewRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_requests_total",
			Help:      "View computations by mode and outcome.",
		}, []string{"mode", "outcome"}),
		ViewCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_cache_total",
			Help:      "View cache lookups by result.",
		}, []string{"result"}),
		ViewDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_duration_seconds",
			Help:      "Duration of a view computation on cache miss.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		ObservationsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_published_total",
			Help:      "Observations written to the Kafka sink topic.",
		}),
	}
}
