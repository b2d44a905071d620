package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "energy_pipeline"

// Metrics holds the Prometheus counters, histograms, and gauges for a pipeline run.
type Metrics struct {
	// Fetch metrics.
	FetchRequests     *prometheus.CounterVec   // labels: source={noaa,eia}, outcome={success,rate_limited,error,circuit_open}
	FetchRetries      *prometheus.CounterVec   // labels: source, reason={rate_limited,error}
	FetchDuration     *prometheus.HistogramVec // labels: source
	CityFetchFailures *prometheus.CounterVec   // labels: source
	RowsFetched       *prometheus.CounterVec   // labels: source

	// Cleaning and quality metrics.
	RowsDropped  prometheus.Counter
	CleanedRows  prometheus.Gauge
	Outliers     *prometheus.CounterVec // labels: kind={Temperature,Energy}
	DataDaysOld  prometheus.Gauge
	DataFresh    prometheus.Gauge
	MissingCells *prometheus.GaugeVec // labels: column

	// Run metrics.
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram
	Runs            *prometheus.CounterVec // labels: outcome={success,failure}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Upstream API requests by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Upstream API retries by source and reason.",
		}, []string{"source", "reason"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_request_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		CityFetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "city_fetch_failures_total",
			Help:      "Cities that yielded no rows because their fetch gave up.",
		}, []string{"source"}),
		RowsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_fetched_total",
			Help:      "Observation rows produced by each source after parsing.",
		}, []string{"source"}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Merged rows dropped by the cleaner because a value could not be filled.",
		}),
		CleanedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cleaned_rows",
			Help:      "Rows in the most recently persisted cleaned table.",
		}),
		Outliers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outliers_total",
			Help:      "Outliers flagged by the quality report, by kind.",
		}, []string{"kind"}),
		DataDaysOld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "data_days_old",
			Help:      "Days between today (UTC) and the latest date in the cleaned table.",
		}),
		DataFresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "data_fresh",
			Help:      "1 when the latest cleaned date is within the staleness window, 0 otherwise.",
		}),
		MissingCells: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "missing_cells",
			Help:      "Missing values per column in the most recent quality report.",
		}, []string{"column"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-merge-clean-report run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FetchRequests,
		m.FetchRetries,
		m.FetchDuration,
		m.CityFetchFailures,
		m.RowsFetched,
		m.RowsDropped,
		m.CleanedRows,
		m.Outliers,
		m.DataDaysOld,
		m.DataFresh,
		m.MissingCells,
		m.PipelineRunning,
		m.RunDuration,
		m.Runs,
	}
}
