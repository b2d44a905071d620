// Package pipeline runs one fetch, merge, clean and report pass over every
// configured city.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/observability"
)

// WeatherFetcher returns raw temperature entries for one station.
type WeatherFetcher interface {
	Fetch(ctx context.Context, stationID string, start, end time.Time) ([]domain.WeatherEntry, error)
}

// EnergyFetcher returns raw usage entries for one region.
type EnergyFetcher interface {
	Fetch(ctx context.Context, regionCode string, start, end time.Time) ([]domain.EnergyEntry, error)
}

// ArtifactStore persists the raw snapshots and the cleaned table.
type ArtifactStore interface {
	WriteWeatherRaw(rows []domain.WeatherObservation) error
	WriteEnergyRaw(rows []domain.EnergyObservation) error
	WriteCleaned(rows []domain.CleanedRecord) error
}

// ReportWriter persists the quality report.
type ReportWriter interface {
	Write(report domain.QualityReport) error
}

// ReportSink receives each run's report after it is persisted.
type ReportSink interface {
	PublishReport(ctx context.Context, report domain.QualityReport) error
}

// TableSink receives each run's cleaned table after it is persisted.
type TableSink interface {
	WriteCleaned(ctx context.Context, rows []domain.CleanedRecord) (int, error)
}

// Options tunes a Runner.
type Options struct {
	LookbackDays int
	Concurrency  int
	FillScope    domain.FillScope
	Thresholds   domain.Thresholds
}

// Summary describes a completed run.
type Summary struct {
	RunID          string               `json:"run_id"`
	WindowStart    string               `json:"window_start"`
	WindowEnd      string               `json:"window_end"`
	WeatherRows    int                  `json:"weather_rows"`
	EnergyRows     int                  `json:"energy_rows"`
	MergedRows     int                  `json:"merged_rows"`
	CleanedRows    int                  `json:"cleaned_rows"`
	DroppedRows    int                  `json:"dropped_rows"`
	FailedWeather  []string             `json:"failed_weather_cities,omitempty"`
	FailedEnergy   []string             `json:"failed_energy_cities,omitempty"`
	Duration       time.Duration        `json:"duration_ns"`
	Report         domain.QualityReport `json:"-"`
	OutlierCount   int                  `json:"outliers"`
	DataFresh      bool                 `json:"data_fresh"`
	LatestDataDate string               `json:"latest_date,omitempty"`
}

// Status is the Runner's view of its latest run, for service mode.
type Status struct {
	Running     bool       `json:"running"`
	LastRunID   string     `json:"last_run_id,omitempty"`
	LastStart   *time.Time `json:"last_started_at,omitempty"`
	LastSuccess *time.Time `json:"last_success_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastSummary *Summary   `json:"last_summary,omitempty"`
}

// Runner orchestrates a single pipeline run.
type Runner struct {
	cities     []domain.CityConfig
	weather    WeatherFetcher
	energy     EnergyFetcher
	store      ArtifactStore
	reports    ReportWriter
	reportSink ReportSink
	tableSink  TableSink
	opts       Options
	clock      clockwork.Clock
	newRunID   func() string
	logger     *slog.Logger
	metrics    *observability.Metrics

	running atomic.Bool
	ready   atomic.Bool
	mu      sync.Mutex
	status  Status
}

// Option configures optional Runner collaborators.
type Option func(*Runner)

// WithClock replaces the clock used for the lookback window and freshness.
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithReportSink publishes every report after it is written.
func WithReportSink(s ReportSink) Option {
	return func(r *Runner) { r.reportSink = s }
}

// WithTableSink upserts every cleaned table after it is written.
func WithTableSink(s TableSink) Option {
	return func(r *Runner) { r.tableSink = s }
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(next func() string) Option {
	return func(r *Runner) { r.newRunID = next }
}

// New creates a Runner over the given cities and stages.
func New(
	cities []domain.CityConfig,
	weather WeatherFetcher,
	energy EnergyFetcher,
	store ArtifactStore,
	reports ReportWriter,
	opts Options,
	logger *slog.Logger,
	metrics *observability.Metrics,
	options ...Option,
) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.FillScope == "" {
		opts.FillScope = domain.FillByCity
	}
	r := &Runner{
		cities:   cities,
		weather:  weather,
		energy:   energy,
		store:    store,
		reports:  reports,
		opts:     opts,
		clock:    clockwork.NewRealClock(),
		newRunID: uuid.NewString,
		logger:   logger,
		metrics:  metrics,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// CheckReadiness returns nil once a run has completed successfully.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Status returns a copy of the latest run state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	s.Running = r.running.Load()
	return s
}

// Run performs one complete pass. Per-city fetch failures are logged and
// counted, and the city contributes no rows. Any persistence or sink failure
// aborts the run with an error.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Summary{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)

	started := r.clock.Now()
	runID := r.newRunID()
	r.recordStart(runID, started)

	summary, err := r.run(ctx, runID, started)
	summary.Duration = r.clock.Since(started)
	r.metrics.RunDuration.Observe(summary.Duration.Seconds())

	if err != nil {
		r.metrics.Runs.WithLabelValues("failure").Inc()
		r.logger.Error("pipeline run failed", "run_id", runID, "error", err)
		r.recordFinish(summary, err)
		return summary, err
	}

	r.metrics.Runs.WithLabelValues("success").Inc()
	r.ready.Store(true)
	r.recordFinish(summary, nil)
	r.logger.Info("pipeline run complete",
		"run_id", runID,
		"cleaned_rows", summary.CleanedRows,
		"dropped_rows", summary.DroppedRows,
		"outliers", summary.OutlierCount,
		"fresh", summary.DataFresh,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (r *Runner) run(ctx context.Context, runID string, now time.Time) (Summary, error) {
	log := r.logger.With("run_id", runID)

	end := domain.Day(now)
	start := end.AddDate(0, 0, -r.opts.LookbackDays)
	summary := Summary{
		RunID:       runID,
		WindowStart: domain.FormatDate(start),
		WindowEnd:   domain.FormatDate(end),
	}
	log.Info("pipeline run started", "cities", len(r.cities), "start", summary.WindowStart, "end", summary.WindowEnd)

	fetched := r.fetchAll(ctx, log, start, end)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	summary.FailedWeather = fetched.failedWeather
	summary.FailedEnergy = fetched.failedEnergy
	summary.WeatherRows = len(fetched.weather)
	summary.EnergyRows = len(fetched.energy)

	if err := r.store.WriteWeatherRaw(fetched.weather); err != nil {
		return summary, fmt.Errorf("persist raw weather: %w", err)
	}
	if err := r.store.WriteEnergyRaw(fetched.energy); err != nil {
		return summary, fmt.Errorf("persist raw energy: %w", err)
	}

	merged := domain.Merge(fetched.weather, fetched.energy)
	cleaned := domain.Clean(merged, r.opts.FillScope)
	summary.MergedRows = len(merged)
	summary.CleanedRows = len(cleaned.Rows)
	summary.DroppedRows = cleaned.Dropped
	r.metrics.RowsDropped.Add(float64(cleaned.Dropped))
	r.metrics.CleanedRows.Set(float64(len(cleaned.Rows)))
	log.Info("merged and cleaned", "merged_rows", len(merged), "cleaned_rows", len(cleaned.Rows), "dropped_rows", cleaned.Dropped)

	if err := r.store.WriteCleaned(cleaned.Rows); err != nil {
		return summary, fmt.Errorf("persist cleaned table: %w", err)
	}

	report := domain.BuildQualityReport(cleaned.Rows, r.opts.Thresholds, r.clock.Now())
	report.RunID = runID
	if err := r.reports.Write(report); err != nil {
		return summary, fmt.Errorf("persist quality report: %w", err)
	}
	r.observeReport(report)
	summary.Report = report
	summary.OutlierCount = len(report.Outliers)
	summary.DataFresh = report.Freshness.IsFresh
	summary.LatestDataDate = report.Freshness.LatestDate

	if r.tableSink != nil {
		if _, err := r.tableSink.WriteCleaned(ctx, cleaned.Rows); err != nil {
			return summary, fmt.Errorf("table sink: %w", err)
		}
	}
	if r.reportSink != nil {
		if err := r.reportSink.PublishReport(ctx, report); err != nil {
			return summary, fmt.Errorf("report sink: %w", err)
		}
	}
	return summary, nil
}

func (r *Runner) observeReport(report domain.QualityReport) {
	for _, o := range report.Outliers {
		r.metrics.Outliers.WithLabelValues(string(o.Kind)).Inc()
	}
	r.metrics.MissingCells.Reset()
	for col, s := range report.MissingValues {
		r.metrics.MissingCells.WithLabelValues(col).Set(float64(s.Count))
	}
	r.metrics.DataDaysOld.Set(float64(report.Freshness.DaysOld))
	if report.Freshness.IsFresh {
		r.metrics.DataFresh.Set(1)
	} else {
		r.metrics.DataFresh.Set(0)
	}
}

func (r *Runner) recordStart(runID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.LastRunID = runID
	r.status.LastStart = &at
}

func (r *Runner) recordFinish(summary Summary, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.status.LastError = err.Error()
		return
	}
	done := r.clock.Now()
	r.status.LastSuccess = &done
	r.status.LastError = ""
	r.status.LastSummary = &summary
}
