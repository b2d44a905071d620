package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/observability"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/pipeline"
)

// --- mocks ---

type window struct{ start, end time.Time }

type mockWeather struct {
	mu      sync.Mutex
	entries map[string][]domain.WeatherEntry
	errs    map[string]error
	windows []window

	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
}

func (m *mockWeather) Fetch(_ context.Context, stationID string, start, end time.Time) ([]domain.WeatherEntry, error) {
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.windows = append(m.windows, window{start, end})
	m.mu.Unlock()

	if err := m.errs[stationID]; err != nil {
		return nil, err
	}
	return m.entries[stationID], nil
}

type mockEnergy struct {
	entries map[string][]domain.EnergyEntry
	errs    map[string]error
	block   chan struct{}
}

func (m *mockEnergy) Fetch(ctx context.Context, region string, _, _ time.Time) ([]domain.EnergyEntry, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.errs[region]; err != nil {
		return nil, err
	}
	return m.entries[region], nil
}

type mockStore struct {
	weather    []domain.WeatherObservation
	energy     []domain.EnergyObservation
	cleaned    []domain.CleanedRecord
	cleanedErr error
}

func (m *mockStore) WriteWeatherRaw(rows []domain.WeatherObservation) error {
	m.weather = rows
	return nil
}

func (m *mockStore) WriteEnergyRaw(rows []domain.EnergyObservation) error {
	m.energy = rows
	return nil
}

func (m *mockStore) WriteCleaned(rows []domain.CleanedRecord) error {
	if m.cleanedErr != nil {
		return m.cleanedErr
	}
	m.cleaned = rows
	return nil
}

type mockReports struct {
	written []domain.QualityReport
}

func (m *mockReports) Write(r domain.QualityReport) error {
	m.written = append(m.written, r)
	return nil
}

type mockReportSink struct {
	published []domain.QualityReport
	err       error
}

func (m *mockReportSink) PublishReport(_ context.Context, r domain.QualityReport) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, r)
	return nil
}

type mockTableSink struct {
	rows []domain.CleanedRecord
}

func (m *mockTableSink) WriteCleaned(_ context.Context, rows []domain.CleanedRecord) (int, error) {
	m.rows = rows
	return len(rows), nil
}

// --- helpers ---

var (
	newYork = domain.CityConfig{Name: "New York", WeatherStationID: "GHCND:USW00094728", EnergyRegionCode: "NYIS"}
	chicago = domain.CityConfig{Name: "Chicago", WeatherStationID: "GHCND:USW00094846", EnergyRegionCode: "PJM"}

	jan1 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	jan2 = jan1.AddDate(0, 0, 1)
	now  = time.Date(2024, time.January, 3, 6, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultOptions() pipeline.Options {
	return pipeline.Options{
		LookbackDays: 90,
		Concurrency:  4,
		FillScope:    domain.FillByCity,
		Thresholds:   domain.DefaultThresholds(),
	}
}

type harness struct {
	weather *mockWeather
	energy  *mockEnergy
	store   *mockStore
	reports *mockReports
	metrics *observability.Metrics
	clock   *clockwork.FakeClock
}

func newHarness() *harness {
	return &harness{
		weather: &mockWeather{
			entries: map[string][]domain.WeatherEntry{},
			errs:    map[string]error{},
		},
		energy: &mockEnergy{
			entries: map[string][]domain.EnergyEntry{},
			errs:    map[string]error{},
		},
		store:   &mockStore{},
		reports: &mockReports{},
		metrics: observability.NewMetricsForTesting(),
		clock:   clockwork.NewFakeClockAt(now),
	}
}

func (h *harness) runner(cities []domain.CityConfig, opts pipeline.Options, extra ...pipeline.Option) *pipeline.Runner {
	options := append([]pipeline.Option{
		pipeline.WithClock(h.clock),
		pipeline.WithRunIDs(func() string { return "run-1" }),
	}, extra...)
	return pipeline.New(cities, h.weather, h.energy, h.store, h.reports, opts, discardLogger(), h.metrics, options...)
}

// seedNewYork sets up temp_max=32°F on Jan 1 and nothing on Jan 2, with
// energy 300 then null.
func (h *harness) seedNewYork() {
	h.weather.entries[newYork.WeatherStationID] = []domain.WeatherEntry{
		{Date: jan1, DataType: domain.DataTypeTempMax, Value: 0},
		{Date: jan1, DataType: domain.DataTypeTempMin, Value: -100},
	}
	h.energy.entries[newYork.EnergyRegionCode] = []domain.EnergyEntry{
		{Period: jan1, Value: domain.Float(300)},
		{Period: jan2, Value: nil},
	}
}

// --- tests ---

func TestRunner_Run_EndToEndForwardFill(t *testing.T) {
	h := newHarness()
	h.seedNewYork()
	r := h.runner([]domain.CityConfig{newYork}, defaultOptions())

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	want := []domain.CleanedRecord{
		{City: "New York", Date: jan1, TempMaxF: 32, TempMinF: 14, EnergyUsageMWh: 300},
		{City: "New York", Date: jan2, TempMaxF: 32, TempMinF: 14, EnergyUsageMWh: 300},
	}
	if diff := cmp.Diff(want, h.store.cleaned); diff != "" {
		t.Errorf("cleaned table mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "2024-01-03", summary.WindowEnd)
	assert.Equal(t, "2023-10-05", summary.WindowStart)
	assert.Equal(t, 1, summary.WeatherRows)
	assert.Equal(t, 2, summary.EnergyRows)
	assert.Equal(t, 2, summary.MergedRows)
	assert.Equal(t, 2, summary.CleanedRows)
	assert.Zero(t, summary.DroppedRows)

	require.Len(t, h.store.weather, 1)
	require.Len(t, h.store.energy, 2)
	assert.Nil(t, h.store.energy[1].EnergyUsageMWh)

	require.Len(t, h.reports.written, 1)
	report := h.reports.written[0]
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, now, report.GeneratedAt)
	assert.Equal(t, 2, report.TotalRows)
	assert.Empty(t, report.MissingValues)
	assert.Empty(t, report.Outliers)
	assert.Equal(t, domain.Freshness{IsFresh: true, LatestDate: "2024-01-02", DaysOld: 1}, report.Freshness)

	require.Len(t, h.weather.windows, 1)
	assert.Equal(t, time.Date(2023, time.October, 5, 0, 0, 0, 0, time.UTC), h.weather.windows[0].start)
	assert.Equal(t, time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC), h.weather.windows[0].end)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.CleanedRows))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DataFresh))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.PipelineRunning))
}

func TestRunner_Run_CityFailureIsIsolated(t *testing.T) {
	h := newHarness()
	h.seedNewYork()
	h.weather.errs[chicago.WeatherStationID] = errors.New("retries exhausted")
	h.energy.entries[chicago.EnergyRegionCode] = []domain.EnergyEntry{{Period: jan1, Value: domain.Float(500)}}

	r := h.runner([]domain.CityConfig{newYork, chicago}, defaultOptions())
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Chicago"}, summary.FailedWeather)
	assert.Empty(t, summary.FailedEnergy)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CityFetchFailures.WithLabelValues("noaa")))

	// Chicago has energy but no temperatures, so its row cannot be filled
	// within the city and is dropped.
	assert.Equal(t, 3, summary.MergedRows)
	assert.Equal(t, 1, summary.DroppedRows)
	for _, row := range h.store.cleaned {
		assert.Equal(t, "New York", row.City)
	}
}

func TestRunner_Run_FillScope(t *testing.T) {
	seattle := domain.CityConfig{Name: "Seattle", WeatherStationID: "GHCND:USW00024233", EnergyRegionCode: "SCL"}

	tests := []struct {
		name        string
		scope       domain.FillScope
		wantCleaned int
	}{
		// Seattle has energy but no temperatures. Partitioned fill drops it.
		{name: "city", scope: domain.FillByCity, wantCleaned: 2},
		// A table-wide fill carries New York's last temperatures into
		// Seattle's leading gap, which sorts right after it.
		{name: "table", scope: domain.FillTable, wantCleaned: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.seedNewYork()
			h.energy.entries[seattle.EnergyRegionCode] = []domain.EnergyEntry{{Period: jan1, Value: domain.Float(500)}}

			opts := defaultOptions()
			opts.FillScope = tt.scope
			summary, err := h.runner([]domain.CityConfig{newYork, seattle}, opts).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantCleaned, summary.CleanedRows)
		})
	}
}

func TestRunner_Run_BoundedConcurrency(t *testing.T) {
	h := newHarness()
	h.weather.delay = 20 * time.Millisecond

	var cities []domain.CityConfig
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		cities = append(cities, domain.CityConfig{Name: name, WeatherStationID: "ST-" + name, EnergyRegionCode: "RG-" + name})
	}
	opts := defaultOptions()
	opts.Concurrency = 2

	_, err := h.runner(cities, opts).Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, h.weather.peak.Load(), int32(2))
	assert.Len(t, h.weather.windows, 6)
}

func TestRunner_Run_StoreFailureIsFatal(t *testing.T) {
	h := newHarness()
	h.seedNewYork()
	h.store.cleanedErr = errors.New("read-only file system")
	r := h.runner([]domain.CityConfig{newYork}, defaultOptions())

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist cleaned table")
	assert.Empty(t, h.reports.written)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues("failure")))
	require.Error(t, r.CheckReadiness(context.Background()))

	status := r.Status()
	assert.Equal(t, "run-1", status.LastRunID)
	assert.Contains(t, status.LastError, "read-only file system")
	assert.Nil(t, status.LastSuccess)
}

func TestRunner_Run_Sinks(t *testing.T) {
	h := newHarness()
	h.seedNewYork()
	reportSink := &mockReportSink{}
	tableSink := &mockTableSink{}
	r := h.runner([]domain.CityConfig{newYork}, defaultOptions(),
		pipeline.WithReportSink(reportSink), pipeline.WithTableSink(tableSink))

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, reportSink.published, 1)
	assert.Equal(t, "run-1", reportSink.published[0].RunID)
	assert.Equal(t, h.store.cleaned, tableSink.rows)
}

func TestRunner_Run_SinkFailureIsFatal(t *testing.T) {
	h := newHarness()
	h.seedNewYork()
	r := h.runner([]domain.CityConfig{newYork}, defaultOptions(),
		pipeline.WithReportSink(&mockReportSink{err: errors.New("broker unavailable")}))

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report sink")
	assert.Len(t, h.reports.written, 1, "report files are written before sinks")
}

func TestRunner_ReadinessAndStatus(t *testing.T) {
	h := newHarness()
	h.seedNewYork()
	r := h.runner([]domain.CityConfig{newYork}, defaultOptions())

	require.Error(t, r.CheckReadiness(context.Background()))
	assert.Nil(t, r.Status().LastSummary)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, r.CheckReadiness(context.Background()))
	status := r.Status()
	assert.False(t, status.Running)
	assert.Equal(t, "run-1", status.LastRunID)
	require.NotNil(t, status.LastSuccess)
	require.NotNil(t, status.LastSummary)
	assert.Equal(t, 2, status.LastSummary.CleanedRows)
	assert.Empty(t, status.LastError)
}

func TestRunner_Run_RejectsOverlap(t *testing.T) {
	h := newHarness()
	h.seedNewYork()
	h.energy.block = make(chan struct{})
	r := h.runner([]domain.CityConfig{newYork}, defaultOptions())

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return r.Status().Running }, time.Second, 5*time.Millisecond)
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, pipeline.ErrRunInProgress)

	close(h.energy.block)
	require.NoError(t, <-done)
}

func TestRunner_Run_Canceled(t *testing.T) {
	h := newHarness()
	h.seedNewYork()
	h.energy.block = make(chan struct{})
	r := h.runner([]domain.CityConfig{newYork}, defaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, h.store.cleaned)
}

func TestRunner_Run_NoCities(t *testing.T) {
	h := newHarness()
	r := h.runner(nil, defaultOptions())

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.CleanedRows)
	require.Len(t, h.reports.written, 1)
	assert.False(t, h.reports.written[0].Freshness.IsFresh)
}
