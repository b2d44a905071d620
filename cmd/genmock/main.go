// Command genmock generates deterministic NOAA and EIA response fixtures for
// the configured cities, serves them from a local mock upstream, and runs the
// real pipeline against it. The result is a complete, reproducible artifact
// set for cmd/validate and for eyeballing report output without API keys.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -cities config/config.yaml \
//	  -out data/mock \
//	  -days 30
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/csvstore"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/eia"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/fetch"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/noaa"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/report"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/config"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/observability"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/pipeline"
)

// mockNow pins the run clock so fixtures and artifacts are reproducible.
var mockNow = time.Date(2024, time.January, 31, 6, 0, 0, 0, time.UTC)

func main() {
	citiesPath := flag.String("cities", "config/config.yaml", "path to the city YAML config")
	outDir := flag.String("out", "data/mock", "output directory for fixtures and artifacts")
	days := flag.Int("days", 30, "lookback window in days")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(context.Background(), *citiesPath, *outDir, *days, logger); err != nil {
		logger.Error("genmock failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, citiesPath, outDir string, days int, logger *slog.Logger) error {
	if days <= 0 {
		return fmt.Errorf("days must be positive, got %d", days)
	}

	cities, err := config.LoadCities(citiesPath)
	if err != nil {
		return err
	}

	end := domain.Day(mockNow)
	fx := generate(cities, end.AddDate(0, 0, -days), end)

	fixtureDir := filepath.Join(outDir, "fixtures")
	for station, results := range fx.weather {
		path := filepath.Join(fixtureDir, "noaa", fixtureName(station))
		if err := writeJSON(path, results); err != nil {
			return fmt.Errorf("writing weather fixture: %w", err)
		}
	}
	for region, rows := range fx.energy {
		path := filepath.Join(fixtureDir, "eia", fixtureName(region))
		if err := writeJSON(path, rows); err != nil {
			return fmt.Errorf("writing energy fixture: %w", err)
		}
	}
	logger.Info("wrote fixtures", "dir", fixtureDir, "cities", len(cities))

	srv := httptest.NewServer(fx.handler())
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	policy := fetch.Policy{MaxAttempts: 1, BackoffBase: time.Millisecond}
	client := srv.Client()

	weather := noaa.NewClient(noaa.Config{
		Token:     "mock",
		BaseURL:   srv.URL + noaaPath,
		DatasetID: "GHCND",
		PageLimit: 25,
	}, fetch.New("noaa", client, policy, metrics, logger))
	energy := eia.NewClient(eia.Config{
		APIKey:     "mock",
		BaseURL:    srv.URL + eiaPath,
		DataType:   "D",
		PageLength: 25,
	}, fetch.New("eia", client, policy, metrics, logger))

	processedDir := filepath.Join(outDir, "processed")
	runner := pipeline.New(
		cities,
		weather,
		energy,
		csvstore.New(filepath.Join(outDir, "raw"), processedDir),
		report.NewWriter(processedDir, os.Stdout),
		pipeline.Options{
			LookbackDays: days,
			Concurrency:  4,
			FillScope:    domain.FillByCity,
			Thresholds:   domain.DefaultThresholds(),
		},
		logger,
		metrics,
		pipeline.WithClock(clockwork.NewFakeClockAt(mockNow)),
		pipeline.WithRunIDs(func() string { return "mock-run" }),
	)

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Window: %s to %s\n", summary.WindowStart, summary.WindowEnd)
	fmt.Printf("Rows: weather=%d, energy=%d, merged=%d, cleaned=%d, dropped=%d\n",
		summary.WeatherRows, summary.EnergyRows, summary.MergedRows, summary.CleanedRows, summary.DroppedRows)
	fmt.Printf("Outliers: %d\n", summary.OutlierCount)
	fmt.Printf("Artifacts: %s\n", processedDir)
	return nil
}

func fixtureName(id string) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(id) + ".json"
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
