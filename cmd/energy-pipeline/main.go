package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/csvstore"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/eia"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/fetch"
	httpadapter "github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/http"
	kafkaadapter "github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/kafka"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/noaa"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/postgres"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/adapter/report"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/config"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/observability"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/pipeline"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/scheduler"
)

func main() {
	if code := run(); code != 0 {
		os.Exit(code)
	}
}

// run wires the pipeline and returns the process exit code.
func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	cities, err := config.LoadCities(cfg.CitiesPath)
	if err != nil {
		logger.Error("failed to load city config", "path", cfg.CitiesPath, "error", err)
		return 1
	}
	logger.Info("city config loaded", "path", cfg.CitiesPath, "cities", len(cities))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serviceMode := cfg.Schedule != ""
	var console io.Writer = os.Stdout
	if serviceMode {
		console = nil
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	policy := fetch.Policy{
		MaxAttempts:      cfg.FetchMaxAttempts,
		BackoffBase:      cfg.FetchBackoffBase,
		BreakerThreshold: cfg.BreakerFailureThreshold,
	}
	weather := noaa.NewClient(noaa.Config{
		Token:     cfg.NOAAToken,
		BaseURL:   cfg.NOAABaseURL,
		DatasetID: cfg.NOAADatasetID,
		Units:     cfg.NOAAUnits,
		PageLimit: cfg.NOAAPageLimit,
	}, fetch.New("noaa", httpClient, policy, metrics, logger))
	energy := eia.NewClient(eia.Config{
		APIKey:     cfg.EIAAPIKey,
		BaseURL:    cfg.EIABaseURL,
		DataType:   cfg.EIADataType,
		PageLength: cfg.EIAPageLength,
	}, fetch.New("eia", httpClient, policy, metrics, logger))

	var options []pipeline.Option
	if cfg.KafkaEnabled() {
		publisher := kafkaadapter.NewReportPublisher(cfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		options = append(options, pipeline.WithReportSink(publisher))
		logger.Info("kafka report publishing enabled", "topic", cfg.KafkaReportTopic)
	}
	if cfg.DatabaseEnabled() {
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			return 1
		}
		defer pool.Close()

		sink, err := postgres.NewSink(pool, cfg.DatabaseTable, logger)
		if err != nil {
			logger.Error("invalid DATABASE_TABLE", "error", err)
			return 1
		}
		if err := sink.EnsureTable(ctx); err != nil {
			logger.Error("failed to prepare postgres table", "error", err)
			return 1
		}
		options = append(options, pipeline.WithTableSink(sink))
		logger.Info("postgres sink enabled", "table", cfg.DatabaseTable)
	}

	runner := pipeline.New(
		cities,
		weather,
		energy,
		csvstore.New(cfg.RawDir, cfg.ProcessedDir),
		report.NewWriter(cfg.ProcessedDir, console),
		pipeline.Options{
			LookbackDays: cfg.LookbackDays,
			Concurrency:  cfg.FetchConcurrency,
			FillScope:    cfg.FillScope,
			Thresholds:   cfg.Thresholds,
		},
		logger,
		metrics,
		options...,
	)

	if !serviceMode {
		if _, err := runner.Run(ctx); err != nil {
			return 1
		}
		return 0
	}

	return serve(ctx, cfg, runner, logger)
}

// serve runs the pipeline on cfg.Schedule and exposes health endpoints until
// ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, logger *slog.Logger) int {
	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched := scheduler.New(cfg.Schedule, func(ctx context.Context) error {
		_, err := runner.Run(ctx)
		return err
	}, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return 1
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}
