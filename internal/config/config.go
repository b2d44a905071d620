package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

// scheduleParser accepts standard cron expressions with an optional leading
// seconds field.
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	CitiesPath string

	// Weather API (NOAA CDO v2).
	NOAAToken     string
	NOAABaseURL   string
	NOAADatasetID string
	NOAAUnits     string
	NOAAPageLimit int

	// Energy API (EIA v2).
	EIAAPIKey     string
	EIABaseURL    string
	EIADataType   string
	EIAPageLength int

	// Fetch behaviour shared by both clients.
	HTTPTimeout             time.Duration
	FetchMaxAttempts        int
	FetchBackoffBase        time.Duration
	FetchConcurrency        int
	BreakerFailureThreshold int

	LookbackDays int
	RawDir       string
	ProcessedDir string
	FillScope    domain.FillScope
	Thresholds   domain.Thresholds

	LogLevel  string
	LogFormat string

	// Optional sinks.
	KafkaBrokers     []string
	KafkaReportTopic string
	DatabaseURL      string
	DatabaseTable    string

	// Service mode.
	Schedule        string
	HTTPAddr        string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := parseDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	backoffBase, err := parseDuration("FETCH_BACKOFF_BASE", "1s")
	if err != nil {
		return nil, err
	}

	noaaPageLimit, err := parsePositiveInt("NOAA_PAGE_LIMIT", 1000)
	if err != nil {
		return nil, err
	}
	if noaaPageLimit > 1000 {
		return nil, errors.New("invalid NOAA_PAGE_LIMIT: must be at most 1000")
	}
	eiaPageLength, err := parsePositiveInt("EIA_PAGE_LENGTH", 5000)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := parsePositiveInt("FETCH_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	concurrency, err := parsePositiveInt("FETCH_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	breakerThreshold, err := parseNonNegativeInt("BREAKER_FAILURE_THRESHOLD", 10)
	if err != nil {
		return nil, err
	}
	lookback, err := parsePositiveInt("LOOKBACK_DAYS", 90)
	if err != nil {
		return nil, err
	}

	fillScope, err := domain.ParseFillScope(sharedcfg.EnvOrDefault("FILL_SCOPE", string(domain.FillByCity)))
	if err != nil {
		return nil, fmt.Errorf("invalid FILL_SCOPE: %w", err)
	}

	thresholds, err := loadThresholds()
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		CitiesPath: sharedcfg.EnvOrDefault("CITIES_CONFIG", "config/config.yaml"),

		NOAAToken:     os.Getenv("NOAA_TOKEN"),
		NOAABaseURL:   sharedcfg.EnvOrDefault("NOAA_BASE_URL", "https://www.ncei.noaa.gov/cdo-web/api/v2/data"),
		NOAADatasetID: sharedcfg.EnvOrDefault("NOAA_DATASET_ID", "GHCND"),
		// Unset by default: GHCND then reports tenths of °C, which is what the
		// Fahrenheit conversion expects. "metric" or "standard" would break it.
		NOAAUnits:     os.Getenv("NOAA_UNITS"),
		NOAAPageLimit: noaaPageLimit,

		EIAAPIKey:     os.Getenv("EIA_API_KEY"),
		EIABaseURL:    sharedcfg.EnvOrDefault("EIA_BASE_URL", "https://api.eia.gov/v2/electricity/rto/daily-region-data/data/"),
		EIADataType:   sharedcfg.EnvOrDefault("EIA_DATA_TYPE", "D"),
		EIAPageLength: eiaPageLength,

		HTTPTimeout:             httpTimeout,
		FetchMaxAttempts:        maxAttempts,
		FetchBackoffBase:        backoffBase,
		FetchConcurrency:        concurrency,
		BreakerFailureThreshold: breakerThreshold,

		LookbackDays: lookback,
		RawDir:       sharedcfg.EnvOrDefault("RAW_DIR", "data/raw"),
		ProcessedDir: sharedcfg.EnvOrDefault("PROCESSED_DIR", "data/processed"),
		FillScope:    fillScope,
		Thresholds:   thresholds,

		LogLevel:  sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),

		KafkaBrokers:     brokers,
		KafkaReportTopic: sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "energy-quality-reports"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabaseTable:    sharedcfg.EnvOrDefault("DATABASE_TABLE", "merged_observations"),

		Schedule:        os.Getenv("PIPELINE_SCHEDULE"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.NOAAToken == "" {
		return nil, errors.New("NOAA_TOKEN is required")
	}
	if cfg.EIAAPIKey == "" {
		return nil, errors.New("EIA_API_KEY is required")
	}
	if cfg.Schedule != "" {
		if _, err := scheduleParser.Parse(cfg.Schedule); err != nil {
			return nil, fmt.Errorf("invalid PIPELINE_SCHEDULE: %w", err)
		}
	}

	return cfg, nil
}

// KafkaEnabled reports whether the quality report should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// DatabaseEnabled reports whether cleaned rows should be upserted into Postgres.
func (c *Config) DatabaseEnabled() bool {
	return c.DatabaseURL != ""
}

func loadThresholds() (domain.Thresholds, error) {
	th := domain.DefaultThresholds()

	var err error
	if th.TempMaxF, err = parseFloat("OUTLIER_TEMP_MAX_F", th.TempMaxF); err != nil {
		return th, err
	}
	if th.TempMinF, err = parseFloat("OUTLIER_TEMP_MIN_F", th.TempMinF); err != nil {
		return th, err
	}
	if th.EnergyMinMWh, err = parseFloat("OUTLIER_ENERGY_MIN_MWH", th.EnergyMinMWh); err != nil {
		return th, err
	}
	if th.MaxAgeDays, err = parseNonNegativeInt("FRESHNESS_MAX_DAYS", th.MaxAgeDays); err != nil {
		return th, err
	}
	if th.TempMinF >= th.TempMaxF {
		return th, errors.New("invalid OUTLIER_TEMP_MIN_F: must be below OUTLIER_TEMP_MAX_F")
	}
	return th, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	n, err := parseNonNegativeInt(key, def)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}
