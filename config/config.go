// Package config loads service configuration from environment variables and
// an optional YAML file of analysis parameters.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"candlesignal/internal/feed/deriv"
	"candlesignal/internal/report"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Feed
	Symbol          string        `validate:"required"`
	Granularity     int           `validate:"min=1"` // seconds per candle
	Count           int           `validate:"min=1,max=5000"`
	DerivURL        string        `validate:"required"`
	DerivRatePerSec float64       `validate:"gt=0"`
	FetchTimeout    time.Duration `validate:"gt=0"`

	// Sinks; empty address or path disables the sink
	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"min=0"`
	SQLitePath    string
	SQLiteKeep    int `validate:"min=0"`

	// Service
	HTTPAddr    string
	MetricsAddr string
	Schedule    string // cron spec with seconds field
	HistorySize int    `validate:"min=1"`
	LogLevel    string `validate:"oneof=debug info warn error"`

	// Analysis parameters (SIGNAL_CONFIG file, then env overrides)
	Analysis report.Params
}

var validate = validator.New()

// Load reads the environment. If SIGNAL_CONFIG names a YAML file, analysis
// parameters are read from it first and individual env vars override them.
func Load() (*Config, error) {
	cfg := &Config{
		Symbol:        getEnv("SIGNAL_SYMBOL", "frxEURUSD"),
		DerivURL:      getEnv("DERIV_URL", deriv.DefaultURL),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", ""),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		Schedule:      getEnv("SIGNAL_SCHEDULE", "5 * * * * *"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Analysis:      report.DefaultParams(),
	}

	var errs []error
	intVar := func(dst *int, key string, fallback int) {
		v, err := getEnvInt(key, fallback)
		errs = append(errs, err)
		*dst = v
	}
	intVar(&cfg.Granularity, "SIGNAL_GRANULARITY", 60)
	intVar(&cfg.Count, "SIGNAL_COUNT", 100)
	intVar(&cfg.RedisDB, "REDIS_DB", 0)
	intVar(&cfg.SQLiteKeep, "SQLITE_KEEP", 0)
	intVar(&cfg.HistorySize, "HISTORY_SIZE", 500)

	rate, err := getEnvFloat("DERIV_RATE_PER_SEC", deriv.DefaultRatePerSec)
	errs = append(errs, err)
	cfg.DerivRatePerSec = rate
	timeout, err := getEnvDuration("FETCH_TIMEOUT", deriv.DefaultTimeout)
	errs = append(errs, err)
	cfg.FetchTimeout = timeout

	if path := os.Getenv("SIGNAL_CONFIG"); path != "" {
		p, err := LoadParams(path)
		if err != nil {
			return nil, err
		}
		cfg.Analysis = p
		slog.Info("analysis params loaded", "path", path)
	}

	a := &cfg.Analysis
	intVar(&a.Indicator.MomentumPeriod, "MOMENTUM_PERIOD", a.Indicator.MomentumPeriod)
	intVar(&a.Indicator.TrendAverageWindow, "TREND_AVERAGE_WINDOW", a.Indicator.TrendAverageWindow)
	intVar(&a.Pattern.SupportResistanceWindow, "SUPPORT_RESISTANCE_WINDOW", a.Pattern.SupportResistanceWindow)
	intVar(&a.Pattern.GapLookback, "GAP_LOOKBACK", a.Pattern.GapLookback)
	intVar(&a.Pattern.PullbackWindow, "PULLBACK_WINDOW", a.Pattern.PullbackWindow)
	intVar(&a.Classifier.HoldoutSize, "HOLDOUT_SIZE", a.Classifier.HoldoutSize)
	intVar(&a.Classifier.MinTrainRows, "MIN_TRAIN_ROWS", a.Classifier.MinTrainRows)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadParams reads analysis parameters from a YAML file. Keys missing from
// the file keep their defaults; unknown keys are rejected.
func LoadParams(path string) (report.Params, error) {
	p := report.DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return p, p.Validate()
}

// Validate checks field constraints, the cron schedule and analysis params.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := cron.NewParser(CronFields).Parse(c.Schedule); err != nil {
		return fmt.Errorf("config: SIGNAL_SCHEDULE %q: %w", c.Schedule, err)
	}
	return c.Analysis.Validate()
}

// CronFields is the cron parser layout for Schedule: a leading seconds field
// plus descriptors such as "@every 30s".
const CronFields = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s=%q: not an integer", key, v)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("config: %s=%q: not a number", key, v)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	return d, nil
}
