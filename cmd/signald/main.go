// cmd/signald runs the scheduled analysis service: it fetches candles from
// Deriv on SIGNAL_SCHEDULE, publishes snapshots to Redis, records them in
// SQLite and serves the HTTP API, /metrics and /healthz.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"candlesignal/config"
	"candlesignal/internal/feed/deriv"
	"candlesignal/internal/logger"
	"candlesignal/internal/metrics"
	"candlesignal/internal/signald"
	redisstore "candlesignal/internal/store/redis"
	sqlitestore "candlesignal/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(2)
	}
	logger.Init("signald", logger.ParseLevel(cfg.LogLevel))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	health := metrics.NewHealthStatus()

	deps := signald.Deps{
		Source: deriv.New(deriv.Config{
			URL:               cfg.DerivURL,
			Timeout:           cfg.FetchTimeout,
			RequestsPerSecond: cfg.DerivRatePerSec,
		}),
		Registry: reg,
		Health:   health,
	}

	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			slog.Warn("redis unavailable, publishing disabled", "error", err)
		} else {
			deps.Publisher = pub
			rdb = pub.Client()
		}
	}

	var sqlDB *sql.DB
	if cfg.SQLitePath != "" {
		rec, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath, Keep: cfg.SQLiteKeep})
		if err != nil {
			slog.Warn("sqlite unavailable, recording disabled", "error", err)
		} else {
			deps.Recorder = rec
			sqlDB = rec.DB()
		}
	}

	svc, err := signald.New(cfg, deps)
	if err != nil {
		slog.Error("init failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	health.StartLivenessChecker(ctx, rdb, sqlDB, 15*time.Second)

	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, reg, health)
		metricsSrv.Start()
	}

	if err := svc.Run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}

	if metricsSrv != nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutCancel()
		metricsSrv.Stop(shutCtx)
	}
}
