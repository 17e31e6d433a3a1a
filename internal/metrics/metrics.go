// Package metrics exposes Prometheus collectors and the /healthz status for
// the signal service.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analysis service.
type Metrics struct {
	CyclesTotal       *prometheus.CounterVec // labels: outcome=ok|partial|aborted|fetch_error
	CycleDur          prometheus.Histogram
	FetchDur          prometheus.Histogram
	CandlesReceived   prometheus.Counter
	InvalidCandles    prometheus.Counter
	ComponentFailures *prometheus.CounterVec // labels: component

	LastMomentum    *prometheus.GaugeVec // labels: symbol
	LastProbability *prometheus.GaugeVec // labels: symbol
	LastCandleAge   *prometheus.GaugeVec // labels: symbol

	PublishErrors *prometheus.CounterVec // labels: sink=redis|sqlite
}

// NewMetrics creates all collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_cycles_total",
			Help: "Analysis cycles run, by outcome",
		}, []string{"outcome"}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_cycle_duration_seconds",
			Help:    "Analysis compute latency per cycle (excluding fetch)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_fetch_duration_seconds",
			Help:    "Candle feed request latency",
			Buckets: prometheus.DefBuckets,
		}),
		CandlesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_candles_received_total",
			Help: "Raw candle rows received from the feed",
		}),
		InvalidCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_invalid_candles_total",
			Help: "Raw candle rows dropped as malformed",
		}),
		ComponentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_component_failures_total",
			Help: "Snapshot fields left empty by a failing component",
		}, []string{"component"}),

		LastMomentum: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signal_last_momentum",
			Help: "Momentum oscillator of the most recent candle",
		}, []string{"symbol"}),
		LastProbability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signal_last_up_probability",
			Help: "Classifier probability that the next close is higher",
		}, []string{"symbol"}),
		LastCandleAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signal_last_candle_age_seconds",
			Help: "Wall-clock age of the most recent analyzed candle",
		}, []string{"symbol"}),

		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_publish_errors_total",
			Help: "Snapshot publish/record failures, by sink",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.FetchDur,
		m.CandlesReceived,
		m.InvalidCandles,
		m.ComponentFailures,
		m.LastMomentum,
		m.LastProbability,
		m.LastCandleAge,
		m.PublishErrors,
	)

	return m
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedOK         bool      `json:"feed_ok"`
	LastCycleAt    time.Time `json:"last_cycle_at"`
	LastCycleError string    `json:"last_cycle_error"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	// Liveness check results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// RecordCycle stores the outcome of the latest analysis cycle.
func (h *HealthStatus) RecordCycle(at time.Time, feedOK bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.FeedOK = feedOK
	h.LastCycleAt = at
	h.LastCycleError = ""
	if err != nil {
		h.LastCycleError = err.Error()
	}
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(checkCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(checkCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. The service is healthy once a
// cycle has run and the last one reached the feed; sinks are optional and
// only degrade the status.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case h.LastCycleAt.IsZero():
		overallStatus = "starting"
	case !h.FeedOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case h.LastCycleError != "":
		overallStatus = "degraded"
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedOK          bool    `json:"feed_ok"`
		LastCycleAt     string  `json:"last_cycle_at"`
		LastCycleError  string  `json:"last_cycle_error,omitempty"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedOK:          h.FeedOK,
		LastCycleAt:     h.LastCycleAt.Format(time.RFC3339),
		LastCycleError:  h.LastCycleError,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Handler returns the Prometheus scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, g prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
