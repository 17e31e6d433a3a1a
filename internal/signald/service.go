// Package signald runs scheduled analysis cycles for one symbol: fetch
// candles, build the snapshot, then publish, record and serve it.
package signald

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"candlesignal/config"
	"candlesignal/internal/history"
	"candlesignal/internal/live"
	"candlesignal/internal/logger"
	"candlesignal/internal/metrics"
	"candlesignal/internal/model"
	"candlesignal/internal/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// Deps are the external collaborators of a Service. Publisher and Recorder
// are optional.
type Deps struct {
	Source    model.CandleSource
	Publisher model.SnapshotPublisher
	Recorder  model.SnapshotRecorder
	Registry  prometheus.Registerer
	Health    *metrics.HealthStatus
}

// Service is the analysis daemon.
type Service struct {
	cfg  *config.Config
	deps Deps

	prom    *metrics.Metrics
	health  *metrics.HealthStatus
	history *history.Buffer
	live    *live.Hub

	cycleMu sync.Mutex // one cycle at a time

	paramsMu sync.RWMutex
	params   report.Params
}

// New creates a Service. cfg must already be validated.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if deps.Source == nil {
		return nil, errors.New("signald: candle source required")
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if deps.Health == nil {
		deps.Health = metrics.NewHealthStatus()
	}
	return &Service{
		cfg:     cfg,
		deps:    deps,
		prom:    metrics.NewMetrics(deps.Registry),
		health:  deps.Health,
		history: history.New(cfg.HistorySize),
		live:    live.NewHub(),
		params:  cfg.Analysis,
	}, nil
}

// Health returns the health status served on /healthz.
func (svc *Service) Health() *metrics.HealthStatus { return svc.health }

// Params returns the analysis parameters used by the next cycle.
func (svc *Service) Params() report.Params {
	svc.paramsMu.RLock()
	defer svc.paramsMu.RUnlock()
	return svc.params
}

// SetParams validates and installs new analysis parameters.
func (svc *Service) SetParams(p report.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	svc.paramsMu.Lock()
	svc.params = p
	svc.paramsMu.Unlock()
	slog.Info("analysis params updated", "params", p)
	return nil
}

// RunCycle fetches candles, analyzes them and hands the snapshot to the
// history buffer, the live stream and the sinks. A partial snapshot (some
// fields failed) is still a successful cycle; only a fetch failure or an
// empty series returns an error. Sink failures are logged and counted.
func (svc *Service) RunCycle(ctx context.Context) (*model.MarketSnapshot, error) {
	svc.cycleMu.Lock()
	defer svc.cycleMu.Unlock()

	symbol := svc.cfg.Symbol
	ctx = logger.WithTraceID(ctx, logger.NewTraceID(symbol))
	trace := logger.LogWithTrace(ctx)

	fetchCtx, cancel := context.WithTimeout(ctx, svc.cfg.FetchTimeout)
	start := time.Now()
	rows, err := svc.deps.Source.FetchCandles(fetchCtx, symbol, svc.cfg.Granularity, svc.cfg.Count)
	cancel()
	svc.prom.FetchDur.Observe(time.Since(start).Seconds())
	if err != nil {
		svc.prom.CyclesTotal.WithLabelValues("fetch_error").Inc()
		svc.health.RecordCycle(time.Now(), false, err)
		slog.Error("candle fetch failed", append(trace, "symbol", symbol, "error", err)...)
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	svc.prom.CandlesReceived.Add(float64(len(rows)))

	start = time.Now()
	a, err := report.Run(symbol, rows, svc.Params())
	svc.prom.CycleDur.Observe(time.Since(start).Seconds())
	if err != nil {
		svc.prom.CyclesTotal.WithLabelValues("aborted").Inc()
		svc.health.RecordCycle(time.Now(), true, err)
		slog.Error("analysis aborted", append(trace, "symbol", symbol, "rows", len(rows), "error", err)...)
		return nil, err
	}
	snap := a.Snapshot

	if snap.InvalidDropped > 0 {
		svc.prom.InvalidCandles.Add(float64(snap.InvalidDropped))
		slog.Warn("dropped invalid candles", append(trace, "symbol", symbol, "count", snap.InvalidDropped)...)
	}
	for _, f := range a.Failures {
		svc.prom.ComponentFailures.WithLabelValues(f.Component).Inc()
		slog.Debug("component failed", append(trace, "component", f.Component, "error", f.Err)...)
	}
	outcome := "ok"
	if len(a.Failures) > 0 {
		outcome = "partial"
	}
	svc.prom.CyclesTotal.WithLabelValues(outcome).Inc()
	svc.observe(snap)
	svc.history.Push(snap)
	svc.live.Broadcast(snap)

	sinkErr := svc.deliver(ctx, snap)
	svc.health.RecordCycle(time.Now(), true, sinkErr)

	slog.Info("cycle complete", append(trace,
		"symbol", symbol,
		"candle_time", snap.CandleTime,
		"candles", snap.Candles,
		"trend", snap.Trend,
		"outcome", outcome,
	)...)
	return snap, nil
}

func (svc *Service) observe(snap *model.MarketSnapshot) {
	if snap.Momentum != nil {
		svc.prom.LastMomentum.WithLabelValues(snap.Symbol).Set(*snap.Momentum)
	}
	if snap.Prediction != nil {
		svc.prom.LastProbability.WithLabelValues(snap.Symbol).Set(snap.Prediction.Probability)
	}
	svc.prom.LastCandleAge.WithLabelValues(snap.Symbol).Set(time.Since(snap.CandleTime).Seconds())
}

// deliver writes snap to every configured sink and joins their errors.
func (svc *Service) deliver(ctx context.Context, snap *model.MarketSnapshot) error {
	var errs []error
	if p := svc.deps.Publisher; p != nil {
		if err := p.PublishSnapshot(ctx, snap); err != nil {
			svc.prom.PublishErrors.WithLabelValues("redis").Inc()
			slog.Warn("snapshot publish failed", append(logger.LogWithTrace(ctx), "error", err)...)
			errs = append(errs, err)
		}
	}
	if r := svc.deps.Recorder; r != nil {
		if err := r.RecordSnapshot(ctx, snap); err != nil {
			svc.prom.PublishErrors.WithLabelValues("sqlite").Inc()
			slog.Warn("snapshot record failed", append(logger.LogWithTrace(ctx), "error", err)...)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// restore seeds the history buffer with the last recorded snapshot so the
// API has something to serve before the first cycle finishes.
func (svc *Service) restore(ctx context.Context) {
	if svc.deps.Recorder == nil {
		return
	}
	snap, err := svc.deps.Recorder.ReadLatestSnapshot(ctx, svc.cfg.Symbol)
	if err != nil {
		slog.Warn("snapshot restore failed", "error", err)
		return
	}
	if snap != nil {
		svc.history.Push(snap)
		slog.Info("restored last snapshot", "symbol", snap.Symbol, "candle_time", snap.CandleTime)
	}
}

// Run restores history, runs one cycle, then schedules cycles on
// cfg.Schedule and serves the HTTP API until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	svc.restore(ctx)
	svc.RunCycle(ctx)

	cronLog := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	sched := cron.New(
		cron.WithParser(cron.NewParser(config.CronFields)),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := sched.AddFunc(svc.cfg.Schedule, func() { svc.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("signald: schedule %q: %w", svc.cfg.Schedule, err)
	}
	sched.Start()

	var srv *http.Server
	if svc.cfg.HTTPAddr != "" {
		srv = &http.Server{Addr: svc.cfg.HTTPAddr, Handler: svc.Handler()}
		go func() {
			slog.Info("http api listening", "addr", svc.cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http api error", "error", err)
			}
		}()
	}

	slog.Info("signal service running",
		"symbol", svc.cfg.Symbol,
		"granularity", svc.cfg.Granularity,
		"count", svc.cfg.Count,
		"schedule", svc.cfg.Schedule,
	)
	<-ctx.Done()

	slog.Info("shutdown signal received")
	<-sched.Stop().Done()
	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}
	svc.close()
	slog.Info("shutdown complete")
	return nil
}

func (svc *Service) close() {
	if svc.deps.Publisher != nil {
		svc.deps.Publisher.Close()
	}
	if svc.deps.Recorder != nil {
		svc.deps.Recorder.Close()
	}
}
