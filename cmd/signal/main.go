// cmd/signal fetches candles once, analyzes them and prints the snapshot as
// JSON. With -watch it instead follows snapshots a running signald publishes
// to Redis.
//
// Usage:
//
//	go run ./cmd/signal --symbol=frxEURUSD --granularity=60 --count=100
//	REDIS_ADDR=localhost:6379 go run ./cmd/signal --watch
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"candlesignal/config"
	"candlesignal/internal/feed/deriv"
	"candlesignal/internal/logger"
	"candlesignal/internal/model"
	"candlesignal/internal/report"
	redisstore "candlesignal/internal/store/redis"

	json "github.com/goccy/go-json"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	symbol := flag.String("symbol", cfg.Symbol, "Deriv symbol")
	granularity := flag.Int("granularity", cfg.Granularity, "Candle size in seconds")
	count := flag.Int("count", cfg.Count, "Number of candles to fetch")
	url := flag.String("url", cfg.DerivURL, "Deriv WebSocket endpoint")
	watch := flag.Bool("watch", false, "Print snapshots published to Redis instead of fetching")
	flag.Parse()

	logger.Init("signal", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *watch {
		if err := runWatch(ctx, cfg, *symbol); err != nil && ctx.Err() == nil {
			slog.Error("watch failed", "error", err)
			os.Exit(1)
		}
		return
	}

	client := deriv.New(deriv.Config{
		URL:               *url,
		Timeout:           cfg.FetchTimeout,
		RequestsPerSecond: cfg.DerivRatePerSec,
	})
	rows, err := client.FetchCandles(ctx, *symbol, *granularity, *count)
	if err != nil {
		slog.Error("fetch failed", "symbol", *symbol, "error", err)
		os.Exit(1)
	}

	a, err := report.Run(*symbol, rows, cfg.Analysis)
	if err != nil {
		slog.Error("analysis failed", "symbol", *symbol, "error", err)
		os.Exit(1)
	}
	for _, f := range a.Failures {
		slog.Warn("component failed", "component", f.Component, "error", f.Err)
	}
	printSnapshot(a.Snapshot)
}

func runWatch(ctx context.Context, cfg *config.Config, symbol string) error {
	if cfg.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR must be set for -watch")
	}
	pub, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	defer pub.Close()

	if snap, err := pub.ReadLatestSnapshot(ctx, symbol); err != nil {
		slog.Warn("latest snapshot read failed", "error", err)
	} else if snap != nil {
		printSnapshot(snap)
	}

	out := make(chan *model.MarketSnapshot, 16)
	errCh := make(chan error, 1)
	go func() { errCh <- pub.Subscribe(ctx, symbol, out) }()
	for {
		select {
		case snap := <-out:
			printSnapshot(snap)
		case err := <-errCh:
			return err
		}
	}
}

func printSnapshot(snap *model.MarketSnapshot) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		slog.Error("encode snapshot", "error", err)
		return
	}
	fmt.Println(string(data))
}
