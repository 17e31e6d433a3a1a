// Package redis publishes market snapshots to Redis: a latest-value key, a
// capped stream for short history and a PubSub channel for live consumers.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"candlesignal/internal/model"

	goredis "github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
)

const (
	defaultLatestTTL   = 30 * time.Minute
	defaultStreamLen   = 500
	defaultMaxFailures = 5
	defaultResetAfter  = 30 * time.Second
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	LatestTTL time.Duration // expiry of snapshot:{symbol}, 0 = default
	StreamLen int64         // approximate MAXLEN of snapshots:{symbol}
}

// LatestKey holds the most recent snapshot JSON for symbol.
func LatestKey(symbol string) string { return "snapshot:" + symbol }

// StreamKey is the capped stream of past snapshots for symbol.
func StreamKey(symbol string) string { return "snapshots:" + symbol }

// Channel is the PubSub channel snapshots for symbol are published on.
func Channel(symbol string) string { return "pub:snapshot:" + symbol }

// Publisher implements model.SnapshotPublisher.
type Publisher struct {
	client    *goredis.Client
	breaker   *CircuitBreaker
	ttl       time.Duration
	streamLen int64
}

// New connects to Redis and pings it.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := &Publisher{
		client:    client,
		breaker:   NewCircuitBreaker(defaultMaxFailures, defaultResetAfter),
		ttl:       cfg.LatestTTL,
		streamLen: cfg.StreamLen,
	}
	if p.ttl <= 0 {
		p.ttl = defaultLatestTTL
	}
	if p.streamLen <= 0 {
		p.streamLen = defaultStreamLen
	}
	p.breaker.OnStateChange = func(from, to State) {
		slog.Warn("redis breaker state change", "from", from, "to", to, "addr", cfg.Addr)
	}

	slog.Info("redis connected", "addr", cfg.Addr)
	return p, nil
}

// Client returns the underlying client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// PublishSnapshot writes SET + XADD + PUBLISH for snap in one pipeline.
// While the breaker is open calls fail fast with ErrCircuitOpen.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap *model.MarketSnapshot) error {
	if snap == nil {
		return errors.New("redis: nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot: %w", err)
	}
	payload := string(data)

	return p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, LatestKey(snap.Symbol), payload, p.ttl)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamKey(snap.Symbol),
			MaxLen: p.streamLen,
			Approx: true,
			Values: map[string]interface{}{"data": payload},
		})
		pipe.Publish(ctx, Channel(snap.Symbol), payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis pipeline %s: %w", snap.Symbol, err)
		}
		return nil
	})
}

// ReadLatestSnapshot returns the cached snapshot for symbol, or nil, nil when
// the key is missing or expired.
func (p *Publisher) ReadLatestSnapshot(ctx context.Context, symbol string) (*model.MarketSnapshot, error) {
	data, err := p.client.Get(ctx, LatestKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", LatestKey(symbol), err)
	}
	var snap model.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redis decode %s: %w", LatestKey(symbol), err)
	}
	return &snap, nil
}

// Subscribe delivers snapshots published for symbol until ctx is cancelled.
// Undecodable messages are logged and dropped.
func (p *Publisher) Subscribe(ctx context.Context, symbol string, out chan<- *model.MarketSnapshot) error {
	sub := p.client.Subscribe(ctx, Channel(symbol))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", Channel(symbol), err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var snap model.MarketSnapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				slog.Warn("redis: dropping undecodable snapshot", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case out <- &snap:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// BreakerState reports the publish circuit breaker state.
func (p *Publisher) BreakerState() State { return p.breaker.CurrentState() }

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
