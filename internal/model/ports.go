package model

import "context"

// ── Ports ──
// These interfaces decouple the analysis service from concrete feed and
// storage implementations (Deriv WebSocket, Redis, SQLite).

// CandleSource fetches the most recent candles for a symbol.
type CandleSource interface {
	// FetchCandles returns up to count raw candles, oldest first.
	FetchCandles(ctx context.Context, symbol string, granularity, count int) ([]RawCandle, error)
}

// SnapshotPublisher makes the latest snapshot available to other processes.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap *MarketSnapshot) error

	// Close releases underlying resources.
	Close() error
}

// SnapshotRecorder appends snapshots to durable history.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, snap *MarketSnapshot) error

	// ReadLatestSnapshot loads the most recent snapshot for symbol.
	// Returns nil, nil if none exists.
	ReadLatestSnapshot(ctx context.Context, symbol string) (*MarketSnapshot, error)

	// Close releases underlying resources.
	Close() error
}
