// Package sqlite keeps a durable history of market snapshots.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"candlesignal/internal/model"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultKeep is how many snapshots per symbol Prune retains by default.
const DefaultKeep = 10000

// Config configures the recorder.
type Config struct {
	DBPath string // e.g. "data/signal.db"
	Keep   int    // snapshots retained per symbol, 0 = DefaultKeep
}

// Recorder implements model.SnapshotRecorder on SQLite in WAL mode.
type Recorder struct {
	db   *sql.DB
	keep int
}

// New opens (creating if needed) the database and its schema.
func New(cfg Config) (*Recorder, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	keep := cfg.Keep
	if keep <= 0 {
		keep = DefaultKeep
	}
	slog.Info("sqlite opened", "path", cfg.DBPath)
	return &Recorder{db: db, keep: keep}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT    NOT NULL,
			candle_time INTEGER NOT NULL,
			created_at  INTEGER NOT NULL,
			data        TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_symbol_id ON snapshots (symbol, id);
	`)
	return err
}

// DB returns the underlying handle for health checks.
func (r *Recorder) DB() *sql.DB { return r.db }

// RecordSnapshot appends snap and prunes rows beyond the retention limit.
func (r *Recorder) RecordSnapshot(ctx context.Context, snap *model.MarketSnapshot) error {
	if snap == nil {
		return errors.New("sqlite: nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("sqlite: encode snapshot: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (symbol, candle_time, created_at, data) VALUES (?, ?, ?, ?)`,
		snap.Symbol, snap.CandleTime.Unix(), time.Now().Unix(), string(data))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE symbol = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE symbol = ? ORDER BY id DESC LIMIT ?
		)`, snap.Symbol, snap.Symbol, r.keep)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prune snapshots: %w", err)
	}
	return tx.Commit()
}

// ReadLatestSnapshot returns the newest snapshot for symbol, or nil, nil.
func (r *Recorder) ReadLatestSnapshot(ctx context.Context, symbol string) (*model.MarketSnapshot, error) {
	snaps, err := r.ReadRecent(ctx, symbol, 1)
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return snaps[0], nil
}

// ReadRecent returns up to limit snapshots for symbol, newest first.
func (r *Recorder) ReadRecent(ctx context.Context, symbol string, limit int) ([]*model.MarketSnapshot, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT data FROM snapshots
		WHERE symbol = ?
		ORDER BY id DESC
		LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query snapshots: %w", err)
	}
	defer rows.Close()

	var out []*model.MarketSnapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan snapshot: %w", err)
		}
		var snap model.MarketSnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return nil, fmt.Errorf("sqlite decode snapshot: %w", err)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
