// Package history keeps the most recent snapshots per symbol in memory so the
// HTTP API can serve them without touching SQLite.
package history

import (
	"sync"

	"candlesignal/internal/model"
)

// DefaultCapacity is the per-symbol ring size used when none is given.
const DefaultCapacity = 500

// Buffer is a fixed-size ring of snapshots per symbol. Safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	cap   int
	rings map[string]*ring
}

type ring struct {
	buf  []*model.MarketSnapshot
	pos  int // next write position
	full bool
}

// New creates a buffer holding up to capacity snapshots per symbol.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{cap: capacity, rings: make(map[string]*ring)}
}

// Push stores snap under its symbol, evicting the oldest when full.
func (b *Buffer) Push(snap *model.MarketSnapshot) {
	if snap == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[snap.Symbol]
	if !ok {
		r = &ring{buf: make([]*model.MarketSnapshot, b.cap)}
		b.rings[snap.Symbol] = r
	}
	r.buf[r.pos] = snap
	r.pos = (r.pos + 1) % b.cap
	if r.pos == 0 {
		r.full = true
	}
}

// Latest returns the newest snapshot for symbol, or nil.
func (b *Buffer) Latest(symbol string) *model.MarketSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rings[symbol]
	if !ok || r.len() == 0 {
		return nil
	}
	return r.buf[(r.pos-1+len(r.buf))%len(r.buf)]
}

// Recent returns up to n snapshots for symbol, newest first.
func (b *Buffer) Recent(symbol string, n int) []*model.MarketSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rings[symbol]
	if !ok || n <= 0 {
		return nil
	}
	if l := r.len(); n > l {
		n = l
	}
	out := make([]*model.MarketSnapshot, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.pos-1-i+2*len(r.buf))%len(r.buf)]
	}
	return out
}

// Len returns how many snapshots are held for symbol.
func (b *Buffer) Len(symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if r, ok := b.rings[symbol]; ok {
		return r.len()
	}
	return 0
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.pos
}
