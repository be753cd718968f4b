// Package cache holds the latest published scan snapshot.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"rsiScanner/internal/domain"
	"rsiScanner/internal/metrics"
)

// Versioned stores an immutable snapshot behind a single atomic pointer.
// Publish replaces the whole snapshot and bumps the version in one store, so
// readers see either the previous or the new snapshot, never a mix.
type Versioned struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[domain.Snapshot]
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Versioned cache.
type Option func(*Versioned)

// WithClock overrides the publish timestamp source.
func WithClock(now func() time.Time) Option {
	return func(v *Versioned) { v.now = now }
}

// WithMetrics records version and bucket sizes on every publish.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Versioned) { v.metrics = m }
}

// New returns an empty cache at version 0.
func New(opts ...Option) *Versioned {
	v := &Versioned{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	v.current.Store(&domain.Snapshot{
		Overbought: []domain.ResultRow{},
		Oversold:   []domain.ResultRow{},
	})
	return v
}

// Publish replaces both buckets at once and increments the version by one.
// The slices are copied; callers may keep mutating their own.
func (v *Versioned) Publish(overbought, oversold []domain.ResultRow) domain.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	ts := v.now()
	next := &domain.Snapshot{
		Overbought: append(make([]domain.ResultRow, 0, len(overbought)), overbought...),
		Oversold:   append(make([]domain.ResultRow, 0, len(oversold)), oversold...),
		LastUpdate: &ts,
		Version:    v.current.Load().Version + 1,
	}
	v.current.Store(next)
	v.metrics.Published(next.Version, len(next.Overbought), len(next.Oversold))
	return *next
}

// Snapshot returns the current snapshot. The returned slices are shared and must not be modified.
func (v *Versioned) Snapshot() domain.Snapshot {
	return *v.current.Load()
}

// Version returns the current version without copying the snapshot.
func (v *Versioned) Version() uint64 {
	return v.current.Load().Version
}
