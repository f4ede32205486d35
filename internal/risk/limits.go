// Package risk holds the pre-trade gate, the versioned limit snapshots
// and the session circuit breaker.
package risk

import (
	"sync"
	"time"
)

// Limits is one immutable snapshot of the account's risk configuration.
// New versions are appended through a Book, never mutated in place, so
// any historical gate decision can be replayed against the limits in
// force at the time. Percentages are fractions (0.02 == 2%).
type Limits struct {
	Version int

	MaxPositions       int
	MaxPositionPct     float64
	MaxDailyLossPct    float64
	MaxTradeLossPct    float64
	MinRiskReward      float64
	MinPositionValue   float64
	MaxStopDistancePct float64
	MaxDailyTrades     int

	// WarningFraction of MaxDailyLossPct at which the breaker moves to
	// WARNING and new entries stop.
	WarningFraction float64

	// SlippageTolerancePct is how far past a stop price the mark may
	// trade before the breaker treats the stop order as non-executing.
	SlippageTolerancePct float64

	AllowPyramiding bool

	CreatedAt time.Time
}

// WarningLossPct is the soft daily-loss threshold.
func (l Limits) WarningLossPct() float64 {
	f := l.WarningFraction
	if f <= 0 || f >= 1 {
		f = 0.75
	}
	return l.MaxDailyLossPct * f
}

// DefaultLimits mirrors the conservative single-account defaults the
// system ships with.
func DefaultLimits() Limits {
	return Limits{
		MaxPositions:         5,
		MaxPositionPct:       0.20,
		MaxDailyLossPct:      0.02,
		MaxTradeLossPct:      0.01,
		MinRiskReward:        2.0,
		MinPositionValue:     10_000,
		MaxStopDistancePct:   0.05,
		MaxDailyTrades:       10,
		WarningFraction:      0.75,
		SlippageTolerancePct: 0.005,
		CreatedAt:            time.Now(),
	}
}

// Book is the append-only history of limit versions. Current() is what
// the engine hands to the gate on every call.
type Book struct {
	mu       sync.RWMutex
	versions []Limits
}

func NewBook(initial Limits) *Book {
	b := &Book{}
	b.Append(initial)
	return b
}

// Append stamps the next version number and records the snapshot.
func (b *Book) Append(l Limits) Limits {
	b.mu.Lock()
	defer b.mu.Unlock()
	l.Version = len(b.versions) + 1
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	b.versions = append(b.versions, l)
	return l
}

// Current returns the latest version.
func (b *Book) Current() Limits {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.versions[len(b.versions)-1]
}

// At returns a historical version for replay; ok is false when the
// version was never issued.
func (b *Book) At(version int) (Limits, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if version < 1 || version > len(b.versions) {
		return Limits{}, false
	}
	return b.versions[version-1], true
}
