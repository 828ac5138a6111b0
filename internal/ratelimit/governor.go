// Package ratelimit implements the Rate Governor: a pre-call budget gate
// plus an HTTP-level request counter, wrapping the Reddit client transport.
package ratelimit

import (
	"sync"
	"time"

	"github.com/reddit-fleet/controller/internal/metrics"
)

// Snapshot is the client's live rate-limit state, as reported by Reddit's
// X-Ratelimit-* response headers.
type Snapshot struct {
	Remaining int
	Used      int
	ResetIn   time.Duration
	UpdatedAt time.Time
}

// Governor ensures no Reddit call is issued when the account's remaining
// request budget falls below a safety threshold, grounded on
// original_source's rate_limits.py.
type Governor struct {
	mu          sync.Mutex
	snapshot    *Snapshot
	sleepFn     func(time.Duration)
	accountName string
}

// NewGovernor builds a Governor with no snapshot yet observed.
func NewGovernor() *Governor {
	return &Governor{sleepFn: time.Sleep}
}

// SetAccountName labels this Governor's fleet_rate_governor_remaining
// gauge samples, since the Governor itself is constructed before the
// Account it will track is known.
func (g *Governor) SetAccountName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accountName = name
}

// UpdateSnapshot is called by the counting transport after every response
// that carries rate-limit headers.
func (g *Governor) UpdateSnapshot(remaining, used int, resetIn time.Duration) {
	g.mu.Lock()
	g.snapshot = &Snapshot{
		Remaining: remaining,
		Used:      used,
		ResetIn:   resetIn,
		UpdatedAt: time.Now(),
	}
	accountName := g.accountName
	g.mu.Unlock()

	metrics.RateGovernorRemaining.WithLabelValues(accountName).Set(float64(remaining))
}

// CheckBudget inspects the live snapshot. If remaining <= minRemaining and
// reset_in > 0, it blocks for reset_in + 5s; if no snapshot is available
// yet, it sleeps briefly as a precaution. It never returns an error: budget
// pressure is not a failure (spec §4.1, §7).
func (g *Governor) CheckBudget(minRemaining int) {
	g.mu.Lock()
	snap := g.snapshot
	g.mu.Unlock()

	if snap == nil {
		g.sleepFn(1 * time.Second)
		return
	}

	if snap.Remaining <= minRemaining && snap.ResetIn > 0 {
		g.sleepFn(snap.ResetIn + 5*time.Second)
	}
}

// Current returns the last-observed rate-limit state, or nil if none yet.
func (g *Governor) Current() *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshot == nil {
		return nil
	}
	cp := *g.snapshot
	return &cp
}
