// Package breaker implements the Circuit Breaker: a per-candidate failure
// counter with exponential open windows and penalty scoring, adapted from
// the failover orchestrator's per-provider state machine.
package breaker

import (
	"sync"
	"time"
)

// Params configures the breaker's thresholds; zero-value fields fall back
// to spec §4.J defaults.
type Params struct {
	FailureThreshold   int
	BaseCooldown       time.Duration
	MaxCooldown        time.Duration
	PenaltyPerFailure  int64
	OpenCircuitPenalty int64
}

// DefaultParams returns the spec §4.J defaults.
func DefaultParams() Params {
	return Params{
		FailureThreshold:   2,
		BaseCooldown:       5 * time.Minute,
		MaxCooldown:        60 * time.Minute,
		PenaltyPerFailure:  1000,
		OpenCircuitPenalty: 1_000_000,
	}
}

// Entry is the persisted state for one candidate ref, matching spec §3's
// CircuitBreakerEntry.
type Entry struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	OpenUntil           *time.Time `json:"open_until,omitempty"`
}

// Snapshot is the versioned, durable dump of every entry (spec §6, key
// "routing:circuitBreaker:v1").
type Snapshot struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

const snapshotVersion = 1

// Breaker is safe for concurrent use across runs; the core serializes
// persistence writes externally via a sequential queue (see
// internal/supervisor), not here.
type Breaker struct {
	mu      sync.Mutex
	params  Params
	entries map[string]Entry
}

// New creates a Breaker with the given params (zero-value Params uses
// DefaultParams()).
func New(params Params) *Breaker {
	if params.FailureThreshold <= 0 {
		params = DefaultParams()
	}
	return &Breaker{params: params, entries: make(map[string]Entry)}
}

// RecordSuccess resets ref's entry to zero failures.
func (b *Breaker) RecordSuccess(ref string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, ref)
}

// RecordFailure increments ref's consecutive-failure count and, once it
// reaches the threshold, opens the circuit for an exponentially growing
// cooldown: base·2^(count-threshold), capped at max.
func (b *Breaker) RecordFailure(ref string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entries[ref]
	e.ConsecutiveFailures++
	e.LastFailureAt = &now

	if e.ConsecutiveFailures >= b.params.FailureThreshold {
		k := e.ConsecutiveFailures - b.params.FailureThreshold
		cooldown := b.params.BaseCooldown
		for i := 0; i < k; i++ {
			cooldown *= 2
			if cooldown >= b.params.MaxCooldown {
				cooldown = b.params.MaxCooldown
				break
			}
		}
		openUntil := now.Add(cooldown)
		e.OpenUntil = &openUntil
	}

	b.entries[ref] = e
}

// IsOpen reports whether ref's circuit is currently open.
func (b *Breaker) IsOpen(ref string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[ref]
	if !ok || e.OpenUntil == nil {
		return false
	}
	return now.Before(*e.OpenUntil)
}

// GetPenalty returns the router scoring penalty for ref: the configured
// OpenCircuitPenalty while open, otherwise ConsecutiveFailures ×
// PenaltyPerFailure.
func (b *Breaker) GetPenalty(ref string, now time.Time) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[ref]
	if !ok {
		return 0
	}
	if e.OpenUntil != nil && now.Before(*e.OpenUntil) {
		return b.params.OpenCircuitPenalty
	}
	return int64(e.ConsecutiveFailures) * b.params.PenaltyPerFailure
}

// Entry returns a copy of ref's current entry and whether it exists.
func (b *Breaker) Entry(ref string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[ref]
	return e, ok
}

// Snapshot produces a versioned dump of every entry for durable
// persistence via a ConfigStore.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]Entry, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return Snapshot{Version: snapshotVersion, Entries: out}
}

// Restore loads a Snapshot produced by Snapshot(). Snapshots whose Version
// does not match are discarded, per spec §6 ("entries with version ≠ 1 are
// discarded").
func (b *Breaker) Restore(s Snapshot) {
	if s.Version != snapshotVersion {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]Entry, len(s.Entries))
	for k, v := range s.Entries {
		b.entries[k] = v
	}
}
