// Package configstore implements the ConfigStore interface spec §9 calls
// for: durable persistence of the Circuit Breaker's snapshot (and, by the
// same interface, any other small keyed blob a deployment wants to
// survive process restarts) under the key "routing:circuitBreaker:v1"
// (spec §6). Two backends are provided: a SQL-backed store
// (modernc.org/sqlite, pure Go, no cgo) and a Redis-backed store
// (redis/go-redis/v9), demonstrating the interface is swappable per
// SPEC_FULL.md's Domain Stack D.2.
package configstore

import "context"

// Store is the minimal keyed-blob persistence contract the Run
// Supervisor uses to load and save Circuit Breaker snapshots between
// process restarts. Load returns (nil, nil) for a key that has never
// been saved.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// BreakerSnapshotKey is the well-known key spec §6 persists the Circuit
// Breaker snapshot under.
const BreakerSnapshotKey = "routing:circuitBreaker:v1"
