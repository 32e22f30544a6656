// Package provider defines the byte store a swcache store is built on.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// The keyspaces "entry:<store>:" and "index:<store>" are owned by swcache.
// External code MUST NOT write values under these prefixes. Foreign writes are
// treated as corruption and deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL; ttl <= 0 means no expiry.
	// May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Item is one write of a batch.
type Item struct {
	Key   string
	Value []byte
}

// Batcher is implemented by providers that can write several keys
// atomically: after SetBatch returns, either every item is stored or none is.
// Items never expire.
type Batcher interface {
	SetBatch(ctx context.Context, items []Item) error
}
