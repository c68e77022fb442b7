// Package provider defines the storage abstraction used by refcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., compression), they MUST be fully reversed so that the bytes returned by
// Get are identical to the bytes provided to Set.
//
// Keys are reference-data domain names (optionally prefixed) and values are the
// serialized domain lists, so other processes sharing the store can read them as-is.
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

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Exists reports whether key currently holds a live value.
	Exists(ctx context.Context, key string) (bool, error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Adder is implemented by providers that can write a key only if it is absent
// in a single atomic step (Redis SET NX). refcache uses it so that concurrent
// misses across processes converge on the first stored value.
type Adder interface {
	// Add stores value iff key is absent. added=false, err=nil means another
	// writer got there first.
	Add(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (added bool, err error)
}
