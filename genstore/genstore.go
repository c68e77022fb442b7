package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where per-domain write generations live.
// A generation is bumped by every administrative write (Refresh/Invalidate);
// loader results observed under an older generation are not written back.
// Use LocalGenStore (default) for in-process gens, or RedisGenStore so that a
// Refresh on one replica also fences in-flight loads on the others.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
