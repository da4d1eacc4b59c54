// Package kvstore is the persistence collaborator behind the event and
// correlation stores: a per-partition append log ordered by timestamp. Any
// backend satisfying Store is acceptable; memory and Redis implementations
// are provided.
package kvstore

import (
	"context"
	"time"
)

// Record is one serialized engine record inside a partition log. Payload is
// an opaque versioned document owned by the caller.
type Record struct {
	ID      string    `json:"id"`
	TS      time.Time `json:"ts"`
	Payload []byte    `json:"payload"`
}

// Store is a partitioned append log. Put upserts by record ID and keeps the
// partition ordered by TS; Scan returns a chronological snapshot; Evict drops
// the oldest records and returns them so callers can account for the loss.
type Store interface {
	Put(ctx context.Context, partition string, rec Record) error
	Scan(ctx context.Context, partition string, since time.Time) ([]Record, error)
	Evict(ctx context.Context, partition string, count int) ([]Record, error)
	Len(ctx context.Context, partition string) (int, error)
}
