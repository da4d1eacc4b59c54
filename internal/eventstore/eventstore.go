// Package eventstore keeps the bounded per-(tenant, actor) event history.
// Tenants and actors are created implicitly on first append.
package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"threatcorr/internal/kvstore"
	"threatcorr/pkg/models"
)

// DefaultCapacity is the per-actor event retention bound.
const DefaultCapacity = 1000

const schemaVersion = 1

type envelope struct {
	Version int          `json:"v"`
	Event   models.Event `json:"event"`
}

// Store validates and appends events and serves chronological snapshots.
type Store struct {
	kv       kvstore.Store
	kinds    *models.KindRegistry
	capacity int
}

// New creates an event store over the given backend.
func New(kv kvstore.Store, kinds *models.KindRegistry, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{kv: kv, kinds: kinds, capacity: capacity}
}

// Append validates the event kind, assigns the id and timestamp when absent,
// inserts the event in chronological order and evicts the oldest events once
// the per-actor capacity is exceeded. It returns the stored event and any
// evicted ones. Callers must serialize appends for the same actor.
func (s *Store) Append(ctx context.Context, ev models.Event) (models.Event, []models.Event, error) {
	if !s.kinds.Known(ev.Kind) {
		return models.Event{}, nil, &models.UnknownEventKindError{Kind: ev.Kind}
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	part := partition(ev.TenantID, ev.ActorID)
	body, err := json.Marshal(envelope{Version: schemaVersion, Event: ev})
	if err != nil {
		return models.Event{}, nil, fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	if err := s.kv.Put(ctx, part, kvstore.Record{ID: ev.ID, TS: ev.OccurredAt, Payload: body}); err != nil {
		return models.Event{}, nil, fmt.Errorf("append event %s: %w", ev.ID, err)
	}

	size, err := s.kv.Len(ctx, part)
	if err != nil {
		return models.Event{}, nil, fmt.Errorf("size of %s: %w", part, err)
	}
	var evicted []models.Event
	if size > s.capacity {
		recs, err := s.kv.Evict(ctx, part, size-s.capacity)
		if err != nil {
			return models.Event{}, nil, fmt.Errorf("evict from %s: %w", part, err)
		}
		evicted = decode(recs)
	}
	return ev, evicted, nil
}

// Recent returns the actor's events with occurred_at >= since, oldest first.
// The result is a snapshot; later appends are not observed.
func (s *Store) Recent(ctx context.Context, tenantID, actorID string, since time.Time) ([]models.Event, error) {
	recs, err := s.kv.Scan(ctx, partition(tenantID, actorID), since)
	if err != nil {
		return nil, fmt.Errorf("scan events for %s/%s: %w", tenantID, actorID, err)
	}
	return decode(recs), nil
}

// Capacity returns the per-actor retention bound.
func (s *Store) Capacity() int {
	return s.capacity
}

func decode(recs []kvstore.Record) []models.Event {
	if len(recs) == 0 {
		return nil
	}
	out := make([]models.Event, 0, len(recs))
	for _, rec := range recs {
		var env envelope
		if err := json.Unmarshal(rec.Payload, &env); err != nil {
			continue
		}
		if env.Version != schemaVersion {
			continue
		}
		out = append(out, env.Event)
	}
	return out
}

func partition(tenantID, actorID string) string {
	return "evt:" + tenantID + ":" + actorID
}
