// Package correlstore keeps the bounded per-tenant history of triggered
// correlations and enforces the status lifecycle.
package correlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"threatcorr/internal/kvstore"
	"threatcorr/pkg/models"
)

// DefaultCapacity is the per-tenant correlation retention bound.
const DefaultCapacity = 10000

const schemaVersion = 1

type envelope struct {
	Version     int                `json:"v"`
	Correlation models.Correlation `json:"correlation"`
}

// Store appends, lists and transitions correlations. Duplicate suppression
// uses the (actor, pattern, matched events) fingerprint.
type Store struct {
	kv       kvstore.Store
	capacity int

	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

// New creates a correlation store over the given backend.
func New(kv kvstore.Store, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		kv:       kv,
		capacity: capacity,
		seen:     make(map[string]map[string]struct{}, 8),
	}
}

// Contains reports whether a correlation with the same fingerprint was
// already accepted for the tenant.
func (s *Store) Contains(ctx context.Context, tenantID, fingerprint string) (bool, error) {
	prints, err := s.fingerprints(ctx, tenantID)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	_, ok := prints[fingerprint]
	s.mu.Unlock()
	return ok, nil
}

// Append stores an accepted correlation and evicts the oldest ones beyond
// capacity, returning the evicted records.
func (s *Store) Append(ctx context.Context, c models.Correlation) ([]models.Correlation, error) {
	prints, err := s.fingerprints(ctx, c.TenantID)
	if err != nil {
		return nil, err
	}

	part := partition(c.TenantID)
	body, err := json.Marshal(envelope{Version: schemaVersion, Correlation: c})
	if err != nil {
		return nil, fmt.Errorf("marshal correlation %s: %w", c.ID, err)
	}
	if err := s.kv.Put(ctx, part, kvstore.Record{ID: c.ID, TS: c.DetectedAt, Payload: body}); err != nil {
		return nil, fmt.Errorf("append correlation %s: %w", c.ID, err)
	}

	s.mu.Lock()
	prints[c.Fingerprint()] = struct{}{}
	s.mu.Unlock()

	size, err := s.kv.Len(ctx, part)
	if err != nil {
		return nil, fmt.Errorf("size of %s: %w", part, err)
	}
	if size <= s.capacity {
		return nil, nil
	}
	recs, err := s.kv.Evict(ctx, part, size-s.capacity)
	if err != nil {
		return nil, fmt.Errorf("evict from %s: %w", part, err)
	}
	evicted := decode(recs)
	s.mu.Lock()
	for i := range evicted {
		delete(prints, evicted[i].Fingerprint())
	}
	s.mu.Unlock()
	return evicted, nil
}

// List returns the tenant's correlations with detected_at >= since, newest
// first, optionally filtered by severity (empty severity matches all).
func (s *Store) List(ctx context.Context, tenantID string, since time.Time, severity models.Severity) ([]models.Correlation, error) {
	recs, err := s.kv.Scan(ctx, partition(tenantID), since)
	if err != nil {
		return nil, fmt.Errorf("scan correlations for %s: %w", tenantID, err)
	}
	all := decode(recs)
	out := make([]models.Correlation, 0, len(all))
	for _, c := range all {
		if severity != "" && c.Severity != severity {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out, nil
}

// Transition moves a correlation to a new status, enforcing the
// active -> {acknowledged, closed}, acknowledged -> {closed} state machine.
func (s *Store) Transition(ctx context.Context, tenantID, correlationID string, next models.Status) (models.Correlation, error) {
	if !next.Valid() {
		return models.Correlation{}, &models.InvalidTransitionError{CorrelationID: correlationID, To: next}
	}
	part := partition(tenantID)
	recs, err := s.kv.Scan(ctx, part, time.Time{})
	if err != nil {
		return models.Correlation{}, fmt.Errorf("scan correlations for %s: %w", tenantID, err)
	}
	for _, rec := range recs {
		if rec.ID != correlationID {
			continue
		}
		var env envelope
		if err := json.Unmarshal(rec.Payload, &env); err != nil || env.Version != schemaVersion {
			break
		}
		c := env.Correlation
		if !c.Status.CanTransition(next) {
			return models.Correlation{}, &models.InvalidTransitionError{CorrelationID: correlationID, From: c.Status, To: next}
		}
		c.Status = next
		body, err := json.Marshal(envelope{Version: schemaVersion, Correlation: c})
		if err != nil {
			return models.Correlation{}, fmt.Errorf("marshal correlation %s: %w", c.ID, err)
		}
		if err := s.kv.Put(ctx, part, kvstore.Record{ID: c.ID, TS: c.DetectedAt, Payload: body}); err != nil {
			return models.Correlation{}, fmt.Errorf("update correlation %s: %w", c.ID, err)
		}
		return c, nil
	}
	return models.Correlation{}, &models.CorrelationNotFoundError{CorrelationID: correlationID}
}

// fingerprints returns the tenant's fingerprint set, warming it from the
// backend on first use so duplicate suppression survives restarts.
func (s *Store) fingerprints(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	s.mu.Lock()
	prints, ok := s.seen[tenantID]
	s.mu.Unlock()
	if ok {
		return prints, nil
	}

	recs, err := s.kv.Scan(ctx, partition(tenantID), time.Time{})
	if err != nil {
		return nil, fmt.Errorf("warm fingerprints for %s: %w", tenantID, err)
	}
	warm := make(map[string]struct{}, len(recs))
	for _, c := range decode(recs) {
		warm[c.Fingerprint()] = struct{}{}
	}

	s.mu.Lock()
	if existing, ok := s.seen[tenantID]; ok {
		prints = existing
	} else {
		s.seen[tenantID] = warm
		prints = warm
	}
	s.mu.Unlock()
	return prints, nil
}

func decode(recs []kvstore.Record) []models.Correlation {
	if len(recs) == 0 {
		return nil
	}
	out := make([]models.Correlation, 0, len(recs))
	for _, rec := range recs {
		var env envelope
		if err := json.Unmarshal(rec.Payload, &env); err != nil {
			continue
		}
		if env.Version != schemaVersion {
			continue
		}
		out = append(out, env.Correlation)
	}
	return out
}

func partition(tenantID string) string {
	return "corr:" + tenantID
}
