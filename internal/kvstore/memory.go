package kvstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is the in-process Store backend. Partitions are created implicitly
// on first Put.
type Memory struct {
	mu    sync.RWMutex
	parts map[string][]Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{parts: make(map[string][]Record, 64)}
}

// Put upserts a record, keeping the partition sorted by (TS, ID).
func (m *Memory) Put(ctx context.Context, partition string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.parts[partition]
	for i := range recs {
		if recs[i].ID == rec.ID {
			recs[i] = rec
			sortRecords(recs)
			return nil
		}
	}

	idx := sort.Search(len(recs), func(i int) bool {
		return recordAfter(recs[i], rec)
	})
	recs = append(recs, Record{})
	copy(recs[idx+1:], recs[idx:])
	recs[idx] = rec
	m.parts[partition] = recs
	return nil
}

// Scan returns a copy of the records with TS >= since, oldest first. A zero
// since returns the whole partition.
func (m *Memory) Scan(ctx context.Context, partition string, since time.Time) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.parts[partition]
	idx := 0
	if !since.IsZero() {
		idx = sort.Search(len(recs), func(i int) bool {
			return !recs[i].TS.Before(since)
		})
	}
	out := make([]Record, len(recs)-idx)
	copy(out, recs[idx:])
	return out, nil
}

// Evict removes the count oldest records and returns them.
func (m *Memory) Evict(ctx context.Context, partition string, count int) ([]Record, error) {
	if count <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.parts[partition]
	if count > len(recs) {
		count = len(recs)
	}
	evicted := make([]Record, count)
	copy(evicted, recs[:count])
	m.parts[partition] = recs[count:]
	return evicted, nil
}

// Len returns the number of records in the partition.
func (m *Memory) Len(ctx context.Context, partition string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.parts[partition]), nil
}

func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recordLess(recs[i], recs[j])
	})
}

func recordAfter(a, b Record) bool {
	return recordLess(b, a)
}

func recordLess(a, b Record) bool {
	if a.TS.Equal(b.TS) {
		return a.ID < b.ID
	}
	return a.TS.Before(b.TS)
}
