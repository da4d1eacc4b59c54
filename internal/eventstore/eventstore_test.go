package eventstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"threatcorr/internal/kvstore"
	"threatcorr/pkg/models"
)

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	s := New(kvstore.NewMemory(), models.NewKindRegistry(), 0)

	stored, evicted, err := s.Append(ctx, models.Event{
		TenantID: "t1",
		ActorID:  "u1",
		Kind:     models.KindFailedLogin,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if stored.ID == "" {
		t.Fatalf("expected an assigned event id")
	}
	if stored.OccurredAt.IsZero() {
		t.Fatalf("expected an assigned timestamp")
	}
	if evicted != nil {
		t.Fatalf("unexpected eviction: %+v", evicted)
	}
}

func TestAppendRejectsUnknownKind(t *testing.T) {
	ctx := context.Background()
	s := New(kvstore.NewMemory(), models.NewKindRegistry(), 0)

	_, _, err := s.Append(ctx, models.Event{TenantID: "t1", ActorID: "u1", Kind: "made_up"})
	if err == nil {
		t.Fatalf("expected unknown kind rejection")
	}
	var unknown *models.UnknownEventKindError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEventKindError, got %T", err)
	}
	if unknown.Kind != "made_up" {
		t.Fatalf("unexpected kind in error: %s", unknown.Kind)
	}

	n, _ := kvLen(ctx, s)
	if n != 0 {
		t.Fatalf("rejected event must not be stored, got %d records", n)
	}
}

func kvLen(ctx context.Context, s *Store) (int, error) {
	return s.kv.Len(ctx, partition("t1", "u1"))
}

func TestAppendEvictsOldestBeyondCapacity(t *testing.T) {
	ctx := context.Background()
	s := New(kvstore.NewMemory(), models.NewKindRegistry(), 3)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	var all []models.Event
	for i := 0; i < 4; i++ {
		ev := models.Event{
			ID:         fmt.Sprintf("e%d", i),
			TenantID:   "t1",
			ActorID:    "u1",
			Kind:       models.KindFailedLogin,
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}
		stored, evicted, err := s.Append(ctx, ev)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		all = append(all, stored)
		if i < 3 && evicted != nil {
			t.Fatalf("unexpected eviction at %d: %+v", i, evicted)
		}
		if i == 3 {
			if len(evicted) != 1 || evicted[0].ID != "e0" {
				t.Fatalf("expected oldest event evicted, got %+v", evicted)
			}
		}
	}

	recent, err := s.Recent(ctx, "t1", "u1", time.Time{})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected capacity 3 retained, got %d", len(recent))
	}
	if recent[0].ID != "e1" || recent[2].ID != "e3" {
		t.Fatalf("unexpected retained window: %s..%s", recent[0].ID, recent[2].ID)
	}
}

func TestRecentReturnsChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	s := New(kvstore.NewMemory(), models.NewKindRegistry(), 0)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	// Backfilled events arrive out of order but read back sorted.
	offsets := []int{3, 0, 2, 1}
	for _, off := range offsets {
		_, _, err := s.Append(ctx, models.Event{
			ID:         fmt.Sprintf("e%d", off),
			TenantID:   "t1",
			ActorID:    "u1",
			Kind:       models.KindFailedLogin,
			OccurredAt: base.Add(time.Duration(off) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append e%d: %v", off, err)
		}
	}

	recent, err := s.Recent(ctx, "t1", "u1", time.Time{})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	for i := range recent {
		if recent[i].ID != fmt.Sprintf("e%d", i) {
			t.Fatalf("recent[%d] = %s, want e%d", i, recent[i].ID, i)
		}
	}
}

func TestRecentHonorsSince(t *testing.T) {
	ctx := context.Background()
	s := New(kvstore.NewMemory(), models.NewKindRegistry(), 0)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, _, err := s.Append(ctx, models.Event{
			ID:         fmt.Sprintf("e%d", i),
			TenantID:   "t1",
			ActorID:    "u1",
			Kind:       models.KindFailedLogin,
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recent, err := s.Recent(ctx, "t1", "u1", base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 events at or after since, got %d", len(recent))
	}
}

func TestActorsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New(kvstore.NewMemory(), models.NewKindRegistry(), 0)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for _, actor := range []string{"u1", "u2"} {
		_, _, err := s.Append(ctx, models.Event{
			TenantID:   "t1",
			ActorID:    actor,
			Kind:       models.KindFailedLogin,
			OccurredAt: base,
		})
		if err != nil {
			t.Fatalf("append for %s: %v", actor, err)
		}
	}

	recent, err := s.Recent(ctx, "t1", "u1", time.Time{})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ActorID != "u1" {
		t.Fatalf("expected only u1 events, got %+v", recent)
	}
}
