package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"threatcorr/internal/catalog"
	"threatcorr/internal/kvstore"
	"threatcorr/pkg/models"
)

func newTestService(t *testing.T, now time.Time) *Service {
	t.Helper()
	kinds := models.NewKindRegistry()
	cat := catalog.New(kinds)
	if err := cat.Load(catalog.Defaults()); err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	svc := New(kvstore.NewMemory(), cat, kinds, nil, Config{})
	svc.now = func() time.Time { return now }
	return svc
}

func TestIngestEmitsCorrelationOnCompletedChain(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC)
	svc := newTestService(t, base.Add(4*time.Minute))

	steps := []struct {
		kind   string
		offset time.Duration
	}{
		{models.KindFailedLogin, 0},
		{models.KindFailedLogin, time.Minute},
		{models.KindFailedLogin, 2 * time.Minute},
	}
	for _, step := range steps {
		id, correlations, err := svc.IngestEvent(ctx, models.Event{
			TenantID:   "t1",
			ActorID:    "u1",
			Kind:       step.kind,
			OccurredAt: base.Add(step.offset),
		})
		if err != nil {
			t.Fatalf("ingest %s: %v", step.kind, err)
		}
		if id == "" {
			t.Fatalf("expected an event id")
		}
		if len(correlations) != 0 {
			t.Fatalf("premature correlation after %s: %+v", step.kind, correlations)
		}
	}

	_, correlations, err := svc.IngestEvent(ctx, models.Event{
		TenantID:   "t1",
		ActorID:    "u1",
		Kind:       models.KindSuccessfulLogin,
		OccurredAt: base.Add(3 * time.Minute),
	})
	if err != nil {
		t.Fatalf("ingest terminal event: %v", err)
	}
	if len(correlations) != 1 {
		t.Fatalf("expected 1 correlation, got %d", len(correlations))
	}
	c := correlations[0]
	if c.PatternID != "credential_stuffing" {
		t.Fatalf("unexpected pattern: %s", c.PatternID)
	}
	if c.Severity != models.SeverityHigh {
		t.Fatalf("unexpected severity: %s", c.Severity)
	}
	if c.MatchRatio != 1.0 {
		t.Fatalf("unexpected ratio: %f", c.MatchRatio)
	}
	if len(c.MatchedEventIDs) != 4 {
		t.Fatalf("expected 4 matched events, got %d", len(c.MatchedEventIDs))
	}
	if c.Status != models.StatusActive {
		t.Fatalf("new correlation must be active, got %s", c.Status)
	}
}

func TestIngestSuppressesDuplicateDetections(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC)
	svc := newTestService(t, base.Add(4*time.Minute))

	offsets := []time.Duration{0, time.Minute, 2 * time.Minute}
	for _, off := range offsets {
		if _, _, err := svc.IngestEvent(ctx, models.Event{
			TenantID: "t1", ActorID: "u1", Kind: models.KindFailedLogin,
			OccurredAt: base.Add(off),
		}); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	_, first, err := svc.IngestEvent(ctx, models.Event{
		TenantID: "t1", ActorID: "u1", Kind: models.KindSuccessfulLogin,
		OccurredAt: base.Add(3 * time.Minute),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 correlation, got %d", len(first))
	}

	// The same chain is still in the window; a second successful login must
	// not re-emit the identical matched set.
	_, second, err := svc.IngestEvent(ctx, models.Event{
		TenantID: "t1", ActorID: "u1", Kind: models.KindSuccessfulLogin,
		OccurredAt: base.Add(3*time.Minute + 30*time.Second),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected duplicate suppression, got %+v", second)
	}
}

func TestIngestRejectsUnknownKind(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC))

	_, _, err := svc.Ingest(ctx, "t1", "u1", "keyboard_smash", nil)
	var unknown *models.UnknownEventKindError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEventKindError, got %v", err)
	}
}

func TestIngestIsolatesActors(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC)
	svc := newTestService(t, base.Add(4*time.Minute))

	// u1 and u2 each contribute half a chain; neither completes.
	for i, actor := range []string{"u1", "u2", "u1", "u2"} {
		if _, _, err := svc.IngestEvent(ctx, models.Event{
			TenantID: "t1", ActorID: actor, Kind: models.KindFailedLogin,
			OccurredAt: base.Add(time.Duration(i) * 30 * time.Second),
		}); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	_, correlations, err := svc.IngestEvent(ctx, models.Event{
		TenantID: "t1", ActorID: "u1", Kind: models.KindSuccessfulLogin,
		OccurredAt: base.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	// u1 has only 2 failed logins: ratio 0.75 of credential_stuffing.
	if len(correlations) != 1 || correlations[0].MatchRatio != 0.75 {
		t.Fatalf("expected partial-chain correlation for u1 alone, got %+v", correlations)
	}
}

func TestMatchingIsDeterministicAcrossInstances(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC)

	run := func() []models.Correlation {
		svc := newTestService(t, base.Add(4*time.Minute))
		var out []models.Correlation
		kinds := []string{
			models.KindFailedLogin, models.KindFailedLogin, models.KindFailedLogin,
			models.KindSuccessfulLogin, models.KindBulkDownload, models.KindExternalShare,
		}
		for i, kind := range kinds {
			_, correlations, err := svc.IngestEvent(ctx, models.Event{
				TenantID: "t1", ActorID: "u1", Kind: kind,
				OccurredAt: base.Add(time.Duration(i) * 30 * time.Second),
			})
			if err != nil {
				t.Fatalf("ingest %s: %v", kind, err)
			}
			out = append(out, correlations...)
		}
		return out
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("instances disagree: %d vs %d correlations", len(first), len(second))
	}
	for i := range first {
		if first[i].PatternID != second[i].PatternID || first[i].MatchRatio != second[i].MatchRatio {
			t.Fatalf("instances disagree at %d: %s/%f vs %s/%f",
				i, first[i].PatternID, first[i].MatchRatio, second[i].PatternID, second[i].MatchRatio)
		}
	}
	if len(first) != 2 {
		t.Fatalf("expected credential_stuffing then data_exfiltration, got %d", len(first))
	}
	if first[0].PatternID != "credential_stuffing" || first[1].PatternID != "data_exfiltration" {
		t.Fatalf("unexpected patterns: %s, %s", first[0].PatternID, first[1].PatternID)
	}
}

func TestQueryAggregatesBySeverityAndStatus(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC)
	svc := newTestService(t, base.Add(4*time.Minute))

	kinds := []string{
		models.KindFailedLogin, models.KindFailedLogin, models.KindFailedLogin,
		models.KindSuccessfulLogin, models.KindBulkDownload, models.KindExternalShare,
	}
	var emitted []models.Correlation
	for i, kind := range kinds {
		_, correlations, err := svc.IngestEvent(ctx, models.Event{
			TenantID: "t1", ActorID: "u1", Kind: kind,
			OccurredAt: base.Add(time.Duration(i) * 30 * time.Second),
		})
		if err != nil {
			t.Fatalf("ingest %s: %v", kind, err)
		}
		emitted = append(emitted, correlations...)
	}
	if len(emitted) != 2 {
		t.Fatalf("expected 2 correlations, got %d", len(emitted))
	}

	if _, err := svc.Transition(ctx, "t1", emitted[0].ID, models.StatusAcknowledged); err != nil {
		t.Fatalf("transition: %v", err)
	}

	res, err := svc.Query(ctx, "t1", time.Hour, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("expected total 2, got %d", res.Total)
	}
	if res.BySeverity[models.SeverityHigh] != 1 || res.BySeverity[models.SeverityCritical] != 1 {
		t.Fatalf("unexpected severity totals: %+v", res.BySeverity)
	}
	if res.ByStatus[models.StatusAcknowledged] != 1 || res.ByStatus[models.StatusActive] != 1 {
		t.Fatalf("unexpected status totals: %+v", res.ByStatus)
	}

	critical, err := svc.Query(ctx, "t1", time.Hour, models.SeverityCritical)
	if err != nil {
		t.Fatalf("query critical: %v", err)
	}
	if critical.Total != 1 || critical.Correlations[0].PatternID != "data_exfiltration" {
		t.Fatalf("unexpected filtered result: %+v", critical.Correlations)
	}

	empty, err := svc.Query(ctx, "t2", time.Hour, "")
	if err != nil {
		t.Fatalf("query other tenant: %v", err)
	}
	if empty.Total != 0 {
		t.Fatalf("expected no correlations for other tenant, got %d", empty.Total)
	}
}

func TestLoadPatternsRejectionKeepsCatalog(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC)
	svc := newTestService(t, base.Add(4*time.Minute))

	bad := catalog.Pattern{ID: "broken", Sequence: []string{"nope"}, Window: time.Minute, MatchThreshold: 1.0, Severity: models.SeverityLow}
	if err := svc.LoadPatterns([]catalog.Pattern{bad}); err == nil {
		t.Fatalf("expected catalog rejection")
	}

	// Matching still runs against the previous catalog.
	offsets := []time.Duration{0, 30 * time.Second, time.Minute}
	for _, off := range offsets {
		if _, _, err := svc.IngestEvent(ctx, models.Event{
			TenantID: "t1", ActorID: "u1", Kind: models.KindFailedLogin,
			OccurredAt: base.Add(off),
		}); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	_, correlations, err := svc.IngestEvent(ctx, models.Event{
		TenantID: "t1", ActorID: "u1", Kind: models.KindSuccessfulLogin,
		OccurredAt: base.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(correlations) != 1 {
		t.Fatalf("expected the default catalog to keep matching, got %d", len(correlations))
	}
}
