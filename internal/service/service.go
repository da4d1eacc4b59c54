// Package service is the engine façade: ingestion, matching, storage and the
// query interface. It is the only component external callers touch.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"threatcorr/internal/catalog"
	"threatcorr/internal/correlstore"
	"threatcorr/internal/enrich"
	"threatcorr/internal/eventstore"
	"threatcorr/internal/kvstore"
	"threatcorr/internal/logger"
	"threatcorr/internal/matcher"
	"threatcorr/internal/metrics"
	"threatcorr/pkg/models"
)

// Config bounds the engine's retained history.
type Config struct {
	EventCapacity       int
	CorrelationCapacity int
}

// Service orchestrates ingestion -> enrichment -> matching -> storage.
// Ingestion for the same (tenant, actor) is serialized; independent actors
// never block each other.
type Service struct {
	events       *eventstore.Store
	correlations *correlstore.Store
	catalog      *catalog.Catalog
	enricher     enrich.Engine
	now          func() time.Time

	mu         sync.Mutex
	actorLocks map[string]*sync.Mutex
}

// QueryResult is the reporting view over a tenant's correlations.
type QueryResult struct {
	Total        int                     `json:"total"`
	BySeverity   map[models.Severity]int `json:"by_severity"`
	ByStatus     map[models.Status]int   `json:"by_status"`
	Correlations []models.Correlation    `json:"correlations"`
}

// New wires the engine over the given storage backend and catalog. A nil
// enricher disables enrichment.
func New(kv kvstore.Store, cat *catalog.Catalog, kinds *models.KindRegistry, enricher enrich.Engine, cfg Config) *Service {
	if enricher == nil {
		enricher = &enrich.NoopEngine{}
	}
	return &Service{
		events:       eventstore.New(kv, kinds, cfg.EventCapacity),
		correlations: correlstore.New(kv, cfg.CorrelationCapacity),
		catalog:      cat,
		enricher:     enricher,
		now:          time.Now,
		actorLocks:   make(map[string]*sync.Mutex, 64),
	}
}

// Ingest records one event and returns its id plus any correlations it
// triggered, so an alerting collaborator can react immediately.
func (s *Service) Ingest(ctx context.Context, tenantID, actorID, kind string, details map[string]interface{}) (string, []models.Correlation, error) {
	return s.IngestEvent(ctx, models.Event{
		TenantID: tenantID,
		ActorID:  actorID,
		Kind:     kind,
		Details:  details,
	})
}

// IngestEvent is Ingest with caller-supplied fields: a non-zero OccurredAt
// backfills the event at that timestamp. Backfilled events are stored in
// timestamp order but never re-open already-emitted correlations.
func (s *Service) IngestEvent(ctx context.Context, ev models.Event) (string, []models.Correlation, error) {
	start := time.Now()
	defer func() {
		metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}()

	lock := s.actorLock(ev.TenantID, ev.ActorID)
	lock.Lock()
	defer lock.Unlock()

	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	ev.ThreatTags = s.enricher.Apply(&ev)

	stored, evicted, err := s.events.Append(ctx, ev)
	if err != nil {
		if _, ok := err.(*models.UnknownEventKindError); ok {
			metrics.UnknownKinds.Inc()
		}
		return "", nil, err
	}
	metrics.EventsIngested.WithLabelValues(stored.TenantID).Inc()
	if n := len(evicted); n > 0 {
		metrics.EventsEvicted.Add(float64(n))
		logger.Debugf("Evicted %d events for %s/%s under capacity pressure", n, stored.TenantID, stored.ActorID)
	}

	emitted, err := s.match(ctx, stored)
	if err != nil {
		return stored.ID, nil, err
	}
	return stored.ID, emitted, nil
}

// match evaluates the catalog against the actor's recent history and stores
// the accepted candidates. Caller holds the actor lock, which makes the
// duplicate check race-free.
func (s *Service) match(ctx context.Context, ev models.Event) ([]models.Correlation, error) {
	patterns := s.catalog.All()
	if len(patterns) == 0 {
		return nil, nil
	}

	since := s.now().Add(-s.catalog.MaxWindow())
	if ev.OccurredAt.Before(since) {
		since = ev.OccurredAt
	}
	history, err := s.events.Recent(ctx, ev.TenantID, ev.ActorID, since)
	if err != nil {
		return nil, err
	}

	var emitted []models.Correlation
	for _, cand := range matcher.Evaluate(history, patterns) {
		c := correlationFrom(ev.TenantID, ev.ActorID, cand, s.now().UTC())
		dup, err := s.correlations.Contains(ctx, c.TenantID, c.Fingerprint())
		if err != nil {
			return emitted, err
		}
		if dup {
			metrics.DuplicatesSuppressed.Inc()
			continue
		}
		evicted, err := s.correlations.Append(ctx, c)
		if err != nil {
			return emitted, err
		}
		if n := len(evicted); n > 0 {
			metrics.CorrelationsEvicted.Add(float64(n))
		}
		metrics.CorrelationsEmitted.WithLabelValues(c.PatternID, string(c.Severity)).Inc()
		logger.Infof("Correlation %s: pattern=%s actor=%s tenant=%s ratio=%.2f events=%d",
			c.ID, c.PatternID, c.ActorID, c.TenantID, c.MatchRatio, len(c.MatchedEventIDs))
		emitted = append(emitted, c)
	}
	return emitted, nil
}

// Query returns the tenant's correlations detected within the window, newest
// first, with totals by severity and status. An empty severity matches all.
func (s *Service) Query(ctx context.Context, tenantID string, window time.Duration, severity models.Severity) (QueryResult, error) {
	since := time.Time{}
	if window > 0 {
		since = s.now().Add(-window)
	}
	list, err := s.correlations.List(ctx, tenantID, since, severity)
	if err != nil {
		return QueryResult{}, err
	}

	res := QueryResult{
		Total:        len(list),
		BySeverity:   make(map[models.Severity]int, 4),
		ByStatus:     make(map[models.Status]int, 3),
		Correlations: list,
	}
	for i := range list {
		res.BySeverity[list[i].Severity]++
		res.ByStatus[list[i].Status]++
	}
	return res, nil
}

// Transition changes a correlation's lifecycle status on behalf of an
// operator.
func (s *Service) Transition(ctx context.Context, tenantID, correlationID string, next models.Status) (models.Correlation, error) {
	return s.correlations.Transition(ctx, tenantID, correlationID, next)
}

// LoadPatterns atomically replaces the pattern catalog, or rejects the whole
// load leaving the previous catalog intact.
func (s *Service) LoadPatterns(patterns []catalog.Pattern) error {
	return s.catalog.Load(patterns)
}

func (s *Service) actorLock(tenantID, actorID string) *sync.Mutex {
	key := tenantID + "\x00" + actorID
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.actorLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.actorLocks[key] = lock
	}
	return lock
}

func correlationFrom(tenantID, actorID string, cand matcher.Candidate, detectedAt time.Time) models.Correlation {
	ids := make([]string, 0, len(cand.Matched))
	var tags []models.ThreatTag
	for i := range cand.Matched {
		ids = append(ids, cand.Matched[i].ID)
		tags = append(tags, cand.Matched[i].ThreatTags...)
	}
	return models.Correlation{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		ActorID:         actorID,
		PatternID:       cand.Pattern.ID,
		PatternName:     cand.Pattern.Name,
		Severity:        cand.Pattern.Severity,
		MatchedEventIDs: ids,
		MatchRatio:      cand.Ratio,
		DetectedAt:      detectedAt,
		Status:          models.StatusActive,
		ThreatTags:      tags,
	}
}
