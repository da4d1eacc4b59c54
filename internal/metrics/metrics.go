// Package metrics exposes the engine's Prometheus instrumentation. Capacity
// eviction is reported here only; it never surfaces as an error to callers.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// EventsIngested counts accepted events per tenant.
	EventsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threatcorr_events_ingested_total",
		Help: "Events accepted into the event store.",
	}, []string{"tenant"})

	// UnknownKinds counts events rejected for an unregistered kind.
	UnknownKinds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threatcorr_unknown_event_kind_total",
		Help: "Events rejected because their kind is not registered.",
	})

	// CorrelationsEmitted counts accepted correlations.
	CorrelationsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threatcorr_correlations_total",
		Help: "Correlations accepted into the correlation store.",
	}, []string{"pattern", "severity"})

	// DuplicatesSuppressed counts candidates dropped by the idempotence check.
	DuplicatesSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threatcorr_duplicate_correlations_suppressed_total",
		Help: "Correlation candidates discarded as duplicates.",
	})

	// EventsEvicted counts events dropped under capacity pressure.
	EventsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threatcorr_events_evicted_total",
		Help: "Events evicted from per-actor histories.",
	})

	// CorrelationsEvicted counts correlations dropped under capacity pressure.
	CorrelationsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threatcorr_correlations_evicted_total",
		Help: "Correlations evicted from per-tenant histories.",
	})

	// IngestDuration observes end-to-end ingest latency including matching.
	IngestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "threatcorr_ingest_duration_seconds",
		Help:    "Latency of Ingest calls.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		EventsIngested,
		UnknownKinds,
		CorrelationsEmitted,
		DuplicatesSuppressed,
		EventsEvicted,
		CorrelationsEvicted,
		IngestDuration,
	)
}
