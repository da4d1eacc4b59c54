package ingest

import "threatcorr/pkg/models"

// CorrelationSink delivers emitted correlations to the alerting collaborator.
type CorrelationSink interface {
	WriteCorrelations(correlations []models.Correlation) error
	Close() error
}
