// Package enrich annotates ingested events with detection-rule tags before
// they are stored. Enrichment is additive; the correlation matcher never
// reads the tags.
package enrich

import "threatcorr/pkg/models"

// Engine applies detection rules to a single event.
type Engine interface {
	Apply(event *models.Event) []models.ThreatTag
}

// NoopEngine returns no tags.
type NoopEngine struct{}

// Apply returns an empty tag list.
func (n *NoopEngine) Apply(event *models.Event) []models.ThreatTag {
	return nil
}
