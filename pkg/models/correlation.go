package models

import (
	"strings"
	"time"
)

// Severity classifies patterns and the correlations they produce.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Weight returns a numeric weight for ranking.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 7
	case SeverityHigh:
		return 5
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 1
	default:
		return 1
	}
}

// Status is the lifecycle state of a correlation. It is mutated only through
// explicit transition calls.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusClosed       Status = "closed"
)

// Valid reports whether the status is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusClosed:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving to next.
// Closed is terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusAcknowledged || next == StatusClosed
	case StatusAcknowledged:
		return next == StatusClosed
	}
	return false
}

// Correlation asserts that an actor's event history satisfied an attack
// pattern. Created once by the matcher; duplicate detections of the same
// matched event set are suppressed.
type Correlation struct {
	ID              string      `json:"id"`
	TenantID        string      `json:"tenant_id"`
	ActorID         string      `json:"actor_id"`
	PatternID       string      `json:"pattern_id"`
	PatternName     string      `json:"pattern_name"`
	Severity        Severity    `json:"severity"`
	MatchedEventIDs []string    `json:"matched_event_ids"`
	MatchRatio      float64     `json:"match_ratio"`
	DetectedAt      time.Time   `json:"detected_at"`
	Status          Status      `json:"status"`
	ThreatTags      []ThreatTag `json:"threat_tags,omitempty"`
}

// Fingerprint identifies the (actor, pattern, matched events) combination
// used for duplicate suppression.
func (c *Correlation) Fingerprint() string {
	parts := make([]string, 0, len(c.MatchedEventIDs)+2)
	parts = append(parts, c.ActorID, c.PatternID)
	parts = append(parts, c.MatchedEventIDs...)
	return strings.Join(parts, "|")
}
