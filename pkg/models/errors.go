package models

import "fmt"

// UnknownEventKindError rejects an ingested event whose kind is not in the
// registry. The event is not stored.
type UnknownEventKindError struct {
	Kind string
}

func (e *UnknownEventKindError) Error() string {
	return fmt.Sprintf("unknown event kind %q", e.Kind)
}

// InvalidPatternError rejects a catalog load. No pattern from the failed load
// is installed.
type InvalidPatternError struct {
	PatternID string
	Reason    string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.PatternID, e.Reason)
}

// InvalidTransitionError rejects a correlation status change that does not
// follow the lifecycle state machine. No state is changed.
type InvalidTransitionError struct {
	CorrelationID string
	From          Status
	To            Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for correlation %q: %s -> %s", e.CorrelationID, e.From, e.To)
}

// CorrelationNotFoundError reports a transition against an unknown id.
type CorrelationNotFoundError struct {
	CorrelationID string
}

func (e *CorrelationNotFoundError) Error() string {
	return fmt.Sprintf("correlation %q not found", e.CorrelationID)
}
