package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Envelope is the wire form of one upstream event. Producers vary in field
// naming, so parsing is tolerant about the common spellings.
type Envelope struct {
	TenantID   string
	ActorID    string
	Kind       string
	OccurredAt time.Time
	Details    map[string]interface{}
}

// reserved are top-level keys consumed by the envelope itself; everything
// else is folded into Details when no details object is present.
var reserved = map[string]struct{}{
	"tenant_id": {}, "tenant": {}, "guild_id": {},
	"actor_id": {}, "actor": {}, "user_id": {},
	"kind": {}, "event_kind": {}, "type": {},
	"occurred_at": {}, "timestamp": {}, "@timestamp": {},
	"details": {},
}

// ParseEnvelope converts a raw JSON payload into an Envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse event payload: %w", err)
	}

	env := &Envelope{
		TenantID: getString(raw, "tenant_id", "tenant", "guild_id"),
		ActorID:  getString(raw, "actor_id", "actor", "user_id"),
		Kind:     getString(raw, "kind", "event_kind", "type"),
	}
	if env.TenantID == "" {
		return nil, fmt.Errorf("event payload has no tenant id")
	}
	if env.ActorID == "" {
		return nil, fmt.Errorf("event payload has no actor id")
	}
	if env.Kind == "" {
		return nil, fmt.Errorf("event payload has no kind")
	}

	if ts := getString(raw, "occurred_at", "timestamp", "@timestamp"); ts != "" {
		if t, ok := parseTimestamp(ts); ok {
			env.OccurredAt = t
		}
	}

	if v, ok := raw["details"]; ok {
		if m, ok := v.(map[string]interface{}); ok {
			env.Details = m
		}
	}
	if env.Details == nil {
		details := make(map[string]interface{}, len(raw))
		for k, v := range raw {
			if _, skip := reserved[k]; skip {
				continue
			}
			details[k] = v
		}
		if len(details) > 0 {
			env.Details = details
		}
	}
	return env, nil
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func getString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
