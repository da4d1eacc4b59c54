package models

import (
	"fmt"
	"time"
)

// Event is an immutable observation of one security-relevant action by one
// actor inside one tenant. Once appended to the event store it is never
// mutated.
type Event struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"tenant_id"`
	ActorID    string                 `json:"actor_id"`
	Kind       string                 `json:"kind"`
	OccurredAt time.Time              `json:"occurred_at"`
	Details    map[string]interface{} `json:"details,omitempty"`
	ThreatTags []ThreatTag            `json:"threat_tags,omitempty"`
}

// Detail returns a details value rendered as a string.
func (e *Event) Detail(name string) string {
	if e == nil || e.Details == nil {
		return ""
	}
	if v, ok := e.Details[name]; ok {
		switch val := v.(type) {
		case string:
			return val
		case fmt.Stringer:
			return val.String()
		case int:
			return fmt.Sprintf("%d", val)
		case int64:
			return fmt.Sprintf("%d", val)
		case float64:
			if val == float64(int64(val)) {
				return fmt.Sprintf("%d", int64(val))
			}
			return fmt.Sprintf("%f", val)
		case bool:
			if val {
				return "true"
			}
			return "false"
		default:
			return fmt.Sprintf("%v", val)
		}
	}
	return ""
}
