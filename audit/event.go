package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// OriginatorID identifies this service as the producer of an event.
	OriginatorID = "audit-service"
	// EventClass is the metadata type stamped on every event.
	EventClass = "AuditEvent"
	// RecordingTopic is the logical channel accepted events are published to.
	RecordingTopic = "AUDIT_EVENTS_RECORDING"
)

// Event is the canonical in-flight representation exchanged between the API
// and the broker.
type Event struct {
	Metadata       Metadata        `json:"metadata"`
	BusinessObject BusinessObject  `json:"businessObject"`
	Summary        string          `json:"summary"`
	Links          *Links          `json:"links,omitempty"`
	RequestContext *RequestContext `json:"requestContext,omitempty"`
	EventData      EventData       `json:"eventData"`
}

type Metadata struct {
	ID            uuid.UUID `json:"id"`
	OriginatorID  string    `json:"originatorId"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	UserID        string    `json:"userId,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

type BusinessObject struct {
	ID   uuid.UUID `json:"id"`
	Type string    `json:"type"`
}

type Links struct {
	SystemOfRecord         *string          `json:"systemOfRecord,omitempty"`
	RelatedBusinessObjects []BusinessObject `json:"relatedBusinessObjects,omitempty"`
}

// RequestContext is the opaque caller identity attached to an event.
type RequestContext struct {
	UserID       string         `json:"userId,omitempty"`
	TenantID     string         `json:"tenantId,omitempty"`
	OriginatorID string         `json:"originatorId,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Extras       map[string]any `json:"extras,omitempty"`
}

// UserIDOrEmpty tolerates a missing request context.
func (rc *RequestContext) UserIDOrEmpty() string {
	if rc == nil {
		return ""
	}
	return rc.UserID
}

// UnmarshalJSON resolves the eventData union from the raw payload.
func (e *Event) UnmarshalJSON(b []byte) error {
	type plain Event
	var raw struct {
		plain
		EventData json.RawMessage `json:"eventData"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	data, err := DecodeEventData(raw.EventData)
	if err != nil {
		return fmt.Errorf("audit: decode eventData: %w", err)
	}

	*e = Event(raw.plain)
	e.EventData = data
	return nil
}
