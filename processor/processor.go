// Package processor consumes delivered audit events and records them.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/godamri/helix-audit/audit"
)

// EntityMapper converts a delivered wire event into its persisted shape.
type EntityMapper interface {
	ToEntity(event *audit.Event) (audit.Entity, error)
}

// EntitySaver persists a single entity, absorbing duplicates.
type EntitySaver interface {
	SaveEvent(ctx context.Context, entity audit.Entity) error
}

// ProcessingError reports a delivery that could not be recorded. The broker
// runtime decides whether to retry it.
type ProcessingError struct {
	Key   string
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processor: %s failed for record %q: %v", e.Stage, e.Key, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Permanent reports whether redelivering the same record can never succeed.
// Decode and map failures depend only on the payload.
func (e *ProcessingError) Permanent() bool {
	return e.Stage == "decode" || e.Stage == "map" || audit.IsCallerInput(e.Err)
}

type AuditEventProcessor struct {
	mapper EntityMapper
	saver  EntitySaver
	logger *slog.Logger
}

func NewAuditEventProcessor(m EntityMapper, s EntitySaver, logger *slog.Logger) *AuditEventProcessor {
	return &AuditEventProcessor{
		mapper: m,
		saver:  s,
		logger: logger.With("component", "audit_event_processor"),
	}
}

// Handle matches messaging.HandlerFunc and audit.DeliveryFunc.
func (p *AuditEventProcessor) Handle(ctx context.Context, key, payload []byte) error {
	var event audit.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return &ProcessingError{Key: string(key), Stage: "decode", Err: err}
	}

	p.logger.DebugContext(ctx, "audit event received",
		"event_id", event.Metadata.ID,
		"business_object_type", event.BusinessObject.Type,
		"business_object_id", event.BusinessObject.ID,
		"correlation_id", event.Metadata.CorrelationID,
	)

	entity, err := p.mapper.ToEntity(&event)
	if err != nil {
		return &ProcessingError{Key: string(key), Stage: "map", Err: err}
	}
	if entity == nil {
		return &ProcessingError{Key: string(key), Stage: "map", Err: audit.ErrNoEntity}
	}

	if err := p.saver.SaveEvent(ctx, entity); err != nil {
		return &ProcessingError{Key: string(key), Stage: "save", Err: err}
	}
	return nil
}
