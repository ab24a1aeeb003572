// Package mapper converts audit events between their request, wire, persisted
// and response shapes. Every conversion is a pure function of its inputs and
// the ambient correlation id.
package mapper

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/godamri/helix-audit/audit"
)

type Option func(*Mapper)

// WithLegacyBaseRouting maps base-typed entities through the state-change
// conversion instead of rejecting them.
func WithLegacyBaseRouting(enabled bool) Option {
	return func(m *Mapper) { m.legacyBaseRouting = enabled }
}

// WithIDGenerator overrides how fresh event ids are minted.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(m *Mapper) { m.newID = fn }
}

type Mapper struct {
	legacyBaseRouting bool
	newID             func() uuid.UUID
}

func New(opts ...Option) *Mapper {
	m := &Mapper{newID: uuid.New}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ToEvent builds a new wire event from an inbound request. The payload variant
// is chosen strictly by the declared eventData type.
func (m *Mapper) ToEvent(ctx context.Context, req *audit.EventRequest, businessObjectID uuid.UUID, businessObjectType string) (*audit.Event, error) {
	if req == nil || req.EventData == nil {
		return nil, audit.NewError(audit.ErrInvalidPayloadType, "Invalid eventData type: <nil>")
	}

	var data audit.EventData
	switch audit.DataType(req.EventData.Type) {
	case audit.ActivityDataType:
		data = &audit.ActivityEventData{EventDataBase: requestDataBase(req.EventData)}
	case audit.StateChangeDataType:
		data = &audit.StateChangeEventData{
			EventDataBase: requestDataBase(req.EventData),
			OldState:      req.EventData.OldState,
			NewState:      req.EventData.NewState,
		}
	default:
		return nil, audit.NewError(audit.ErrInvalidPayloadType, "Invalid eventData type: "+req.EventData.Type)
	}

	return &audit.Event{
		Metadata:       newMetadata(ctx, m.newID(), req.Timestamp, req.RequestContext.UserIDOrEmpty()),
		BusinessObject: audit.BusinessObject{ID: businessObjectID, Type: businessObjectType},
		Summary:        req.Summary,
		Links:          copyLinks(req.Links),
		RequestContext: copyRequestContext(req.RequestContext),
		EventData:      data,
	}, nil
}

// ToEntity converts a wire event into its persisted shape. A missing event or
// payload yields (nil, nil). When the payload carries no type, the concrete
// payload decides and the type is written back onto it.
func (m *Mapper) ToEntity(event *audit.Event) (audit.Entity, error) {
	if event == nil || event.EventData == nil {
		return nil, nil
	}

	base := event.EventData.Base()
	if base.Type == "" {
		t, ok := inferDataType(event.EventData)
		if !ok {
			return nil, nil
		}
		base.Type = t.String()
	}

	if base.Type == audit.ActivityDataType.String() {
		e, err := m.ToActivityEntity(event)
		if err != nil {
			return nil, err
		}
		return e, nil
	}

	e, err := m.ToStateChangeEntity(event)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// inferDataType is the only place a concrete payload stands in for a missing
// discriminator.
func inferDataType(d audit.EventData) (audit.DataType, bool) {
	switch d.(type) {
	case *audit.ActivityEventData:
		return audit.ActivityDataType, true
	case *audit.StateChangeEventData:
		return audit.StateChangeDataType, true
	}
	return "", false
}

func (m *Mapper) ToActivityEntity(event *audit.Event) (*audit.ActivityEventEntity, error) {
	if event == nil || event.EventData == nil {
		return nil, audit.NewError(audit.ErrInvalidPayloadType, "Invalid eventData type: <nil>")
	}

	common, err := entityCommon(event, m.eventID(event))
	if err != nil {
		return nil, err
	}

	data, ok := event.EventData.(*audit.ActivityEventData)
	if !ok {
		return nil, typeMismatch(event.EventData)
	}

	common.ActivityType = data.ActivityType
	common.Data = maps.Clone(data.Data)
	return &audit.ActivityEventEntity{EntityBase: common}, nil
}

func (m *Mapper) ToStateChangeEntity(event *audit.Event) (*audit.StateChangeEventEntity, error) {
	if event == nil || event.EventData == nil {
		return nil, audit.NewError(audit.ErrInvalidPayloadType, "Invalid eventData type: <nil>")
	}

	common, err := entityCommon(event, m.eventID(event))
	if err != nil {
		return nil, err
	}

	data, ok := event.EventData.(*audit.StateChangeEventData)
	if !ok {
		return nil, typeMismatch(event.EventData)
	}

	common.ActivityType = data.ActivityType
	common.Data = maps.Clone(data.Data)
	return &audit.StateChangeEventEntity{
		EntityBase: common,
		OldState:   data.OldState,
		NewState:   data.NewState,
	}, nil
}

// eventID keeps the wire id so a redelivered event collides on insert.
func (m *Mapper) eventID(event *audit.Event) uuid.UUID {
	if event.Metadata.ID != uuid.Nil {
		return event.Metadata.ID
	}
	return m.newID()
}

func typeMismatch(d audit.EventData) error {
	return audit.NewError(audit.ErrTypeMismatch, fmt.Sprintf("Invalid eventData type: %T", d))
}

// FromEntity rebuilds a wire event from a stored entity, dispatching on the
// concrete entity shape only.
func (m *Mapper) FromEntity(ctx context.Context, entity audit.Entity) (*audit.Event, error) {
	switch e := entity.(type) {
	case nil:
		return nil, nil
	case *audit.ActivityEventEntity:
		if e == nil {
			return nil, nil
		}
		return fromActivityEntity(ctx, e), nil
	case *audit.StateChangeEventEntity:
		if e == nil {
			return nil, nil
		}
		return fromStateChangeEntity(ctx, e), nil
	case *audit.EntityBase:
		if e != nil && m.legacyBaseRouting {
			return fromStateChangeEntity(ctx, &audit.StateChangeEventEntity{EntityBase: *e}), nil
		}
	}
	return nil, audit.NewError(audit.ErrUnmatchedEntity, fmt.Sprintf("no event mapping for entity %T", entity))
}

func fromActivityEntity(ctx context.Context, e *audit.ActivityEventEntity) *audit.Event {
	ev := eventCommon(ctx, &e.EntityBase)
	ev.EventData = &audit.ActivityEventData{EventDataBase: entityDataBase(&e.EntityBase)}
	return ev
}

func fromStateChangeEntity(ctx context.Context, e *audit.StateChangeEventEntity) *audit.Event {
	ev := eventCommon(ctx, &e.EntityBase)
	ev.EventData = &audit.StateChangeEventData{
		EventDataBase: entityDataBase(&e.EntityBase),
		OldState:      e.OldState,
		NewState:      e.NewState,
	}
	return ev
}

// FromEntities preserves order and stops at the first failing entity.
func (m *Mapper) FromEntities(ctx context.Context, entities []audit.Entity) ([]*audit.Event, error) {
	out := make([]*audit.Event, 0, len(entities))
	for i, entity := range entities {
		ev, err := m.FromEntity(ctx, entity)
		if err != nil {
			return nil, fmt.Errorf("mapper: entity %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// ToResponse converts a wire event into the outward response model. The
// structural shell is built first; its declared type selects the payload model.
func (m *Mapper) ToResponse(event *audit.Event) (*audit.EventResponse, error) {
	if event == nil {
		return nil, nil
	}

	resp, declared := responseShell(event)

	switch audit.DataType(declared) {
	case audit.ActivityDataType:
		resp.EventData = &audit.ActivityEventDataModel{
			ResponseEventDataBase: responseDataBase(event.EventData.Base()),
		}
	case audit.StateChangeDataType:
		src, ok := event.EventData.(*audit.StateChangeEventData)
		if !ok {
			return nil, typeMismatch(event.EventData)
		}
		resp.EventData = &audit.StateChangeEventDataModel{
			ResponseEventDataBase: responseDataBase(&src.EventDataBase),
			OldState:              src.OldState,
			NewState:              src.NewState,
		}
	default:
		return nil, audit.NewError(audit.ErrInvalidPayloadType, "Invalid eventData type: "+declared)
	}

	resp.EventID = event.Metadata.ID
	return resp, nil
}

// responseShell copies the structure of an event and reports the payload type
// the shell was given.
func responseShell(event *audit.Event) (*audit.EventResponse, string) {
	resp := &audit.EventResponse{
		Timestamp:      event.Metadata.Timestamp,
		Summary:        event.Summary,
		BusinessObject: event.BusinessObject,
		Links:          copyLinks(event.Links),
		RequestContext: copyRequestContext(event.RequestContext),
	}
	if event.EventData == nil {
		return resp, ""
	}
	return resp, event.EventData.Base().Type
}

func (m *Mapper) ToResponses(events []*audit.Event) ([]*audit.EventResponse, error) {
	out := make([]*audit.EventResponse, 0, len(events))
	for i, ev := range events {
		resp, err := m.ToResponse(ev)
		if err != nil {
			return nil, fmt.Errorf("mapper: event %d: %w", i, err)
		}
		out = append(out, resp)
	}
	return out, nil
}
