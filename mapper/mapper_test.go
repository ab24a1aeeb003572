package mapper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/pkg/contextx"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func stateChangeRequest() *audit.EventRequest {
	return &audit.EventRequest{
		Summary:   "submitted",
		Timestamp: fixedTime,
		EventData: &audit.RequestEventData{
			Type:         "StateChangeEventData",
			Schema:       "v1",
			ActivityType: "status_update",
			OldState:     "DRAFT",
			NewState:     "SUBMITTED",
			Data:         map[string]any{"reason": "complete"},
		},
		Links:          &audit.Links{RelatedBusinessObjects: []audit.BusinessObject{{ID: uuid.New(), Type: "transactions"}}},
		RequestContext: &audit.RequestContext{UserID: "user-1", TenantID: "tenant-1"},
	}
}

func activityEvent() *audit.Event {
	sor := "crm"
	return &audit.Event{
		Metadata:       audit.Metadata{ID: uuid.New(), Timestamp: fixedTime, OriginatorID: audit.OriginatorID, Type: audit.EventClass},
		BusinessObject: audit.BusinessObject{ID: uuid.New(), Type: "orders"},
		Summary:        "viewed",
		Links:          &audit.Links{SystemOfRecord: &sor},
		RequestContext: &audit.RequestContext{UserID: "user-2"},
		EventData: &audit.ActivityEventData{EventDataBase: audit.EventDataBase{
			Schema: "v1", Type: "ActivityEventData", ActivityType: "view", Data: map[string]any{"page": "summary"},
		}},
	}
}

func stateChangeEvent() *audit.Event {
	ev := activityEvent()
	ev.EventData = &audit.StateChangeEventData{
		EventDataBase: audit.EventDataBase{Schema: "v2", Type: "StateChangeEventData", ActivityType: "status_update"},
		OldState:      "DRAFT",
		NewState:      "SUBMITTED",
	}
	return ev
}

func TestToEvent(t *testing.T) {
	id := uuid.New()
	m := New(WithIDGenerator(func() uuid.UUID { return id }))
	ctx := contextx.WithCorrelationID(context.Background(), "corr-1")
	boID := uuid.New()

	t.Run("state change request", func(t *testing.T) {
		ev, err := m.ToEvent(ctx, stateChangeRequest(), boID, "orders")
		require.NoError(t, err)

		assert.Equal(t, audit.Metadata{
			ID:            id,
			OriginatorID:  "audit-service",
			Timestamp:     fixedTime,
			Type:          "AuditEvent",
			UserID:        "user-1",
			CorrelationID: "corr-1",
		}, ev.Metadata)
		assert.Equal(t, audit.BusinessObject{ID: boID, Type: "orders"}, ev.BusinessObject)
		assert.Equal(t, "submitted", ev.Summary)
		require.NotNil(t, ev.Links)
		assert.Len(t, ev.Links.RelatedBusinessObjects, 1)
		assert.Equal(t, "tenant-1", ev.RequestContext.TenantID)

		data, ok := ev.EventData.(*audit.StateChangeEventData)
		require.True(t, ok, "expected state change payload, got %T", ev.EventData)
		assert.Equal(t, "DRAFT", data.OldState)
		assert.Equal(t, "SUBMITTED", data.NewState)
		assert.Equal(t, "v1", data.Schema)
		assert.Equal(t, "status_update", data.ActivityType)
		assert.Equal(t, "StateChangeEventData", data.Type)
		assert.Equal(t, "complete", data.Data["reason"])
	})

	t.Run("activity request ignores state fields", func(t *testing.T) {
		req := stateChangeRequest()
		req.EventData.Type = "ActivityEventData"

		ev, err := m.ToEvent(ctx, req, boID, "orders")
		require.NoError(t, err)
		data, ok := ev.EventData.(*audit.ActivityEventData)
		require.True(t, ok)
		assert.Equal(t, "status_update", data.ActivityType)
	})

	t.Run("missing request context leaves user empty", func(t *testing.T) {
		req := stateChangeRequest()
		req.RequestContext = nil

		ev, err := m.ToEvent(context.Background(), req, boID, "orders")
		require.NoError(t, err)
		assert.Empty(t, ev.Metadata.UserID)
		assert.Empty(t, ev.Metadata.CorrelationID)
	})

	t.Run("unknown literal is a caller error", func(t *testing.T) {
		req := stateChangeRequest()
		req.EventData.Type = "invalid"

		_, err := m.ToEvent(ctx, req, boID, "orders")
		require.Error(t, err)
		assert.ErrorIs(t, err, audit.ErrInvalidPayloadType)
		assert.True(t, audit.IsCallerInput(err))
		assert.Equal(t, "Invalid eventData type: invalid", err.Error())
	})

	t.Run("fresh id per event by default", func(t *testing.T) {
		def := New()
		a, err := def.ToEvent(ctx, stateChangeRequest(), boID, "orders")
		require.NoError(t, err)
		b, err := def.ToEvent(ctx, stateChangeRequest(), boID, "orders")
		require.NoError(t, err)
		assert.NotEqual(t, a.Metadata.ID, b.Metadata.ID)
	})
}

func TestToEntity(t *testing.T) {
	m := New()

	t.Run("nil event and nil payload produce no entity", func(t *testing.T) {
		e, err := m.ToEntity(nil)
		assert.NoError(t, err)
		assert.Nil(t, e)

		ev := activityEvent()
		ev.EventData = nil
		e, err = m.ToEntity(ev)
		assert.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("activity", func(t *testing.T) {
		ev := activityEvent()
		e, err := m.ToEntity(ev)
		require.NoError(t, err)

		entity, ok := e.(*audit.ActivityEventEntity)
		require.True(t, ok, "got %T", e)
		assert.Equal(t, ev.Metadata.ID, entity.EventID)
		assert.Equal(t, ev.BusinessObject.ID, entity.BusinessObjectID)
		assert.Equal(t, "orders", entity.BusinessObjectType)
		assert.Equal(t, audit.EntityTypeActivity, entity.Type)
		assert.Equal(t, "v1", entity.Schema)
		assert.Equal(t, fixedTime, entity.Timestamp)
		assert.Equal(t, "viewed", entity.Summary)
		assert.Equal(t, "crm", *entity.SystemOfRecord)
		assert.Equal(t, "view", entity.ActivityType)
		assert.Equal(t, "summary", entity.Data["page"])
		assert.Equal(t, "user-2", entity.RequestContext.UserID)
	})

	t.Run("state change", func(t *testing.T) {
		e, err := m.ToEntity(stateChangeEvent())
		require.NoError(t, err)

		entity, ok := e.(*audit.StateChangeEventEntity)
		require.True(t, ok, "got %T", e)
		assert.Equal(t, audit.EntityTypeStateChange, entity.Type)
		assert.Equal(t, "DRAFT", entity.OldState)
		assert.Equal(t, "SUBMITTED", entity.NewState)
		assert.Equal(t, "v2", entity.Schema)
	})

	t.Run("missing type is inferred and written back", func(t *testing.T) {
		ev := stateChangeEvent()
		ev.EventData.Base().Type = ""

		e, err := m.ToEntity(ev)
		require.NoError(t, err)
		assert.IsType(t, &audit.StateChangeEventEntity{}, e)
		assert.Equal(t, "StateChangeEventData", ev.EventData.Base().Type)

		ev = activityEvent()
		ev.EventData.Base().Type = ""
		e, err = m.ToEntity(ev)
		require.NoError(t, err)
		assert.IsType(t, &audit.ActivityEventEntity{}, e)
		assert.Equal(t, "ActivityEventData", ev.EventData.Base().Type)
	})

	t.Run("base payload without type produces no entity", func(t *testing.T) {
		ev := activityEvent()
		ev.EventData = &audit.EventDataBase{Schema: "v1"}

		e, err := m.ToEntity(ev)
		assert.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("declared activity on state change payload is a mismatch", func(t *testing.T) {
		ev := stateChangeEvent()
		ev.EventData.Base().Type = "ActivityEventData"

		_, err := m.ToEntity(ev)
		require.Error(t, err)
		assert.ErrorIs(t, err, audit.ErrTypeMismatch)
		assert.Equal(t, "Invalid eventData type: *audit.StateChangeEventData", err.Error())
	})

	t.Run("unknown declared type fails", func(t *testing.T) {
		ev := stateChangeEvent()
		ev.EventData.Base().Type = "Bogus"

		_, err := m.ToEntity(ev)
		assert.ErrorIs(t, err, audit.ErrInvalidPayloadType)
	})

	t.Run("explicit state change path on activity payload", func(t *testing.T) {
		_, err := m.ToStateChangeEntity(activityEvent())
		assert.ErrorIs(t, err, audit.ErrTypeMismatch)
		assert.Contains(t, err.Error(), "*audit.ActivityEventData")
	})

	t.Run("missing wire id gets a fresh one", func(t *testing.T) {
		ev := activityEvent()
		ev.Metadata.ID = uuid.Nil
		e, err := m.ToActivityEntity(ev)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, e.EventID)
	})
}

func TestFromEntity(t *testing.T) {
	ctx := contextx.WithCorrelationID(context.Background(), "corr-9")
	base := audit.EntityBase{
		EventID:            uuid.New(),
		BusinessObjectID:   uuid.New(),
		BusinessObjectType: "orders",
		Schema:             "v1",
		Timestamp:          fixedTime,
		Summary:            "submitted",
		Type:               audit.EntityTypeStateChange,
		RequestContext:     &audit.RequestContext{UserID: "user-3"},
		ActivityType:       "status_update",
		Data:               map[string]any{"k": "v"},
	}

	t.Run("state change", func(t *testing.T) {
		ev, err := New().FromEntity(ctx, &audit.StateChangeEventEntity{EntityBase: base, OldState: "A", NewState: "B"})
		require.NoError(t, err)

		assert.Equal(t, base.EventID, ev.Metadata.ID)
		assert.Equal(t, "audit-service", ev.Metadata.OriginatorID)
		assert.Equal(t, "AuditEvent", ev.Metadata.Type)
		assert.Equal(t, "user-3", ev.Metadata.UserID)
		assert.Equal(t, "corr-9", ev.Metadata.CorrelationID)
		assert.Equal(t, fixedTime, ev.Metadata.Timestamp)
		assert.Equal(t, audit.BusinessObject{ID: base.BusinessObjectID, Type: "orders"}, ev.BusinessObject)
		assert.Nil(t, ev.Links)

		data, ok := ev.EventData.(*audit.StateChangeEventData)
		require.True(t, ok)
		assert.Equal(t, "StateChangeEventData", data.Type)
		assert.Equal(t, "A", data.OldState)
		assert.Equal(t, "B", data.NewState)
	})

	t.Run("activity", func(t *testing.T) {
		b := base
		b.Type = audit.EntityTypeActivity
		ev, err := New().FromEntity(ctx, &audit.ActivityEventEntity{EntityBase: b})
		require.NoError(t, err)

		data, ok := ev.EventData.(*audit.ActivityEventData)
		require.True(t, ok)
		assert.Equal(t, "ActivityEventData", data.Type)
		assert.Equal(t, "v", data.Data["k"])
	})

	t.Run("base entity is rejected", func(t *testing.T) {
		b := base
		_, err := New().FromEntity(ctx, &b)
		assert.ErrorIs(t, err, audit.ErrUnmatchedEntity)
		assert.False(t, audit.IsCallerInput(err))
	})

	t.Run("base entity with legacy routing", func(t *testing.T) {
		b := base
		ev, err := New(WithLegacyBaseRouting(true)).FromEntity(ctx, &b)
		require.NoError(t, err)
		assert.IsType(t, &audit.StateChangeEventData{}, ev.EventData)
	})

	t.Run("batch keeps order and fails fast", func(t *testing.T) {
		first := base
		first.EventID = uuid.New()
		second := base
		second.EventID = uuid.New()
		second.Type = audit.EntityTypeActivity

		m := New()
		events, err := m.FromEntities(ctx, []audit.Entity{
			&audit.StateChangeEventEntity{EntityBase: first},
			&audit.ActivityEventEntity{EntityBase: second},
		})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, first.EventID, events[0].Metadata.ID)
		assert.Equal(t, second.EventID, events[1].Metadata.ID)

		broken := base
		_, err = m.FromEntities(ctx, []audit.Entity{&audit.StateChangeEventEntity{EntityBase: first}, &broken})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entity 1")
	})
}

func TestToResponse(t *testing.T) {
	m := New()

	t.Run("entity to response preserves payload", func(t *testing.T) {
		for _, entity := range []audit.Entity{
			&audit.ActivityEventEntity{EntityBase: audit.EntityBase{
				EventID: uuid.New(), Type: audit.EntityTypeActivity, Schema: "v1", ActivityType: "view", Data: map[string]any{"a": 1.0},
			}},
			&audit.StateChangeEventEntity{EntityBase: audit.EntityBase{
				EventID: uuid.New(), Type: audit.EntityTypeStateChange, Schema: "v2", ActivityType: "update", Data: map[string]any{"b": "x"},
			}, OldState: "DRAFT", NewState: "DONE"},
		} {
			ev, err := m.FromEntity(context.Background(), entity)
			require.NoError(t, err)
			resp, err := m.ToResponse(ev)
			require.NoError(t, err)

			b := entity.Base()
			assert.Equal(t, b.EventID, resp.EventID)
			rb := resp.EventData.ResponseBase()
			assert.Equal(t, b.Schema, rb.Schema)
			assert.Equal(t, b.ActivityType, rb.ActivityType)
			assert.Equal(t, b.Data, rb.Data)
			assert.Equal(t, b.Type.DataType().String(), rb.Type)

			if sc, ok := entity.(*audit.StateChangeEventEntity); ok {
				model, ok := resp.EventData.(*audit.StateChangeEventDataModel)
				require.True(t, ok)
				assert.Equal(t, sc.OldState, model.OldState)
				assert.Equal(t, sc.NewState, model.NewState)
			} else {
				assert.IsType(t, &audit.ActivityEventDataModel{}, resp.EventData)
			}
		}
	})

	t.Run("structural fields", func(t *testing.T) {
		ev := activityEvent()
		resp, err := m.ToResponse(ev)
		require.NoError(t, err)
		assert.Equal(t, ev.Summary, resp.Summary)
		assert.Equal(t, ev.Metadata.Timestamp, resp.Timestamp)
		assert.Equal(t, ev.BusinessObject, resp.BusinessObject)
		assert.Equal(t, "crm", *resp.Links.SystemOfRecord)
		assert.Equal(t, "user-2", resp.RequestContext.UserID)
	})

	t.Run("invalid type", func(t *testing.T) {
		ev := activityEvent()
		ev.EventData.Base().Type = "invalid"
		_, err := m.ToResponse(ev)
		assert.ErrorIs(t, err, audit.ErrInvalidPayloadType)
		assert.Equal(t, "Invalid eventData type: invalid", err.Error())
	})

	t.Run("state change shell over activity payload", func(t *testing.T) {
		ev := activityEvent()
		ev.EventData.Base().Type = "StateChangeEventData"
		_, err := m.ToResponse(ev)
		assert.ErrorIs(t, err, audit.ErrTypeMismatch)
	})

	t.Run("batch", func(t *testing.T) {
		out, err := m.ToResponses([]*audit.Event{activityEvent(), stateChangeEvent()})
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})
}

func TestRequestToEntityExample(t *testing.T) {
	m := New()
	boID := uuid.New()

	ev, err := m.ToEvent(context.Background(), stateChangeRequest(), boID, "orders")
	require.NoError(t, err)
	e, err := m.ToEntity(ev)
	require.NoError(t, err)

	entity, ok := e.(*audit.StateChangeEventEntity)
	require.True(t, ok)
	assert.Equal(t, boID, entity.BusinessObjectID)
	assert.Equal(t, audit.EntityTypeStateChange, entity.Type)
	assert.Equal(t, "DRAFT", entity.OldState)
	assert.Equal(t, "SUBMITTED", entity.NewState)
	assert.Equal(t, ev.Metadata.ID, entity.EventID)
}
