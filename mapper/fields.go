package mapper

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/pkg/contextx"
)

// Field-copy rules shared by the conversions. Each helper moves one group of
// fields and never decides which variant is being built.

func newMetadata(ctx context.Context, id uuid.UUID, ts time.Time, userID string) audit.Metadata {
	return audit.Metadata{
		ID:            id,
		OriginatorID:  audit.OriginatorID,
		Timestamp:     ts,
		Type:          audit.EventClass,
		UserID:        userID,
		CorrelationID: contextx.GetCorrelationID(ctx),
	}
}

func copyLinks(l *audit.Links) *audit.Links {
	if l == nil {
		return nil
	}
	return &audit.Links{
		SystemOfRecord:         copyString(l.SystemOfRecord),
		RelatedBusinessObjects: slices.Clone(l.RelatedBusinessObjects),
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyRequestContext(rc *audit.RequestContext) *audit.RequestContext {
	if rc == nil {
		return nil
	}
	out := *rc
	out.Extras = maps.Clone(rc.Extras)
	return &out
}

func requestDataBase(d *audit.RequestEventData) audit.EventDataBase {
	return audit.EventDataBase{
		Schema:       d.Schema,
		Type:         d.Type,
		ActivityType: d.ActivityType,
		Data:         maps.Clone(d.Data),
	}
}

// entityCommon copies the fields every entity shape carries. The discriminator
// is derived from the payload literal; it is the only failure point.
func entityCommon(event *audit.Event, id uuid.UUID) (audit.EntityBase, error) {
	d := event.EventData.Base()
	t, err := audit.EntityTypeOf(d.Type)
	if err != nil {
		return audit.EntityBase{}, err
	}

	b := audit.EntityBase{
		EventID:            id,
		BusinessObjectID:   event.BusinessObject.ID,
		BusinessObjectType: event.BusinessObject.Type,
		Schema:             d.Schema,
		Timestamp:          event.Metadata.Timestamp,
		Summary:            event.Summary,
		Type:               t,
		RequestContext:     copyRequestContext(event.RequestContext),
	}
	if event.Links != nil {
		b.SystemOfRecord = copyString(event.Links.SystemOfRecord)
		b.RelatedBusinessObjects = slices.Clone(event.Links.RelatedBusinessObjects)
	}
	return b, nil
}

// eventCommon is the inverse of entityCommon, minus the payload.
func eventCommon(ctx context.Context, e *audit.EntityBase) *audit.Event {
	ev := &audit.Event{
		Metadata:       newMetadata(ctx, e.EventID, e.Timestamp, e.RequestContext.UserIDOrEmpty()),
		BusinessObject: audit.BusinessObject{ID: e.BusinessObjectID, Type: e.BusinessObjectType},
		Summary:        e.Summary,
		RequestContext: copyRequestContext(e.RequestContext),
	}
	if e.SystemOfRecord != nil || len(e.RelatedBusinessObjects) > 0 {
		ev.Links = &audit.Links{
			SystemOfRecord:         copyString(e.SystemOfRecord),
			RelatedBusinessObjects: slices.Clone(e.RelatedBusinessObjects),
		}
	}
	return ev
}

func entityDataBase(e *audit.EntityBase) audit.EventDataBase {
	return audit.EventDataBase{
		Schema:       e.Schema,
		Type:         e.Type.DataType().String(),
		ActivityType: e.ActivityType,
		Data:         maps.Clone(e.Data),
	}
}

func responseDataBase(d *audit.EventDataBase) audit.ResponseEventDataBase {
	return audit.ResponseEventDataBase{
		Schema:       d.Schema,
		Type:         d.Type,
		ActivityType: d.ActivityType,
		Data:         maps.Clone(d.Data),
	}
}
