package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityType is the persisted discriminator. Its value is the payload literal
// the row was written from.
type EntityType string

const (
	EntityTypeActivity    EntityType = "ACTIVITY_EVENT_DATA"
	EntityTypeStateChange EntityType = "STATE_CHANGE_EVENT_DATA"
)

// EntityTypeOf maps a payload literal onto the persisted discriminator.
func EntityTypeOf(literal string) (EntityType, error) {
	t, err := ParseDataType(literal)
	if err != nil {
		return "", err
	}
	if t == ActivityDataType {
		return EntityTypeActivity, nil
	}
	return EntityTypeStateChange, nil
}

// ParseEntityType reads a stored discriminator column.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntityTypeActivity, EntityTypeStateChange:
		return EntityType(s), nil
	}
	return "", NewError(ErrInvalidPayloadType, fmt.Sprintf("unknown entity type: %q", s))
}

// DataType returns the payload literal for the discriminator.
func (t EntityType) DataType() DataType {
	if t == EntityTypeActivity {
		return ActivityDataType
	}
	return StateChangeDataType
}

// Entity is a persisted audit event. The concrete type always agrees with
// Base().Type.
type Entity interface {
	Base() *EntityBase
	sealedEntity()
}

type EntityBase struct {
	EventID                uuid.UUID
	BusinessObjectID       uuid.UUID
	BusinessObjectType     string
	Schema                 string
	Timestamp              time.Time
	Summary                string
	Type                   EntityType
	SystemOfRecord         *string
	RelatedBusinessObjects []BusinessObject
	RequestContext         *RequestContext
	ActivityType           string
	Data                   map[string]any
}

func (e *EntityBase) Base() *EntityBase { return e }
func (e *EntityBase) sealedEntity()     {}

type ActivityEventEntity struct {
	EntityBase
}

type StateChangeEventEntity struct {
	EntityBase
	OldState string
	NewState string
}
