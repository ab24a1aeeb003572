package audit

import "encoding/json"

// DataType is the discriminator carried by every event payload.
type DataType string

const (
	ActivityDataType    DataType = "ActivityEventData"
	StateChangeDataType DataType = "StateChangeEventData"
)

func (t DataType) String() string { return string(t) }

// ParseDataType accepts exactly the two recognised literals.
func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case ActivityDataType, StateChangeDataType:
		return DataType(s), nil
	}
	return "", NewError(ErrInvalidPayloadType, "Invalid eventData type: "+s)
}

// EventData is the closed union of event payloads. Only types embedding
// EventDataBase satisfy it.
type EventData interface {
	Base() *EventDataBase
	sealed()
}

// EventDataBase holds the fields shared by every payload. On its own it is the
// undetermined shape that partially populated input decodes into.
type EventDataBase struct {
	Schema       string         `json:"schema,omitempty"`
	Type         string         `json:"type,omitempty"`
	ActivityType string         `json:"activityType,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func (d *EventDataBase) Base() *EventDataBase { return d }
func (d *EventDataBase) sealed()              {}

type ActivityEventData struct {
	EventDataBase
}

type StateChangeEventData struct {
	EventDataBase
	OldState string `json:"oldState,omitempty"`
	NewState string `json:"newState,omitempty"`
}

// DecodeEventData picks the concrete payload from the declared type. Without a
// declared type the populated fields decide: any state field means a state
// change, anything else is an activity. Unknown declared types are kept as the
// base shape so the mapper can reject them.
func DecodeEventData(raw json.RawMessage) (EventData, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var probe struct {
		Type     string  `json:"type"`
		OldState *string `json:"oldState"`
		NewState *string `json:"newState"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	var target EventData
	switch DataType(probe.Type) {
	case ActivityDataType:
		target = &ActivityEventData{}
	case StateChangeDataType:
		target = &StateChangeEventData{}
	case "":
		if probe.OldState != nil || probe.NewState != nil {
			target = &StateChangeEventData{}
		} else {
			target = &ActivityEventData{}
		}
	default:
		target = &EventDataBase{}
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
}
