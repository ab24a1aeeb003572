package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventRequest is the body accepted by the write endpoint.
type EventRequest struct {
	Summary        string            `json:"summary" validate:"required"`
	Timestamp      time.Time         `json:"timestamp" validate:"required"`
	EventData      *RequestEventData `json:"eventData" validate:"required"`
	Links          *Links            `json:"links,omitempty"`
	RequestContext *RequestContext   `json:"requestContext,omitempty"`
}

// RequestEventData is the flat payload of an inbound request; Type selects
// which fields are meaningful.
type RequestEventData struct {
	Type         string         `json:"type" validate:"required"`
	Schema       string         `json:"schema,omitempty"`
	ActivityType string         `json:"activityType,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	OldState     string         `json:"oldState,omitempty"`
	NewState     string         `json:"newState,omitempty"`
}

// EventResponse is the outward shape of an event. It mirrors Event but is
// versioned independently.
type EventResponse struct {
	EventID        uuid.UUID         `json:"eventId"`
	Timestamp      time.Time         `json:"timestamp"`
	Summary        string            `json:"summary"`
	BusinessObject BusinessObject    `json:"businessObject"`
	Links          *Links            `json:"links,omitempty"`
	RequestContext *RequestContext   `json:"requestContext,omitempty"`
	EventData      ResponseEventData `json:"eventData"`
}

// ResponseEventData is implemented by the response payload models.
type ResponseEventData interface {
	ResponseBase() *ResponseEventDataBase
}

type ResponseEventDataBase struct {
	Schema       string         `json:"schema,omitempty"`
	Type         string         `json:"type"`
	ActivityType string         `json:"activityType,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func (d *ResponseEventDataBase) ResponseBase() *ResponseEventDataBase { return d }

type ActivityEventDataModel struct {
	ResponseEventDataBase
}

type StateChangeEventDataModel struct {
	ResponseEventDataBase
	OldState string `json:"oldState,omitempty"`
	NewState string `json:"newState,omitempty"`
}

// EventID is returned by the write endpoint.
type EventID struct {
	EventID uuid.UUID `json:"eventId"`
}

type PagingMetadata struct {
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
	TotalCount int64  `json:"totalCount"`
	NextPage   string `json:"nextPage,omitempty"`
}

type EventsPage struct {
	Events         []*EventResponse `json:"events"`
	PagingMetadata PagingMetadata   `json:"pagingMetadata"`
}
