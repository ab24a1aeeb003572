// Package store persists audit event entities and serves paginated queries
// over them.
package store

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/godamri/helix-audit/audit"
)

// Store is the persistence contract of the audit service.
type Store interface {
	// FindPage returns one page of events for a business object together with
	// the total number of matching events.
	FindPage(ctx context.Context, filter Filter, page PageRequest) (Page, error)
	// Save inserts a single entity. A conflicting event id yields
	// audit.ErrDuplicateKey.
	Save(ctx context.Context, entity audit.Entity) error
}

// Filter selects events of one business object. Start is inclusive, End is
// exclusive; both are optional.
type Filter struct {
	BusinessObjectType string
	BusinessObjectID   uuid.UUID
	Start              *time.Time
	End                *time.Time
}

func (f Filter) matches(b *audit.EntityBase) bool {
	if b.BusinessObjectType != f.BusinessObjectType || b.BusinessObjectID != f.BusinessObjectID {
		return false
	}
	if f.Start != nil && b.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && !b.Timestamp.Before(*f.End) {
		return false
	}
	return true
}

type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// PageRequest is an already validated page selection. SortBy must satisfy
// IsSortable.
type PageRequest struct {
	Number    int
	Size      int
	SortBy    string
	Direction Direction
}

func (p PageRequest) Offset() int { return p.Number * p.Size }

type Page struct {
	Entities   []audit.Entity
	PageNumber int
	PageSize   int
	TotalCount int64
}

func (p Page) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int((p.TotalCount + int64(p.PageSize) - 1) / int64(p.PageSize))
}

func (p Page) HasNext() bool {
	return p.PageNumber+1 < p.TotalPages()
}

// sortColumns maps API sort fields onto storage columns.
var sortColumns = map[string]string{
	"eventId":            "event_id",
	"timestamp":          "event_timestamp",
	"summary":            "summary",
	"type":               "type",
	"schema":             "event_schema",
	"activityType":       "activity_type",
	"businessObjectId":   "business_object_id",
	"businessObjectType": "business_object_type",
	"systemOfRecord":     "system_of_record",
}

// IsSortable reports whether field may be used as PageRequest.SortBy.
func IsSortable(field string) bool {
	_, ok := sortColumns[field]
	return ok
}
