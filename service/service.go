// Package service holds the audit event use cases: paginated retrieval,
// publication of accepted events and persistence of delivered ones.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	DefaultSortBy   = "timestamp"
	DefaultOrder    = "ASC"
)

// TopicResolver maps a logical channel onto a physical topic.
type TopicResolver interface {
	Resolve(logical string) (string, bool)
}

// Query is a raw page request for one business object. Zero values for
// SortOrder and SortBy select the defaults.
type Query struct {
	BusinessObjectType string
	BusinessObjectID   uuid.UUID
	Start              *time.Time
	End                *time.Time
	PageNumber         int
	PageSize           int
	SortOrder          string
	SortBy             string
}

type EventService struct {
	store     store.Store
	publisher audit.Publisher
	topics    TopicResolver
	logger    *slog.Logger
}

func NewEventService(s store.Store, p audit.Publisher, topics TopicResolver, logger *slog.Logger) (*EventService, error) {
	if s == nil {
		return nil, errors.New("service: store is required")
	}
	if p == nil {
		return nil, errors.New("service: publisher is required")
	}
	if topics == nil {
		return nil, errors.New("service: topic resolver is required")
	}
	return &EventService{
		store:     s,
		publisher: p,
		topics:    topics,
		logger:    logger.With("component", "event_service"),
	}, nil
}

// FindEvents validates q and returns the matching page. Nothing reaches the
// store unless the whole query is valid.
func (s *EventService) FindEvents(ctx context.Context, q Query) (store.Page, error) {
	filter, page, err := q.normalize()
	if err != nil {
		return store.Page{}, err
	}

	result, err := s.store.FindPage(ctx, filter, page)
	if err != nil {
		return store.Page{}, fmt.Errorf("service: find events: %w", err)
	}
	return result, nil
}

func (q Query) normalize() (store.Filter, store.PageRequest, error) {
	if q.PageNumber < 0 {
		return store.Filter{}, store.PageRequest{}, audit.NewError(audit.ErrInvalidPage,
			"The pageNumber must be greater than or equal to 0.")
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return store.Filter{}, store.PageRequest{}, audit.NewError(audit.ErrInvalidPage,
			fmt.Sprintf("The pageSize must be between 1 and %d.", MaxPageSize))
	}
	// The row offset is PageNumber*PageSize and must fit in an int.
	if q.PageNumber > math.MaxInt/q.PageSize {
		return store.Filter{}, store.PageRequest{}, audit.NewError(audit.ErrInvalidPage,
			fmt.Sprintf("The pageNumber must not exceed %d for pageSize %d.", math.MaxInt/q.PageSize, q.PageSize))
	}

	order := q.SortOrder
	if order == "" {
		order = DefaultOrder
	}
	var dir store.Direction
	switch strings.ToUpper(order) {
	case "ASC":
		dir = store.Asc
	case "DESC":
		dir = store.Desc
	default:
		return store.Filter{}, store.PageRequest{}, audit.NewError(audit.ErrInvalidSort,
			"Invalid sortOrder: "+q.SortOrder)
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = DefaultSortBy
	}
	if !store.IsSortable(sortBy) {
		return store.Filter{}, store.PageRequest{}, audit.NewError(audit.ErrInvalidSort,
			"Invalid sortBy: "+sortBy)
	}

	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		return store.Filter{}, store.PageRequest{}, audit.NewError(audit.ErrInvalidRange,
			"The startTime cannot be greater than the endTime.")
	}

	filter := store.Filter{
		BusinessObjectType: q.BusinessObjectType,
		BusinessObjectID:   q.BusinessObjectID,
		Start:              q.Start,
		End:                q.End,
	}
	page := store.PageRequest{
		Number:    q.PageNumber,
		Size:      q.PageSize,
		SortBy:    sortBy,
		Direction: dir,
	}
	return filter, page, nil
}

// PublishEvent hands an accepted event to the recording channel. The caller
// gets success as soon as the publisher accepts it.
func (s *EventService) PublishEvent(ctx context.Context, event *audit.Event) error {
	topic, ok := s.topics.Resolve(audit.RecordingTopic)
	if !ok {
		return audit.NewError(audit.ErrTopicNotFound,
			"Notification requests topic not found, topic name: "+audit.RecordingTopic)
	}

	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("service: publish event %s: %w", event.Metadata.ID, err)
	}

	s.logger.DebugContext(ctx, "audit event published",
		"event_id", event.Metadata.ID,
		"topic", topic,
		"business_object_type", event.BusinessObject.Type,
	)
	return nil
}

// SaveEvent persists one entity. A redelivered event collides on its id and is
// treated as already saved.
func (s *EventService) SaveEvent(ctx context.Context, entity audit.Entity) error {
	if entity == nil {
		return audit.ErrNoEntity
	}

	err := s.store.Save(ctx, entity)
	if errors.Is(err, audit.ErrDuplicateKey) {
		s.logger.InfoContext(ctx, "audit event already recorded",
			"event_id", entity.Base().EventID,
			"business_object_type", entity.Base().BusinessObjectType,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("service: save event %s: %w", entity.Base().EventID, err)
	}
	return nil
}
