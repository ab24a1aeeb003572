package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/godamri/helix-audit/audit"
	auditmocks "github.com/godamri/helix-audit/audit/mocks"
	"github.com/godamri/helix-audit/store"
	storemocks "github.com/godamri/helix-audit/store/mocks"
)

type staticTopics map[string]string

func (t staticTopics) Resolve(logical string) (string, bool) {
	v, ok := t[logical]
	return v, ok
}

type EventServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *storemocks.MockStore
	publisher *auditmocks.MockPublisher
	service   *EventService
}

func TestEventServiceSuite(t *testing.T) {
	suite.Run(t, new(EventServiceSuite))
}

func (s *EventServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = storemocks.NewMockStore(s.ctrl)
	s.publisher = auditmocks.NewMockPublisher(s.ctrl)

	var err error
	s.service, err = NewEventService(s.store, s.publisher,
		staticTopics{audit.RecordingTopic: "platform.audit.events"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
}

func (s *EventServiceSuite) TestNew() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewEventService(nil, s.publisher, staticTopics{}, logger)
	s.ErrorContains(err, "store is required")
	_, err = NewEventService(s.store, nil, staticTopics{}, logger)
	s.ErrorContains(err, "publisher is required")
	_, err = NewEventService(s.store, s.publisher, nil, logger)
	s.ErrorContains(err, "topic resolver is required")
}

func (s *EventServiceSuite) TestFindEvents() {
	ctx := context.Background()
	boID := uuid.New()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	s.Run("defaults and filter reach the store", func() {
		want := store.Page{PageNumber: 2, PageSize: 10, TotalCount: 31}
		s.store.EXPECT().FindPage(ctx,
			store.Filter{BusinessObjectType: "orders", BusinessObjectID: boID, Start: &start, End: &end},
			store.PageRequest{Number: 2, Size: 10, SortBy: "timestamp", Direction: store.Asc},
		).Return(want, nil)

		got, err := s.service.FindEvents(ctx, Query{
			BusinessObjectType: "orders",
			BusinessObjectID:   boID,
			Start:              &start,
			End:                &end,
			PageNumber:         2,
			PageSize:           10,
		})
		s.Require().NoError(err)
		s.Equal(want, got)
	})

	s.Run("sort order is case insensitive", func() {
		s.store.EXPECT().FindPage(ctx, gomock.Any(),
			store.PageRequest{Number: 0, Size: 1, SortBy: "summary", Direction: store.Desc},
		).Return(store.Page{}, nil)

		_, err := s.service.FindEvents(ctx, Query{PageSize: 1, SortOrder: "desc", SortBy: "summary"})
		s.NoError(err)
	})

	s.Run("equal bounds are accepted", func() {
		s.store.EXPECT().FindPage(ctx, gomock.Any(), gomock.Any()).Return(store.Page{}, nil)
		_, err := s.service.FindEvents(ctx, Query{PageSize: 1, Start: &start, End: &start})
		s.NoError(err)
	})

	s.Run("rejected before storage", func() {
		cases := []struct {
			name string
			q    Query
			kind error
			msg  string
		}{
			{"negative page", Query{PageNumber: -1, PageSize: 10}, audit.ErrInvalidPage, ""},
			{"zero size", Query{PageSize: 0}, audit.ErrInvalidPage, ""},
			{"oversized", Query{PageSize: 201}, audit.ErrInvalidPage, ""},
			{"offset overflow", Query{PageNumber: math.MaxInt64, PageSize: 2}, audit.ErrInvalidPage, ""},
			{"offset overflow at max size", Query{PageNumber: math.MaxInt/200 + 1, PageSize: 200}, audit.ErrInvalidPage, ""},
			{"bad order", Query{PageSize: 10, SortOrder: "sideways"}, audit.ErrInvalidSort, "Invalid sortOrder: sideways"},
			{"bad field", Query{PageSize: 10, SortBy: "password"}, audit.ErrInvalidSort, "Invalid sortBy: password"},
			{"inverted range", Query{PageSize: 10, Start: &end, End: &start}, audit.ErrInvalidRange,
				"The startTime cannot be greater than the endTime."},
		}
		for _, tc := range cases {
			_, err := s.service.FindEvents(ctx, tc.q)
			s.ErrorIs(err, tc.kind, tc.name)
			s.True(audit.IsCallerInput(err), tc.name)
			if tc.msg != "" {
				s.Equal(tc.msg, audit.Message(err), tc.name)
			}
		}
	})

	s.Run("store failure is wrapped", func() {
		boom := errors.New("connection reset")
		s.store.EXPECT().FindPage(ctx, gomock.Any(), gomock.Any()).Return(store.Page{}, boom)
		_, err := s.service.FindEvents(ctx, Query{PageSize: 200})
		s.ErrorIs(err, boom)
	})
}

func (s *EventServiceSuite) TestPublishEvent() {
	ctx := context.Background()
	event := &audit.Event{Metadata: audit.Metadata{ID: uuid.New()}}

	s.Run("publishes to the resolved topic", func() {
		s.publisher.EXPECT().Publish(ctx, "platform.audit.events", event).Return(nil)
		s.NoError(s.service.PublishEvent(ctx, event))
	})

	s.Run("publisher failure is returned", func() {
		boom := errors.New("broker down")
		s.publisher.EXPECT().Publish(ctx, "platform.audit.events", event).Return(boom)
		s.ErrorIs(s.service.PublishEvent(ctx, event), boom)
	})

	s.Run("missing topic fails before publishing", func() {
		svc, err := NewEventService(s.store, s.publisher, staticTopics{},
			slog.New(slog.NewTextHandler(io.Discard, nil)))
		s.Require().NoError(err)

		err = svc.PublishEvent(ctx, event)
		s.ErrorIs(err, audit.ErrTopicNotFound)
		s.Equal("Notification requests topic not found, topic name: AUDIT_EVENTS_RECORDING", audit.Message(err))
	})
}

func (s *EventServiceSuite) TestSaveEvent() {
	ctx := context.Background()
	entity := &audit.ActivityEventEntity{EntityBase: audit.EntityBase{EventID: uuid.New()}}

	s.Run("saves", func() {
		s.store.EXPECT().Save(ctx, entity).Return(nil)
		s.NoError(s.service.SaveEvent(ctx, entity))
	})

	s.Run("duplicate is absorbed", func() {
		s.store.EXPECT().Save(ctx, entity).Return(audit.ErrDuplicateKey)
		s.NoError(s.service.SaveEvent(ctx, entity))
	})

	s.Run("other failures surface", func() {
		boom := errors.New("disk full")
		s.store.EXPECT().Save(ctx, entity).Return(boom)
		s.ErrorIs(s.service.SaveEvent(ctx, entity), boom)
	})

	s.Run("nil entity", func() {
		s.ErrorIs(s.service.SaveEvent(ctx, nil), audit.ErrNoEntity)
	})
}
