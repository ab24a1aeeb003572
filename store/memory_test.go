package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/audit"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, s Store, boID uuid.UUID, n int) []audit.Entity {
	t.Helper()
	out := make([]audit.Entity, 0, n)
	for i := range n {
		var e audit.Entity
		base := audit.EntityBase{
			EventID:            uuid.New(),
			BusinessObjectID:   boID,
			BusinessObjectType: "orders",
			Timestamp:          t0.Add(time.Duration(i) * time.Hour),
			Summary:            string(rune('a' + i)),
		}
		if i%2 == 0 {
			base.Type = audit.EntityTypeActivity
			e = &audit.ActivityEventEntity{EntityBase: base}
		} else {
			base.Type = audit.EntityTypeStateChange
			e = &audit.StateChangeEventEntity{EntityBase: base, OldState: "A", NewState: "B"}
		}
		require.NoError(t, s.Save(context.Background(), e))
		out = append(out, e)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func TestMemoryFindPage(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	boID := uuid.New()
	seeded := seed(t, s, boID, 5)
	seed(t, s, uuid.New(), 3)

	asc := PageRequest{Number: 0, Size: 50, SortBy: "timestamp", Direction: Asc}

	t.Run("filters by business object", func(t *testing.T) {
		page, err := s.FindPage(ctx, Filter{BusinessObjectType: "orders", BusinessObjectID: boID}, asc)
		require.NoError(t, err)
		assert.EqualValues(t, 5, page.TotalCount)
		assert.Len(t, page.Entities, 5)
		assert.Equal(t, seeded[0].Base().EventID, page.Entities[0].Base().EventID)

		page, err = s.FindPage(ctx, Filter{BusinessObjectType: "profiles", BusinessObjectID: boID}, asc)
		require.NoError(t, err)
		assert.Zero(t, page.TotalCount)
	})

	t.Run("start inclusive end exclusive", func(t *testing.T) {
		f := Filter{
			BusinessObjectType: "orders",
			BusinessObjectID:   boID,
			Start:              ptr(t0.Add(1 * time.Hour)),
			End:                ptr(t0.Add(3 * time.Hour)),
		}
		page, err := s.FindPage(ctx, f, asc)
		require.NoError(t, err)
		require.Len(t, page.Entities, 2)
		assert.Equal(t, seeded[1].Base().EventID, page.Entities[0].Base().EventID)
		assert.Equal(t, seeded[2].Base().EventID, page.Entities[1].Base().EventID)
	})

	t.Run("descending and paged", func(t *testing.T) {
		req := PageRequest{Number: 1, Size: 2, SortBy: "timestamp", Direction: Desc}
		page, err := s.FindPage(ctx, Filter{BusinessObjectType: "orders", BusinessObjectID: boID}, req)
		require.NoError(t, err)
		require.Len(t, page.Entities, 2)
		assert.Equal(t, seeded[2].Base().EventID, page.Entities[0].Base().EventID)
		assert.Equal(t, seeded[1].Base().EventID, page.Entities[1].Base().EventID)
		assert.Equal(t, 3, page.TotalPages())
		assert.True(t, page.HasNext())
	})

	t.Run("page past the end", func(t *testing.T) {
		req := PageRequest{Number: 9, Size: 2, SortBy: "timestamp", Direction: Asc}
		page, err := s.FindPage(ctx, Filter{BusinessObjectType: "orders", BusinessObjectID: boID}, req)
		require.NoError(t, err)
		assert.Empty(t, page.Entities)
		assert.EqualValues(t, 5, page.TotalCount)
		assert.False(t, page.HasNext())
	})

	t.Run("sort by summary", func(t *testing.T) {
		req := PageRequest{Number: 0, Size: 1, SortBy: "summary", Direction: Desc}
		page, err := s.FindPage(ctx, Filter{BusinessObjectType: "orders", BusinessObjectID: boID}, req)
		require.NoError(t, err)
		assert.Equal(t, "e", page.Entities[0].Base().Summary)
	})

	t.Run("overflowing offset", func(t *testing.T) {
		req := PageRequest{Number: math.MaxInt64, Size: 2, SortBy: "timestamp", Direction: Asc}
		assert.NotPanics(t, func() {
			_, err := s.FindPage(ctx, Filter{BusinessObjectType: "orders", BusinessObjectID: boID}, req)
			assert.Error(t, err)
		})
	})

	t.Run("unknown sort field", func(t *testing.T) {
		_, err := s.FindPage(ctx, Filter{}, PageRequest{Size: 1, SortBy: "password"})
		assert.Error(t, err)
	})
}

func TestMemorySaveDuplicate(t *testing.T) {
	s := NewMemory()
	e := &audit.ActivityEventEntity{EntityBase: audit.EntityBase{EventID: uuid.New(), Type: audit.EntityTypeActivity}}

	require.NoError(t, s.Save(context.Background(), e))
	err := s.Save(context.Background(), e)
	assert.ErrorIs(t, err, audit.ErrDuplicateKey)
	assert.Equal(t, 1, s.Len())

	assert.ErrorIs(t, s.Save(context.Background(), nil), audit.ErrNoEntity)
}

func TestSortableFieldsAgree(t *testing.T) {
	for field := range sortColumns {
		_, ok := comparators[field]
		assert.True(t, ok, "memory store cannot sort by %q", field)
	}
	assert.Len(t, comparators, len(sortColumns))
	assert.True(t, IsSortable("timestamp"))
	assert.False(t, IsSortable("event_timestamp"))
}

func TestEntityFromRow(t *testing.T) {
	b := audit.EntityBase{EventID: uuid.New()}

	assert.IsType(t, &audit.ActivityEventEntity{}, entityFromRow(b, "ACTIVITY_EVENT_DATA", "", ""))

	sc, ok := entityFromRow(b, "STATE_CHANGE_EVENT_DATA", "A", "B").(*audit.StateChangeEventEntity)
	require.True(t, ok)
	assert.Equal(t, "B", sc.NewState)

	legacy := entityFromRow(b, "AUDIT_EVENT", "", "")
	assert.IsType(t, &audit.EntityBase{}, legacy)
	assert.Equal(t, audit.EntityType("AUDIT_EVENT"), legacy.Base().Type)
}

func TestWhereClause(t *testing.T) {
	where, args := whereClause(Filter{BusinessObjectType: "orders", BusinessObjectID: uuid.Nil, End: ptr(t0)})
	assert.Equal(t, "business_object_type = $1 AND business_object_id = $2 AND event_timestamp < $3", where)
	assert.Len(t, args, 3)
}
