package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/godamri/helix-audit/audit"
)

// Memory is an in-process Store for local runs and tests.
type Memory struct {
	mu       sync.RWMutex
	entities map[uuid.UUID]audit.Entity
}

func NewMemory() *Memory {
	return &Memory{entities: make(map[uuid.UUID]audit.Entity)}
}

func (m *Memory) Save(ctx context.Context, entity audit.Entity) error {
	if entity == nil {
		return audit.ErrNoEntity
	}
	id := entity.Base().EventID

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entities[id]; exists {
		return fmt.Errorf("store: event %s: %w", id, audit.ErrDuplicateKey)
	}
	m.entities[id] = entity
	return nil
}

func (m *Memory) FindPage(ctx context.Context, filter Filter, page PageRequest) (Page, error) {
	compare, ok := comparators[page.SortBy]
	if !ok {
		return Page{}, fmt.Errorf("store: unsortable field %q", page.SortBy)
	}

	m.mu.RLock()
	matched := make([]audit.Entity, 0)
	for _, e := range m.entities {
		if filter.matches(e.Base()) {
			matched = append(matched, e)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, func(a, b audit.Entity) int {
		c := compare(a.Base(), b.Base())
		if c == 0 {
			c = strings.Compare(a.Base().EventID.String(), b.Base().EventID.String())
		}
		if page.Direction == Desc {
			return -c
		}
		return c
	})

	out := Page{PageNumber: page.Number, PageSize: page.Size, TotalCount: int64(len(matched))}
	start := page.Offset()
	if start < 0 || page.Size < 1 {
		return Page{}, fmt.Errorf("store: invalid page %d of size %d", page.Number, page.Size)
	}
	if start >= len(matched) {
		return out, nil
	}
	end := min(start+page.Size, len(matched))
	out.Entities = matched[start:end]
	return out, nil
}

// Len returns the number of stored entities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

type comparator func(a, b *audit.EntityBase) int

var comparators = map[string]comparator{
	"eventId": func(a, b *audit.EntityBase) int {
		return strings.Compare(a.EventID.String(), b.EventID.String())
	},
	"timestamp": func(a, b *audit.EntityBase) int { return a.Timestamp.Compare(b.Timestamp) },
	"summary":   func(a, b *audit.EntityBase) int { return cmp.Compare(a.Summary, b.Summary) },
	"type":      func(a, b *audit.EntityBase) int { return cmp.Compare(a.Type, b.Type) },
	"schema":    func(a, b *audit.EntityBase) int { return cmp.Compare(a.Schema, b.Schema) },
	"activityType": func(a, b *audit.EntityBase) int {
		return cmp.Compare(a.ActivityType, b.ActivityType)
	},
	"businessObjectId": func(a, b *audit.EntityBase) int {
		return strings.Compare(a.BusinessObjectID.String(), b.BusinessObjectID.String())
	},
	"businessObjectType": func(a, b *audit.EntityBase) int {
		return cmp.Compare(a.BusinessObjectType, b.BusinessObjectType)
	},
	"systemOfRecord": func(a, b *audit.EntityBase) int {
		return cmp.Compare(deref(a.SystemOfRecord), deref(b.SystemOfRecord))
	},
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
