package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/database"
)

const selectColumns = `event_id, type, business_object_id, business_object_type, event_schema,
	event_timestamp, summary, system_of_record, related_business_objects, request_context,
	activity_type, data, old_state, new_state`

// Postgres stores every entity shape in the single audit_event table, keyed
// by event id and discriminated by type.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) FindPage(ctx context.Context, filter Filter, page PageRequest) (Page, error) {
	column, ok := sortColumns[page.SortBy]
	if !ok {
		return Page{}, fmt.Errorf("store: unsortable field %q", page.SortBy)
	}
	if page.Offset() < 0 || page.Size < 1 {
		return Page{}, fmt.Errorf("store: invalid page %d of size %d", page.Number, page.Size)
	}
	dir := "ASC"
	if page.Direction == Desc {
		dir = "DESC"
	}

	where, args := whereClause(filter)

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_event WHERE "+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("store: count events: %w", database.MapError(err))
	}

	out := Page{PageNumber: page.Number, PageSize: page.Size, TotalCount: total}
	if total == 0 || int64(page.Offset()) >= total {
		return out, nil
	}

	query := fmt.Sprintf(
		"SELECT %s FROM audit_event WHERE %s ORDER BY %s %s, event_id %s LIMIT $%d OFFSET $%d",
		selectColumns, where, column, dir, dir, len(args)+1, len(args)+2,
	)
	args = append(args, page.Size, page.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("store: query events: %w", database.MapError(err))
	}
	defer rows.Close()

	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return Page{}, err
		}
		out.Entities = append(out.Entities, entity)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("store: iterate events: %w", database.MapError(err))
	}

	return out, nil
}

func whereClause(f Filter) (string, []any) {
	var sb strings.Builder
	args := []any{f.BusinessObjectType, f.BusinessObjectID}
	sb.WriteString("business_object_type = $1 AND business_object_id = $2")

	if f.Start != nil {
		args = append(args, *f.Start)
		fmt.Fprintf(&sb, " AND event_timestamp >= $%d", len(args))
	}
	if f.End != nil {
		args = append(args, *f.End)
		fmt.Fprintf(&sb, " AND event_timestamp < $%d", len(args))
	}
	return sb.String(), args
}

func (s *Postgres) Save(ctx context.Context, entity audit.Entity) error {
	if entity == nil {
		return audit.ErrNoEntity
	}
	b := entity.Base()

	related, err := marshalJSON(b.RelatedBusinessObjects, len(b.RelatedBusinessObjects) > 0)
	if err != nil {
		return fmt.Errorf("store: encode related objects: %w", err)
	}
	reqCtx, err := marshalJSON(b.RequestContext, b.RequestContext != nil)
	if err != nil {
		return fmt.Errorf("store: encode request context: %w", err)
	}
	data, err := marshalJSON(b.Data, b.Data != nil)
	if err != nil {
		return fmt.Errorf("store: encode data: %w", err)
	}

	var oldState, newState sql.NullString
	if sc, ok := entity.(*audit.StateChangeEventEntity); ok {
		oldState = sql.NullString{String: sc.OldState, Valid: true}
		newState = sql.NullString{String: sc.NewState, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO audit_event (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		b.EventID, string(b.Type), b.BusinessObjectID, b.BusinessObjectType, nullString(b.Schema),
		b.Timestamp.UTC(), nullString(b.Summary), b.SystemOfRecord, related, reqCtx,
		nullString(b.ActivityType), data, oldState, newState,
	)
	if err != nil {
		mapped := database.MapError(err)
		if errors.Is(mapped, database.ErrUniqueViolation) {
			return fmt.Errorf("store: event %s: %w", b.EventID, audit.ErrDuplicateKey)
		}
		return fmt.Errorf("store: insert event %s: %w", b.EventID, mapped)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (audit.Entity, error) {
	var (
		b                         audit.EntityBase
		rawType                   string
		schema, summary           sql.NullString
		systemOfRecord            sql.NullString
		activityType              sql.NullString
		oldState, newState        sql.NullString
		related, reqCtx, data     []byte
		timestamp                 time.Time
		eventID, businessObjectID uuid.UUID
	)

	if err := row.Scan(
		&eventID, &rawType, &businessObjectID, &b.BusinessObjectType, &schema,
		&timestamp, &summary, &systemOfRecord, &related, &reqCtx,
		&activityType, &data, &oldState, &newState,
	); err != nil {
		return nil, fmt.Errorf("store: scan event: %w", database.MapError(err))
	}

	b.EventID = eventID
	b.BusinessObjectID = businessObjectID
	b.Schema = schema.String
	b.Timestamp = timestamp.UTC()
	b.Summary = summary.String
	b.ActivityType = activityType.String
	if systemOfRecord.Valid {
		v := systemOfRecord.String
		b.SystemOfRecord = &v
	}
	if err := unmarshalJSON(related, &b.RelatedBusinessObjects); err != nil {
		return nil, fmt.Errorf("store: decode related objects of %s: %w", eventID, err)
	}
	if len(reqCtx) > 0 && string(reqCtx) != "null" {
		b.RequestContext = &audit.RequestContext{}
		if err := json.Unmarshal(reqCtx, b.RequestContext); err != nil {
			return nil, fmt.Errorf("store: decode request context of %s: %w", eventID, err)
		}
	}
	if err := unmarshalJSON(data, &b.Data); err != nil {
		return nil, fmt.Errorf("store: decode data of %s: %w", eventID, err)
	}

	return entityFromRow(b, rawType, oldState.String, newState.String), nil
}

// entityFromRow restores the concrete shape from the discriminator column.
// Rows with an unknown discriminator come back as the base shape.
func entityFromRow(b audit.EntityBase, rawType, oldState, newState string) audit.Entity {
	t, err := audit.ParseEntityType(rawType)
	if err != nil {
		b.Type = audit.EntityType(rawType)
		return &b
	}
	b.Type = t

	if t == audit.EntityTypeActivity {
		return &audit.ActivityEventEntity{EntityBase: b}
	}
	return &audit.StateChangeEventEntity{EntityBase: b, OldState: oldState, NewState: newState}
}

func marshalJSON(v any, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(raw []byte, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
