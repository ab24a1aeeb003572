// Package handler exposes the audit event API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/database"
	"github.com/godamri/helix-audit/http/response"
	"github.com/godamri/helix-audit/pkg/contextx"
	"github.com/godamri/helix-audit/service"
	"github.com/godamri/helix-audit/store"
)

const eventsPath = "/api/v1/audit-events/{businessObjectType}/{businessObjectId}"

const (
	msgForbiddenView   = "Forbidden request."
	msgForbiddenCreate = "You do not have permission to create this resource."
)

// EventService is the subset of service.EventService the API needs.
type EventService interface {
	FindEvents(ctx context.Context, q service.Query) (store.Page, error)
	PublishEvent(ctx context.Context, event *audit.Event) error
}

type EventMapper interface {
	ToEvent(ctx context.Context, req *audit.EventRequest, businessObjectID uuid.UUID, businessObjectType string) (*audit.Event, error)
	FromEntities(ctx context.Context, entities []audit.Entity) ([]*audit.Event, error)
	ToResponses(events []*audit.Event) ([]*audit.EventResponse, error)
}

type Scoper interface {
	CanCreate(ctx context.Context) bool
	CanView(ctx context.Context, links []contextx.ProfileLink, businessObjectType string, businessObjectID uuid.UUID) (bool, error)
}

type Handler struct {
	events   EventService
	mapper   EventMapper
	scoper   Scoper
	validate *validator.Validate
	baseURL  string
	logger   *slog.Logger
}

// New builds the handler. baseURL prefixes pagination links; empty derives it
// from each request.
func New(events EventService, m EventMapper, s Scoper, baseURL string, logger *slog.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		events:   events,
		mapper:   m,
		scoper:   s,
		validate: v,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger.With("component", "audit_handler"),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get(eventsPath, h.handleFind)
	r.Post(eventsPath, h.handleCreate)
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	boType := chi.URLParam(r, "businessObjectType")
	boID, err := uuid.Parse(chi.URLParam(r, "businessObjectId"))
	if err != nil {
		response.ErrorJSON(w, r, response.ErrInvalidFormat, "Invalid businessObjectId: "+chi.URLParam(r, "businessObjectId"))
		return
	}

	q, fieldErr := parseQuery(r.URL.Query())
	if fieldErr != nil {
		response.ErrorJSON(w, r, response.ErrInvalidFormat, fieldErr.Message, *fieldErr)
		return
	}
	q.BusinessObjectType = boType
	q.BusinessObjectID = boID

	allowed, err := h.scoper.CanView(ctx, contextx.GetProfileLinks(ctx), boType, boID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !allowed {
		response.ErrorJSON(w, r, response.ErrForbidden, msgForbiddenView)
		return
	}

	page, err := h.events.FindEvents(ctx, q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	events, err := h.mapper.FromEntities(ctx, page.Entities)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	models, err := h.mapper.ToResponses(events)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	meta := audit.PagingMetadata{
		PageNumber: page.PageNumber,
		PageSize:   page.PageSize,
		TotalCount: page.TotalCount,
	}
	if page.HasNext() {
		meta.NextPage = h.nextPage(r, page)
	}

	response.JSON(w, r, http.StatusOK, audit.EventsPage{Events: models, PagingMetadata: meta})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.scoper.CanCreate(ctx) {
		response.ErrorJSON(w, r, response.ErrForbidden, msgForbiddenCreate)
		return
	}

	boType := chi.URLParam(r, "businessObjectType")
	boID, err := uuid.Parse(chi.URLParam(r, "businessObjectId"))
	if err != nil {
		response.ErrorJSON(w, r, response.ErrInvalidFormat, "Invalid businessObjectId: "+chi.URLParam(r, "businessObjectId"))
		return
	}

	var req audit.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid audit event request", "error", err)
		response.ErrorJSON(w, r, response.ErrBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.StructCtx(ctx, &req); err != nil {
		response.ErrorJSON(w, r, response.ErrValidation, "Request validation failed", fieldErrors(err)...)
		return
	}

	event, err := h.mapper.ToEvent(ctx, &req, boID, boType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.events.PublishEvent(ctx, event); err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusCreated, audit.EventID{EventID: event.Metadata.ID})
}

// parseQuery applies the query defaults. Range and ordering rules are left to
// the service.
func parseQuery(v url.Values) (service.Query, *response.FieldError) {
	q := service.Query{
		PageNumber: 0,
		PageSize:   service.DefaultPageSize,
		SortOrder:  v.Get("sortOrder"),
		SortBy:     v.Get("sortBy"),
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"pageNumber", &q.PageNumber},
		{"pageSize", &q.PageSize},
	} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, &response.FieldError{Field: p.name, Message: "Invalid " + p.name + ": " + raw}
		}
		*p.dst = n
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"startTime", &q.Start},
		{"endTime", &q.End},
	} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, &response.FieldError{Field: p.name, Message: "Invalid " + p.name + ": " + raw}
		}
		*p.dst = &t
	}

	return q, nil
}

// nextPage keeps the caller's filters and advances pageNumber.
func (h *Handler) nextPage(r *http.Request, page store.Page) string {
	base := h.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
			scheme = fwd
		}
		base = scheme + "://" + r.Host
	}

	q := r.URL.Query()
	q.Set("pageNumber", strconv.Itoa(page.PageNumber+1))
	q.Set("pageSize", strconv.Itoa(page.PageSize))
	return base + r.URL.Path + "?" + q.Encode()
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	switch {
	case audit.IsCallerInput(err):
		response.ErrorJSON(w, r, response.ErrValidation, audit.Message(err))
	case errors.Is(err, audit.ErrForbidden):
		response.ErrorJSON(w, r, response.ErrForbidden, msgForbiddenView)
	case errors.Is(err, audit.ErrPublisherFull):
		h.logger.WarnContext(ctx, "audit event rejected, publisher buffer full")
		response.ErrorJSON(w, r, response.ErrServiceUnavail, "Audit event buffer is full, retry later.")
	case errors.Is(err, audit.ErrTopicNotFound):
		h.logger.ErrorContext(ctx, "recording topic is not configured", "error", err)
		response.ErrorJSON(w, r, response.ErrNotFound, audit.Message(err))
	default:
		code := database.ResponseCode(err)
		h.logger.ErrorContext(ctx, "audit request failed", "error", err, "code", code)
		msg := "Internal server error"
		if code != response.ErrSystem {
			msg = http.StatusText(response.MapStatus(code))
		}
		response.ErrorJSON(w, r, code, msg)
	}
}

func fieldErrors(err error) []response.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []response.FieldError{{Message: err.Error()}}
	}
	out := make([]response.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, response.FieldError{
			Field:   strings.TrimPrefix(fe.Namespace(), "EventRequest."),
			Message: "failed on " + fe.Tag(),
		})
	}
	return out
}
