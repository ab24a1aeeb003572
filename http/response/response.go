package response

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/godamri/helix-audit/pkg/contextx"
)

type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
	Meta    Meta   `json:"meta"`
}

type Error struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError names one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Meta struct {
	TraceID       string `json:"trace_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, Envelope{
		Success: true,
		Data:    data,
		Meta:    meta(r),
	})
}

// ErrorJSON writes the failure envelope. The status is derived from code.
func ErrorJSON(w http.ResponseWriter, r *http.Request, code, message string, details ...FieldError) {
	write(w, MapStatus(code), Envelope{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: meta(r),
	})
}

func write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; a failed encode has nowhere to go.
	_ = json.NewEncoder(w).Encode(payload)
}

func meta(r *http.Request) Meta {
	return Meta{
		TraceID:       traceID(r),
		CorrelationID: contextx.GetCorrelationID(r.Context()),
	}
}

// traceID prefers the id assigned by the trace middleware.
func traceID(r *http.Request) string {
	if tid := contextx.GetTraceID(r.Context()); tid != "untriaged" {
		return tid
	}
	if tid := r.Header.Get("X-Trace-Id"); tid != "" {
		return tid
	}
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
