package middleware

import (
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"

	"github.com/godamri/helix-audit/pkg/contextx"
)

const (
	TraceHeader       = "X-Trace-Id"
	RequestHeader     = "X-Request-Id"
	CorrelationHeader = "X-Correlation-Id"
)

// TraceIDMiddleware assigns trace, request and correlation ids. A caller
// supplied correlation id is kept so events recorded by this request can be
// tied back to the originating workflow; without one the trace id is used.
func TraceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			uid := uuid.New()
			traceID = hex.EncodeToString(uid[:])
		}

		reqID := r.Header.Get(RequestHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		correlationID := r.Header.Get(CorrelationHeader)
		if correlationID == "" {
			correlationID = traceID
		}

		w.Header().Set(TraceHeader, traceID)
		w.Header().Set(RequestHeader, reqID)
		w.Header().Set(CorrelationHeader, correlationID)

		ctx := r.Context()
		ctx = contextx.WithTraceID(ctx, traceID)
		ctx = contextx.WithRequestID(ctx, reqID)
		ctx = contextx.WithCorrelationID(ctx, correlationID)
		ctx = contextx.WithEntryPoint(ctx, "http")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
