package telemetry

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/godamri/helix-audit/pkg/contextx"
)

// OTelHandler wraps a slog.Handler. It stamps span and correlation ids onto
// every record and copies warnings and errors onto the active span.
type OTelHandler struct {
	slog.Handler
}

func NewOTelHandler(h slog.Handler) *OTelHandler {
	return &OTelHandler{Handler: h}
}

func (h *OTelHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	sc := span.SpanContext()

	if sc.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
	} else if tid := contextx.GetTraceID(ctx); tid != "untriaged" {
		r.AddAttrs(slog.String("trace_id", tid))
	}
	if sc.HasSpanID() {
		r.AddAttrs(slog.String("span_id", sc.SpanID().String()))
	}
	if cid := contextx.GetCorrelationID(ctx); cid != "" {
		r.AddAttrs(slog.String("correlation_id", cid))
	}
	if rid := contextx.GetRequestID(ctx); rid != "" {
		r.AddAttrs(slog.String("request_id", rid))
	}

	if span.IsRecording() && r.Level >= slog.LevelWarn {
		h.enrichSpan(span, r)
	}

	return h.Handler.Handle(ctx, r)
}

func (h *OTelHandler) enrichSpan(span trace.Span, r slog.Record) {
	otelAttrs := make([]attribute.KeyValue, 0, r.NumAttrs())

	var errFound error

	r.Attrs(func(a slog.Attr) bool {
		switch a.Value.Kind() {
		case slog.KindString:
			otelAttrs = append(otelAttrs, attribute.String(a.Key, a.Value.String()))
		case slog.KindInt64:
			otelAttrs = append(otelAttrs, attribute.Int64(a.Key, a.Value.Int64()))
		case slog.KindFloat64:
			otelAttrs = append(otelAttrs, attribute.Float64(a.Key, a.Value.Float64()))
		case slog.KindBool:
			otelAttrs = append(otelAttrs, attribute.Bool(a.Key, a.Value.Bool()))
		default:
			otelAttrs = append(otelAttrs, attribute.String(a.Key, a.Value.String()))
		}

		if a.Key == "error" && a.Value.Kind() == slog.KindAny {
			if e, ok := a.Value.Any().(error); ok {
				errFound = e
			}
		}
		return true
	})

	if r.Level < slog.LevelError {
		span.AddEvent("log_warning", trace.WithAttributes(
			append(otelAttrs, attribute.String("message", r.Message))...,
		))
		return
	}

	if errFound == nil {
		errFound = errors.New(r.Message)
	}
	span.RecordError(errFound, trace.WithAttributes(otelAttrs...))
	span.SetStatus(codes.Error, r.Message)
}

func (h *OTelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &OTelHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *OTelHandler) WithGroup(name string) slog.Handler {
	return &OTelHandler{Handler: h.Handler.WithGroup(name)}
}
