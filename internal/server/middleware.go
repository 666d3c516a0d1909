package server

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/impact-simulator/internal/logging"
)

const (
	tracerName      = "github.com/signalsfoundry/impact-simulator/internal/server"
	requestIDHeader = "X-Request-ID"
)

// withRequestContext ensures every request carries a request ID, a logger
// annotated with it, and a server span named after the matched route. The
// inbound X-Request-ID header is honoured when present.
func withRequestContext(base logging.Logger, next http.Handler) http.Handler {
	if base == nil {
		base = logging.Noop()
	}
	tracer := otel.Tracer(tracerName)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		ctx, span := tracer.Start(ctx, "HTTP "+r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
		r = r.WithContext(ctx)
		next.ServeHTTP(w, r)

		// The mux fills in Pattern on the request it was handed.
		if r.Pattern != "" {
			span.SetName(r.Pattern)
		}
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("http.route", r.Pattern),
			attribute.String("request_id", logging.RequestIDFromContext(ctx)),
		)
	})
}

// recordSpanError marks the request span as failed.
func recordSpanError(r *http.Request, err error) {
	span := trace.SpanFromContext(r.Context())
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
