package middleware

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mini-playwright/message"
)

const tracerName = "mini-playwright/middleware"

// TracingMiddleware opens one client span per call.
func TracingMiddleware(tp trace.TracerProvider) Middleware {
	tracer := tp.Tracer(tracerName)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			ctx, span := tracer.Start(ctx, req.Method,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("playwright.guid", req.GUID),
					attribute.String("playwright.method", req.Method),
				))
			defer span.End()

			result, err := next(ctx, req)
			span.SetAttributes(attribute.Int64("playwright.id", int64(req.ID)))
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return result, err
		}
	}
}
