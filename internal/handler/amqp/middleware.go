package amqp

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const MetadataTraceID = "trace_id"

type traceKey struct{}

// TraceIDFrom returns the correlation id attached by TracingMiddleware.
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// [TRACING_MIDDLEWARE]
// Every command gets a correlation id (kept from the producer when present)
// and a consumer span wrapping the whole handler chain.
func TracingMiddleware(tracer trace.Tracer) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			traceID := msg.Metadata.Get(MetadataTraceID)
			if traceID == "" {
				traceID = uuid.NewString()
				msg.Metadata.Set(MetadataTraceID, traceID)
			}

			ctx, span := tracer.Start(
				context.WithValue(msg.Context(), traceKey{}, traceID),
				"amqp.consume "+message.HandlerNameFromCtx(msg.Context()),
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("messaging.message.id", msg.UUID),
					attribute.String("realtime.trace_id", traceID),
				),
			)
			defer span.End()
			msg.SetContext(ctx)

			msgs, err := h(msg)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
			}
			return msgs, err
		}
	}
}

// [LOGGING_MIDDLEWARE]
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			level := slog.LevelDebug
			if err != nil {
				level = slog.LevelWarn
			}
			logger.Log(msg.Context(), level, "COMMAND_HANDLED",
				"msg_id", msg.UUID,
				"trace_id", msg.Metadata.Get(MetadataTraceID),
				"duration_ms", time.Since(start).Milliseconds(),
				"err", err,
			)
			return msgs, err
		}
	}
}

// [RETRY_MIDDLEWARE] transient failures back off before the poison queue takes over.
func NewRetryMiddleware(logger watermill.LoggerAdapter) middleware.Retry {
	return middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Logger:          logger,
	}
}
