package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/webitel/realtime-hub/config"
)

// ProvideLogger builds the process logger. The level follows log.level
// across config file reloads.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(config.ParseLevel(cfg.Log.Level))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", ServiceName,
		"namespace", ServiceNamespace,
	)
	slog.SetDefault(logger)

	cfg.Watch(func(next *config.Config) {
		lvl := config.ParseLevel(next.Log.Level)
		if lvl != level.Level() {
			level.Set(lvl)
			logger.Info("LOG_LEVEL_CHANGED", "level", lvl.String())
		}
	})
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}

type PubSubOut struct {
	fx.Out

	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// ProvidePubSub connects to the broker when amqp.url is set. Without it the
// realtime hub keeps commands and missed records in-process.
func ProvidePubSub(lc fx.Lifecycle, cfg *config.Config, logger watermill.LoggerAdapter) (PubSubOut, error) {
	var (
		pub message.Publisher
		sub message.Subscriber
	)

	if cfg.AMQP.URL == "" {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		pub, sub = ch, ch
	} else {
		amqpCfg := amqp.NewDurablePubSubConfig(
			cfg.AMQP.URL,
			amqp.GenerateQueueNameTopicNameWithSuffix(cfg.AMQP.CommandsQueue),
		)

		publisher, err := amqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return PubSubOut{}, fmt.Errorf("AMQP_PUBLISHER_FAILED: %w", err)
		}
		subscriber, err := amqp.NewSubscriber(amqpCfg, logger)
		if err != nil {
			_ = publisher.Close()
			return PubSubOut{}, fmt.Errorf("AMQP_SUBSCRIBER_FAILED: %w", err)
		}
		pub, sub = publisher, subscriber
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			subErr := sub.Close()
			if any(pub) == any(sub) {
				return subErr
			}
			if err := pub.Close(); err != nil {
				return err
			}
			return subErr
		},
	})

	return PubSubOut{Publisher: pub, Subscriber: sub}, nil
}

// ProvideTracer installs the global tracer provider. Tracing off means noop.
func ProvideTracer(lc fx.Lifecycle, cfg *config.Config) trace.Tracer {
	if !cfg.Tracing.Enabled {
		return noop.NewTracerProvider().Tracer(ServiceName)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
			attribute.String("service.namespace", ServiceNamespace),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp.Tracer(ServiceName)
}
