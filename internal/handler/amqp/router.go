package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/internal/service"
)

const (
	// ------------------- HANDLERS -------------------
	HandlerOnNotify = "ON_NOTIFY"

	// ------------------- TOPICS ---------------------
	PoisonTopicSuffix = ".poison"
)

type MessageHandler struct {
	notifier  service.Notifier
	logger    *slog.Logger
	wmLogger  watermill.LoggerAdapter
	tracer    trace.Tracer
	publisher message.Publisher
	cfg       *config.Config
}

func NewMessageHandler(
	cfg *config.Config,
	notifier service.Notifier,
	logger *slog.Logger,
	wmLogger watermill.LoggerAdapter,
	tracer trace.Tracer,
	pub message.Publisher,
) *MessageHandler {
	return &MessageHandler{
		notifier:  notifier,
		logger:    logger.With("component", "amqp"),
		wmLogger:  wmLogger,
		tracer:    tracer,
		publisher: pub,
		cfg:       cfg,
	}
}

// NewWatermillRouter builds the router with its global middleware.
func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("ROUTER_SETUP_FAILED: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	return router, nil
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, sub message.Subscriber) error {
	topic := h.cfg.AMQP.CommandsExchange
	poison, err := middleware.PoisonQueue(h.publisher, topic+PoisonTopicSuffix)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	router.AddConsumerHandler(HandlerOnNotify, topic, sub, Bind(h, h.OnNotify)).AddMiddleware(
		TracingMiddleware(h.tracer),
		LoggingMiddleware(h.logger),
		NewRetryMiddleware(h.wmLogger).Middleware,
		poison,
		middleware.NewThrottle(500, time.Second).Middleware,
		middleware.Timeout(time.Second*30),
	)

	h.logger.Info("AMQP_PIPELINE_READY", "topic", topic)
	return nil
}

// RunRouter starts the router in the background and waits until it is running.
func RunRouter(ctx context.Context, router *message.Router, logger *slog.Logger) error {
	go func() {
		if err := router.Run(context.Background()); err != nil {
			logger.Error("ROUTER_STOPPED", "err", err)
		}
	}()

	select {
	case <-router.Running():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
