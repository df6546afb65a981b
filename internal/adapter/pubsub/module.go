package pubsub

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/internal/service"
)

var Module = fx.Module("pubsub-adapter",
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config, pub message.Publisher, logger *slog.Logger) *MissedDispatcher {
				return NewMissedDispatcher(cfg, NewBreakerPublisher(pub, logger))
			},
			fx.As(new(service.MissedSink)),
		),
	),
)
