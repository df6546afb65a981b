package cmd

import (
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/webitel/realtime-hub/config"
	httpsrv "github.com/webitel/realtime-hub/infra/server/http"
	"github.com/webitel/realtime-hub/infra/metrics"
	"github.com/webitel/realtime-hub/internal/adapter/pubsub"
	"github.com/webitel/realtime-hub/internal/domain/registry"
	amqpdi "github.com/webitel/realtime-hub/internal/handler/amqp"
	"github.com/webitel/realtime-hub/internal/handler/socket"
	"github.com/webitel/realtime-hub/internal/service"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			fl := &fxevent.SlogLogger{Logger: l}
			fl.UseLogLevel(slog.LevelDebug)
			return fl
		}),
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvidePubSub,
			ProvideTracer,
		),
		metrics.Module,
		registry.Module,
		service.Module,
		pubsub.Module,
		socket.Module,
		httpsrv.Module,
		amqpdi.Module,
	)
}
