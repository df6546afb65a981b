package service

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		NewLifecycle,
		fx.Annotate(
			func(l *Lifecycle) *Lifecycle { return l },
			fx.As(new(Starter), new(ServerProvider)),
		),
		fx.Annotate(
			NewMissedTracker,
			fx.ParamTags(``, `optional:"true"`),
			fx.As(new(MissedRecorder)),
		),
		NewDispatcher,

		// [DECORATION_LAYER] Every consumer gets the Notifier wrapped with
		// dispatch logging.
		func(d *Dispatcher, logger *slog.Logger) Notifier {
			return NewNotifierMiddleware(d, logger)
		},
	),

	fx.Invoke(func(lc fx.Lifecycle, l *Lifecycle) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				l.Stop() // [GRACEFUL_SHUTDOWN] destroy every connection
				return nil
			},
		})
	}),
)
