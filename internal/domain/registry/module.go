package registry

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/realtime-hub/config"
)

// Factory builds a Hub. The realtime server calls it once, when the first
// inbound connection request starts the server.
type Factory func(opts ...Option) *Hub

var Module = fx.Module("registry",
	fx.Provide(NewFactory),
)

// NewFactory binds socket timeouts from cfg into every Hub it builds.
// Extra options passed to the factory are applied after the configured ones.
func NewFactory(cfg *config.Config, logger *slog.Logger) Factory {
	return func(opts ...Option) *Hub {
		base := []Option{
			// [CLEAN_INJECTION] Configure Hub using Functional Options
			WithSweepInterval(cfg.Socket.SweepInterval),
			WithConnectTimeout(cfg.Socket.ConnectTimeout),
			WithPingTimeout(cfg.Socket.PingTimeout),
			WithLogger(logger.With("component", "registry")),
		}
		return NewHub(append(base, opts...)...)
	}
}
