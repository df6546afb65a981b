package socket

import "go.uber.org/fx"

var Module = fx.Module("socket-handler",
	fx.Provide(NewHandler),
)
