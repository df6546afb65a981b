package registry

import (
	"log/slog"
	"time"
)

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// DestroyHook observes every destroyed connection. It runs on the registry
// loop and must not call back into the Hub.
type DestroyHook func(conn Connector, reason string)

// WithSweepInterval configures how often the [JANITOR] checks connection deadlines.
func WithSweepInterval(d time.Duration) Option {
	return func(h *Hub) {
		h.config.sweepInterval = d
	}
}

// WithConnectTimeout bounds the time between handshake and the first
// transport stream attaching to the session.
func WithConnectTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.connectTimeout = d
	}
}

// WithPingTimeout defines the [QUIET_PERIOD] after which an attached
// connection with no activity is destroyed.
func WithPingTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.pingTimeout = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}

func WithDestroyHook(fn DestroyHook) Option {
	return func(h *Hub) {
		h.onDestroy = fn
	}
}
