package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/infra/metrics"
	"github.com/webitel/realtime-hub/internal/domain/registry"
)

var ErrInvalidConfig = errors.New("realtime: invalid socket config")

// ServerProvider exposes the live server, nil before the first start.
type ServerProvider interface {
	Current() *Server
}

// Starter starts the realtime server on demand.
type Starter interface {
	ServerProvider
	EnsureStarted(host *http.Server) (*Server, error)
}

// Lifecycle holds the one realtime Server of the process. It is created by
// the composition root and handed to whoever needs the server.
type Lifecycle struct {
	cfg     *config.Config
	factory registry.Factory
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	current atomic.Pointer[Server]
	stopped bool
}

var _ Starter = (*Lifecycle)(nil)

func NewLifecycle(cfg *config.Config, factory registry.Factory, logger *slog.Logger, m *metrics.Metrics) *Lifecycle {
	return &Lifecycle{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		metrics: m,
	}
}

// Current is the singleton accessor.
func (l *Lifecycle) Current() *Server {
	return l.current.Load()
}

// EnsureStarted returns the running server or builds it bound to host.
// The check and the construction happen under one lock, so back-to-back
// triggers never build two servers.
func (l *Lifecycle) EnsureStarted(host *http.Server) (*Server, error) {
	if s := l.current.Load(); s != nil {
		l.logger.Debug("realtime server already running", "host", s.Host())
		return s, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if s := l.current.Load(); s != nil {
		l.logger.Debug("realtime server already running", "host", s.Host())
		return s, nil
	}
	if l.stopped {
		return nil, errors.New("realtime: lifecycle stopped")
	}

	sockCfg := l.cfg.Socket
	if err := sockCfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s := newServer(sockCfg, hostName(host), l.factory, l.logger, l.metrics)
	l.current.Store(s)

	l.logger.Info("realtime server started",
		"host", s.Host(),
		"path", sockCfg.Path,
		"transports", sockCfg.Transports,
		"ping_interval", sockCfg.PingInterval,
		"ping_timeout", sockCfg.PingTimeout,
		"upgrade_timeout", sockCfg.UpgradeTimeout,
		"connect_timeout", sockCfg.ConnectTimeout,
		"max_payload", sockCfg.MaxPayload,
	)
	return s, nil
}

// Stop shuts the server down and refuses further starts.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopped = true
	if s := l.current.Load(); s != nil {
		s.shutdown()
		l.logger.Info("realtime server stopped", "host", s.Host())
	}
}

func hostName(host *http.Server) string {
	if host == nil || host.Addr == "" {
		return "local"
	}
	return host.Addr
}
