package httpsrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/infra/metrics"
	"github.com/webitel/realtime-hub/internal/handler/socket"
)

// Server is the HTTP host the realtime endpoint is attached to.
type Server struct {
	*http.Server
	logger   *slog.Logger
	listener net.Listener
}

var Module = fx.Module("http-server",
	fx.Provide(NewRouter, New),
	fx.Invoke(func(lc fx.Lifecycle, s *Server, cfg *config.Config) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// [SYNC_BIND] a failed bind aborts application start.
				return s.Listen()
			},
			OnStop: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
				defer cancel()
				return s.Shutdown(ctx)
			},
		})
	}),
)

// NewRouter wires the socket endpoint next to the operational endpoints.
func NewRouter(h *socket.Handler, m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h.Mount(r)
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func New(cfg *config.Config, router chi.Router, logger *slog.Logger) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Listen binds the address synchronously and serves in the background.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.Addr, err)
	}
	s.listener = ln

	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", "err", err)
		}
	}()
	return nil
}

// ListenAddr is the bound address; useful when Addr asks for port 0.
func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return s.Addr
	}
	return s.listener.Addr().String()
}
