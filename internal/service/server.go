package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/infra/metrics"
	"github.com/webitel/realtime-hub/internal/domain/model"
	"github.com/webitel/realtime-hub/internal/domain/registry"
)

// Server is the live realtime server of the process. It is created by
// Lifecycle.EnsureStarted and lives until process shutdown.
type Server struct {
	cfg       config.SocketConfig
	host      string
	hub       registry.Hubber
	logger    *slog.Logger
	metrics   *metrics.Metrics
	connOpts  registry.ConnectOptions
	startedAt time.Time

	// ctx outlives any single request so polling sessions survive between polls.
	ctx    context.Context
	cancel context.CancelFunc
}

func newServer(cfg config.SocketConfig, host string, factory registry.Factory, logger *slog.Logger, m *metrics.Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		host:    host,
		logger:  logger.With("component", "realtime", "host", host),
		metrics: m,
		connOpts: registry.ConnectOptions{
			BufferSize: cfg.OutboxSize,
			Rate:       rate.Limit(cfg.MessageRate),
			Burst:      cfg.MessageBurst,
		},
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	if cfg.MessageRate <= 0 {
		s.connOpts.Rate = rate.Inf
	}
	s.hub = factory(registry.WithDestroyHook(s.onDestroy))
	return s
}

func (s *Server) Config() config.SocketConfig { return s.cfg }
func (s *Server) Host() string                { return s.host }
func (s *Server) Hub() registry.Hubber        { return s.hub }

// Open accepts a new connection negotiated on transport t and queues the
// connected acknowledgement as its first event.
func (s *Server) Open(t model.Transport) (registry.Connector, error) {
	if !s.cfg.HasTransport(t.String()) {
		return nil, fmt.Errorf("realtime: transport %q disabled", t)
	}

	conn := registry.NewConnector(s.ctx, t, s.connOpts)
	if err := s.hub.Register(conn); err != nil {
		return nil, fmt.Errorf("realtime: register connection: %w", err)
	}

	s.metrics.ConnectionsActive.Inc()
	s.metrics.ConnectionsTotal.WithLabelValues(t.String()).Inc()
	s.logger.Info("client connected",
		"conn_id", conn.GetID(),
		"transport", t,
	)

	conn.Send(model.NewEvent(model.EventConnected, &model.ConnectedPayload{
		ID:        conn.GetID().String(),
		Timestamp: model.Now(),
		Transport: t,
	}))
	return conn, nil
}

// Lookup resolves a session id sent by a peer.
func (s *Server) Lookup(sid string) (registry.Connector, bool) {
	id, err := uuid.Parse(sid)
	if err != nil {
		return nil, false
	}
	return s.hub.Lookup(id)
}

// Attach marks conn as served by transport t. Switching from polling to
// websocket is a transport upgrade and is always logged and counted.
func (s *Server) Attach(conn registry.Connector, t model.Transport) {
	prev := conn.GetTransport()
	conn.Attach(t)
	if prev == t || conn.GetTransport() != t {
		return
	}

	s.metrics.Upgrades.WithLabelValues(prev.String(), t.String()).Inc()
	s.logger.Info("transport upgraded",
		"conn_id", conn.GetID(),
		"from", prev,
		"to", t,
	)
}

// Close destroys conn and prunes it from every room.
func (s *Server) Close(conn registry.Connector, reason string) {
	s.hub.Destroy(conn.GetID(), reason)
}

// Join subscribes conn to the room of role/id and acknowledges it.
func (s *Server) Join(conn registry.Connector, role model.Role, id string) (string, error) {
	room := model.RoomKey(role, id)
	if err := s.hub.Join(conn.GetID(), room); err != nil {
		return "", err
	}

	conn.Send(model.NewEvent(model.EventJoinedRoom, &model.JoinedRoomPayload{
		Room:      room,
		Type:      role,
		Timestamp: model.Now(),
	}))
	s.logger.Debug("room joined", "conn_id", conn.GetID(), "room", room)
	return room, nil
}

// Emit fans ev out to room. Zero recipients is a normal outcome.
func (s *Server) Emit(room string, ev model.Eventer) (int, error) {
	return s.hub.Send(room, ev)
}

// EmitAll fans ev out to every live connection.
func (s *Server) EmitAll(ev model.Eventer) (int, error) {
	return s.hub.SendToAll(ev)
}

func (s *Server) Stats() model.HubStats {
	return s.hub.Stats()
}

func (s *Server) shutdown() {
	s.hub.Shutdown()
	s.cancel()
}

// onDestroy runs on the registry loop for every destroyed connection.
func (s *Server) onDestroy(conn registry.Connector, reason string) {
	s.metrics.ConnectionsActive.Dec()
	s.metrics.Disconnects.WithLabelValues(reason).Inc()
	s.logger.Info("client disconnected",
		"conn_id", conn.GetID(),
		"transport", conn.GetTransport(),
		"reason", reason,
		"dropped", conn.Dropped(),
		"lifetime", time.Since(conn.CreatedAt()).Round(time.Millisecond),
	)
}
