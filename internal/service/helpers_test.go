package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/infra/metrics"
	"github.com/webitel/realtime-hub/internal/domain/model"
	"github.com/webitel/realtime-hub/internal/domain/registry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig(config.WithEnvFile(""))
	require.NoError(t, err)
	return cfg
}

type fixture struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	lifecycle *Lifecycle
	missed    *MissedTracker
	notifier  *Dispatcher
}

func newFixture(t *testing.T, cfg *config.Config, sink MissedSink) *fixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	l := NewLifecycle(cfg, registry.NewFactory(cfg, discard), discard, m)
	t.Cleanup(l.Stop)

	missed, err := NewMissedTracker(cfg, sink, discard, m)
	require.NoError(t, err)

	return &fixture{
		cfg:       cfg,
		metrics:   m,
		lifecycle: l,
		missed:    missed,
		notifier:  NewDispatcher(l, missed, noop.NewTracerProvider().Tracer("test"), discard, m),
	}
}

func (f *fixture) start(t *testing.T) *Server {
	t.Helper()
	srv, err := f.lifecycle.EnsureStarted(nil)
	require.NoError(t, err)
	return srv
}

// open creates a polling connection and discards its connected event.
func (f *fixture) open(t *testing.T, srv *Server) registry.Connector {
	t.Helper()
	conn, err := srv.Open(model.TransportPolling)
	require.NoError(t, err)
	ev := next(t, conn)
	require.Equal(t, model.EventConnected, ev.GetName())
	return conn
}

func (f *fixture) join(t *testing.T, srv *Server, conn registry.Connector, role model.Role, id string) {
	t.Helper()
	_, err := srv.Join(conn, role, id)
	require.NoError(t, err)
	require.Equal(t, model.EventJoinedRoom, next(t, conn).GetName())
}

func next(t *testing.T, conn registry.Connector) model.Eventer {
	t.Helper()
	select {
	case ev := <-conn.Recv():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event queued")
		return nil
	}
}

func empty(conn registry.Connector) bool {
	select {
	case <-conn.Recv():
		return false
	default:
		return true
	}
}

type recordingSink struct {
	mu      sync.Mutex
	records []*model.MissedNotification
	err     error
}

func (s *recordingSink) PublishMissed(_ context.Context, m *model.MissedNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, m)
	return s.err
}

func (s *recordingSink) all() []*model.MissedNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.MissedNotification{}, s.records...)
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}
