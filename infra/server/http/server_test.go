package httpsrv

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/infra/metrics"
	"github.com/webitel/realtime-hub/internal/domain/registry"
	"github.com/webitel/realtime-hub/internal/handler/socket"
	"github.com/webitel/realtime-hub/internal/service"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestServer_ServesOperationalEndpoints(t *testing.T) {
	cfg, err := config.LoadConfig(config.WithEnvFile(""))
	require.NoError(t, err)
	cfg.HTTP.Addr = "127.0.0.1:0"

	m := metrics.New(prometheus.NewRegistry())
	l := service.NewLifecycle(cfg, registry.NewFactory(cfg, discard), discard, m)
	t.Cleanup(l.Stop)
	missed, err := service.NewMissedTracker(cfg, nil, discard, m)
	require.NoError(t, err)

	srv := New(cfg, NewRouter(socket.NewHandler(cfg, l, missed, discard), m), discard)
	require.NoError(t, srv.Listen())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	base := "http://" + srv.ListenAddr()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	// A handshake starts the realtime server bound to this host.
	resp, err = http.Get(base + "/api/socket?transport=polling")
	require.NoError(t, err)
	resp.Body.Close()
	require.NotNil(t, l.Current())
	assert.Equal(t, "127.0.0.1:0", l.Current().Host())

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "realtime_hub_connections_total"))
}

func TestServer_ListenFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := &Server{Server: &http.Server{Addr: ln.Addr().String()}, logger: discard}
	assert.Error(t, srv.Listen())
}
