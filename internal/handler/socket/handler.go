// Package socket mounts the realtime endpoint. Every request to it first
// makes sure the realtime server is running, then dispatches to the polling
// or the streaming transport.
package socket

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/internal/domain/model"
	"github.com/webitel/realtime-hub/internal/domain/registry"
	"github.com/webitel/realtime-hub/internal/handler/lp"
	"github.com/webitel/realtime-hub/internal/handler/marshaller"
	"github.com/webitel/realtime-hub/internal/handler/ws"
	"github.com/webitel/realtime-hub/internal/service"
)

var ErrMissingSession = errors.New("sid is required")

type Handler struct {
	cfg     *config.Config
	starter service.Starter
	missed  service.MissedRecorder
	ws      *ws.WSHandler
	lp      *lp.LPHandler
	logger  *slog.Logger
}

func NewHandler(cfg *config.Config, starter service.Starter, missed service.MissedRecorder, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		starter: starter,
		missed:  missed,
		ws:      ws.NewWSHandler(logger),
		lp:      lp.NewLPHandler(logger),
		logger:  logger,
	}
}

// Mount registers the endpoint under the configured socket path.
func (h *Handler) Mount(r chi.Router) {
	r.Route(h.cfg.Socket.Path, func(r chi.Router) {
		r.Use(CORS(h.cfg.Socket.CORSOrigin))
		r.Get("/", h.Serve)
		r.Post("/", h.Push)
		r.Get("/stats", h.Stats)
	})
}

// Serve handles handshakes, long polls and websocket upgrades.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	srv, ok := h.start(w, r)
	if !ok {
		return
	}

	transport, err := negotiate(r, srv.Config())
	if err != nil {
		marshaller.WriteError(w, http.StatusBadRequest, err)
		return
	}

	if transport == model.TransportWebsocket {
		h.ws.Serve(w, r, srv)
		return
	}

	sid := r.URL.Query().Get("sid")
	if sid == "" {
		h.lp.Handshake(w, r, srv)
		return
	}

	conn, ok := h.session(w, srv, sid)
	if !ok {
		return
	}
	h.lp.Poll(w, r, srv, conn)
}

// Push receives control messages from polling peers.
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	srv, ok := h.start(w, r)
	if !ok {
		return
	}

	sid := r.URL.Query().Get("sid")
	if sid == "" {
		marshaller.WriteError(w, http.StatusBadRequest, ErrMissingSession)
		return
	}

	conn, ok := h.session(w, srv, sid)
	if !ok {
		return
	}
	h.lp.Push(w, r, srv, conn)
}

type statsResponse struct {
	Running bool            `json:"running"`
	Host    string          `json:"host,omitempty"`
	Hub     *model.HubStats `json:"hub,omitempty"`
}

// Stats reports the hub state. It never starts the server.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	srv := h.starter.Current()
	if srv == nil {
		marshaller.WriteJSON(w, http.StatusOK, statsResponse{Running: false})
		return
	}

	st := srv.Stats()
	st.MissedByRoom = h.missed.Snapshot()
	marshaller.WriteJSON(w, http.StatusOK, statsResponse{
		Running: true,
		Host:    srv.Host(),
		Hub:     &st,
	})
}

// start lazily creates the realtime server bound to the serving host.
// Construction failures are answered with 200 and an error status.
func (h *Handler) start(w http.ResponseWriter, r *http.Request) (*service.Server, bool) {
	host, _ := r.Context().Value(http.ServerContextKey).(*http.Server)

	srv, err := h.starter.EnsureStarted(host)
	if err != nil {
		h.logger.Error("realtime server start failed", "err", err)
		marshaller.WriteError(w, http.StatusOK, err)
		return nil, false
	}
	return srv, true
}

func (h *Handler) session(w http.ResponseWriter, srv *service.Server, sid string) (registry.Connector, bool) {
	conn, ok := srv.Lookup(sid)
	if !ok {
		marshaller.WriteError(w, http.StatusBadRequest, ws.ErrUnknownSession)
		return nil, false
	}
	return conn, true
}

func negotiate(r *http.Request, cfg config.SocketConfig) (model.Transport, error) {
	t := model.Transport(r.URL.Query().Get("transport"))
	if t == "" {
		t = model.TransportPolling
		if websocket.IsWebSocketUpgrade(r) {
			t = model.TransportWebsocket
		}
	}

	if !t.Valid() || !cfg.HasTransport(t.String()) {
		return "", fmt.Errorf("transport %q not supported", t)
	}
	return t, nil
}
