package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/webitel/realtime-hub/internal/domain/model"
	"github.com/webitel/realtime-hub/internal/domain/registry"
	"github.com/webitel/realtime-hub/internal/handler/marshaller"
	wsmarshaller "github.com/webitel/realtime-hub/internal/handler/marshaller/ws"
	"github.com/webitel/realtime-hub/internal/service"
)

// writeWait is the deadline for a single write to a peer.
const writeWait = 10 * time.Second

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrStreamAttached = errors.New("session already has a websocket stream")
)

// WSHandler serves the persistent streaming transport.
type WSHandler struct {
	logger *slog.Logger
}

func NewWSHandler(logger *slog.Logger) *WSHandler {
	return &WSHandler{logger: logger}
}

// Serve upgrades the request. With a sid the existing polling session is
// upgraded in place, otherwise a new session is opened on the stream.
// A session is served by at most one stream.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request, srv *service.Server) {
	cfg := srv.Config()

	var conn registry.Connector
	if sid := r.URL.Query().Get("sid"); sid != "" {
		c, ok := srv.Lookup(sid)
		if !ok {
			marshaller.WriteError(w, http.StatusBadRequest, ErrUnknownSession)
			return
		}
		select {
		case <-c.Streamed():
			marshaller.WriteError(w, http.StatusBadRequest, ErrStreamAttached)
			return
		default:
		}
		conn = c
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: cfg.UpgradeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      checkOrigin(cfg.CORSOrigin),
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer sock.Close()

	if conn == nil {
		if conn, err = srv.Open(model.TransportWebsocket); err != nil {
			h.logger.Error("ws session rejected", "err", err)
			_ = sock.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session rejected"),
				time.Now().Add(writeWait))
			return
		}
	}
	if !conn.ClaimStream() {
		// [RACE] another stream claimed the session after the pre-check.
		h.logger.Warn("ws duplicate stream rejected", "conn_id", conn.GetID())
		_ = sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ErrStreamAttached.Error()),
			time.Now().Add(writeWait))
		return
	}
	srv.Attach(conn, model.TransportWebsocket)

	l := h.logger.With("conn_id", conn.GetID())
	l.Info("ws opened")

	go h.readPump(sock, conn, srv, l)
	h.writePump(sock, conn, srv, l)
}

// readPump applies inbound control messages and keeps the read deadline
// moving while the peer answers pings. Blocks until the stream fails.
func (h *WSHandler) readPump(sock *websocket.Conn, conn registry.Connector, srv *service.Server, l *slog.Logger) {
	cfg := srv.Config()
	reason := "transport_close"
	defer func() { srv.Close(conn, reason) }()

	sock.SetReadLimit(cfg.MaxPayload)
	_ = sock.SetReadDeadline(time.Now().Add(cfg.PingTimeout))
	sock.SetPongHandler(func(string) error {
		conn.Touch()
		return sock.SetReadDeadline(time.Now().Add(cfg.PingTimeout))
	})

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "transport_error"
				l.Warn("ws read failed", "err", err)
			}
			return
		}
		_ = sock.SetReadDeadline(time.Now().Add(cfg.PingTimeout))

		frames, err := wsmarshaller.UnmarshallControl(data)
		if err != nil {
			// A frame that does not decode ends the session.
			reason = "parse_error"
			l.Warn("ws malformed control message", "err", err)
			return
		}
		for _, f := range frames {
			if err := srv.HandleFrame(conn, f); err != nil {
				l.Warn("ws control message rejected", "event", f.Event, "err", err)
			}
		}
	}
}

// writePump drains the session outbox to the stream and sends heartbeats.
func (h *WSHandler) writePump(sock *websocket.Conn, conn registry.Connector, srv *service.Server, l *slog.Logger) {
	ticker := time.NewTicker(srv.Config().PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			// [TERMINATION_SENTINEL] tell the peer why before closing the stream.
			h.write(sock, model.NewEvent(model.EventDisconnected, &model.DisconnectedPayload{Reason: conn.Reason()}))
			_ = sock.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, conn.Reason()),
				time.Now().Add(writeWait))
			l.Info("ws closed", "reason", conn.Reason())
			return

		case ev := <-conn.Recv():
			if err := h.write(sock, ev); err != nil {
				l.Warn("ws send failed", "event", ev.GetName(), "err", err)
				srv.Close(conn, "transport_error")
				return
			}

		case <-ticker.C:
			_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				srv.Close(conn, "transport_error")
				return
			}
		}
	}
}

func (h *WSHandler) write(sock *websocket.Conn, ev model.Eventer) error {
	data, err := wsmarshaller.MarshallDeliveryEvent(ev)
	if err != nil {
		h.logger.Error("failed to marshal ws event", "event", ev.GetName(), "err", err)
		return nil
	}
	_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
	return sock.WriteMessage(websocket.TextMessage, data)
}

func checkOrigin(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "" || allowed == "*" {
			return true
		}
		return r.Header.Get("Origin") == allowed
	}
}
