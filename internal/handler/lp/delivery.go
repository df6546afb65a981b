package lp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/webitel/realtime-hub/internal/domain/model"
	"github.com/webitel/realtime-hub/internal/domain/registry"
	"github.com/webitel/realtime-hub/internal/handler/marshaller"
	lpmarshaller "github.com/webitel/realtime-hub/internal/handler/marshaller/lp"
	"github.com/webitel/realtime-hub/internal/service"
)

// maxBatch caps how many queued events one poll response carries.
const maxBatch = 16

var ErrSessionUpgraded = errors.New("session upgraded to websocket")

// LPHandler serves the repeated short-lived request transport.
type LPHandler struct {
	logger *slog.Logger
}

func NewLPHandler(logger *slog.Logger) *LPHandler {
	return &LPHandler{logger: logger}
}

// Handshake opens a polling session and describes it to the peer.
// The connected acknowledgement waits in the outbox for the first poll.
func (h *LPHandler) Handshake(w http.ResponseWriter, r *http.Request, srv *service.Server) {
	conn, err := srv.Open(model.TransportPolling)
	if err != nil {
		marshaller.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	data, err := lpmarshaller.MarshallHandshake(conn.GetID().String(), srv.Config())
	if err != nil {
		marshaller.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Poll handles the long-polling request.
// It holds the connection until an event arrives or the ping interval passes.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request, srv *service.Server, conn registry.Connector) {
	select {
	case <-conn.Streamed():
		marshaller.WriteError(w, http.StatusBadRequest, ErrSessionUpgraded)
		return
	default:
	}
	srv.Attach(conn, model.TransportPolling)
	defer conn.Touch()

	timer := time.NewTimer(srv.Config().PingInterval)
	defer timer.Stop()

	var events []model.Eventer

	select {
	case <-r.Context().Done():
		// Client disconnected.
		return

	case <-conn.Done():
		events = append(events, model.NewEvent(model.EventDisconnected, &model.DisconnectedPayload{Reason: conn.Reason()}))

	case <-conn.Streamed():
		// Upgraded mid-poll: the websocket stream owns the outbox from now on.
		marshaller.WriteError(w, http.StatusBadRequest, ErrSessionUpgraded)
		return

	case <-timer.C:
		// Heartbeat: the peer re-polls to prove it is alive.
		w.WriteHeader(http.StatusNoContent)
		return

	case ev := <-conn.Recv():
		events = append(events, ev)

		// Drain remaining events from buffer to provide batching.
	drainLoop:
		for len(events) < maxBatch {
			select {
			case next := <-conn.Recv():
				events = append(events, next)
			default:
				break drainLoop
			}
		}
	}

	data, err := lpmarshaller.MarshallEvents(events)
	if err != nil {
		marshaller.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Push accepts control messages sent by a polling peer.
func (h *LPHandler) Push(w http.ResponseWriter, r *http.Request, srv *service.Server, conn registry.Connector) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, srv.Config().MaxPayload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			marshaller.WriteError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		marshaller.WriteError(w, http.StatusBadRequest, err)
		return
	}

	frames, err := marshaller.DecodeFrames(body)
	if err != nil {
		h.logger.Warn("lp malformed control message", "conn_id", conn.GetID(), "err", err)
		srv.Close(conn, "parse_error")
		marshaller.WriteError(w, http.StatusBadRequest, err)
		return
	}

	for _, f := range frames {
		if err := srv.HandleFrame(conn, f); err != nil {
			h.logger.Warn("lp control message rejected", "conn_id", conn.GetID(), "event", f.Event, "err", err)
		}
	}

	marshaller.WriteJSON(w, http.StatusOK, marshaller.Status{Status: "ok"})
}
