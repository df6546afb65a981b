package lpmarshaller

import (
	"encoding/json"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/internal/domain/model"
	"github.com/webitel/realtime-hub/internal/handler/marshaller"
)

// Response defines the top-level JSON object to support event batching.
type Response struct {
	Events []marshaller.Frame `json:"events"`
}

// Handshake is returned by the first polling request of a session.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

// MarshallEvents converts a slice of domain events into a single JSON batch.
func MarshallEvents(events []model.Eventer) ([]byte, error) {
	res := Response{
		Events: make([]marshaller.Frame, 0, len(events)),
	}
	for _, ev := range events {
		res.Events = append(res.Events, marshaller.NewFrame(ev))
	}
	return json.Marshal(res)
}

// MarshallHandshake describes the session and the upgrade options to the peer.
func MarshallHandshake(sid string, cfg config.SocketConfig) ([]byte, error) {
	hs := Handshake{
		SID:          sid,
		Upgrades:     []string{},
		PingInterval: cfg.PingInterval.Milliseconds(),
		PingTimeout:  cfg.PingTimeout.Milliseconds(),
		MaxPayload:   cfg.MaxPayload,
	}
	if cfg.HasTransport(string(model.TransportWebsocket)) {
		hs.Upgrades = append(hs.Upgrades, string(model.TransportWebsocket))
	}
	return json.Marshal(hs)
}
