package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/webitel/realtime-hub/internal/domain/model"
	"github.com/webitel/realtime-hub/internal/domain/registry"
)

var (
	ErrRateLimited    = errors.New("realtime: control message rate exceeded")
	ErrUnknownControl = errors.New("realtime: unknown control message")
	ErrBadControl     = errors.New("realtime: malformed control message")
)

// HandleFrame applies one inbound control message from conn. Errors stay
// scoped to conn: the caller logs them and keeps serving the session, except
// for disconnect and error which destroy it.
func (s *Server) HandleFrame(conn registry.Connector, frame model.InboundFrame) error {
	conn.Touch()

	if !conn.Allow() {
		s.countControl(frame.Event, "rate_limited")
		return ErrRateLimited
	}

	err := s.handleFrame(conn, frame)
	switch {
	case err == nil:
		s.countControl(frame.Event, "ok")
	case errors.Is(err, ErrUnknownControl):
		s.countControl(frame.Event, "rejected")
	default:
		s.countControl(frame.Event, "rejected")
		conn.Send(model.NewEvent(model.EventError, &model.ErrorPayload{
			Event: frame.Event,
			Error: err.Error(),
		}))
	}
	return err
}

func (s *Server) handleFrame(conn registry.Connector, frame model.InboundFrame) error {
	if role, ok := model.JoinControls[frame.Event]; ok {
		id, err := decodeID(frame.Data)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadControl, frame.Event, err)
		}
		_, err = s.Join(conn, role, id)
		return err
	}

	switch frame.Event {
	case model.ControlPing:
		conn.Send(model.NewEvent(model.EventPong, nil))
		return nil

	case model.ControlTestMessage:
		conn.Send(model.NewEvent(model.EventTestMessage, echo(frame.Data)))
		return nil

	case model.ControlDisconnect:
		reason := decodeText(frame.Data)
		s.logger.Info("client requested disconnect", "conn_id", conn.GetID(), "reason", reason)
		s.Close(conn, "client_disconnect")
		return nil

	case model.ControlError:
		s.logger.Warn("client reported error", "conn_id", conn.GetID(), "err", decodeText(frame.Data))
		s.Close(conn, "client_error")
		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnknownControl, frame.Event)
}

// countControl labels by known control names only; peers choose event
// names freely.
func (s *Server) countControl(event, outcome string) {
	s.metrics.ControlMessages.WithLabelValues(controlLabel(event), outcome).Inc()
}

func controlLabel(event string) string {
	if _, ok := model.JoinControls[event]; ok {
		return event
	}
	switch event {
	case model.ControlPing, model.ControlTestMessage, model.ControlDisconnect, model.ControlError:
		return event
	}
	return "unknown"
}

// decodeID accepts a JSON string or number and rejects empty ids. Numbers
// are rendered in plain decimal form, so 1e3 and 1000 name the same room.
func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("missing id")
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		str = strings.TrimSpace(str)
		if str == "" {
			return "", errors.New("empty id")
		}
		return str, nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if i, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		if f, err := strconv.ParseFloat(num.String(), 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
	}
	return "", errors.New("id must be a string or a number")
}

func decodeText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}

// echo merges the diagnostic fields into the peer's test payload. A non
// object payload is returned under "data".
func echo(raw json.RawMessage) map[string]any {
	out := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil || out == nil {
			out = map[string]any{"data": json.RawMessage(raw)}
		}
	}
	out["echo"] = true
	out["timestamp"] = model.Now()
	out["receivedAt"] = time.Now().UnixMilli()
	return out
}
