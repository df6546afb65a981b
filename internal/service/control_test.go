package service

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

func frame(event, data string) model.InboundFrame {
	f := model.InboundFrame{Event: event}
	if data != "" {
		f.Data = json.RawMessage(data)
	}
	return f
}

func TestHandleFrame_Join(t *testing.T) {
	tests := []struct {
		name string
		in   model.InboundFrame
		room string
		role model.Role
	}{
		{"restaurant string id", frame(model.ControlJoinRestaurant, `"42"`), "restaurant-42", model.RoleRestaurant},
		{"customer numeric id", frame(model.ControlJoinCustomer, `7`), "customer-7", model.RoleCustomer},
		{"rider padded id", frame(model.ControlJoinRider, `" r1 "`), "rider-r1", model.RoleRider},
		{"exponent id", frame(model.ControlJoinRestaurant, `1e3`), "restaurant-1000", model.RoleRestaurant},
		{"fractional id", frame(model.ControlJoinCustomer, `1.50`), "customer-1.5", model.RoleCustomer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(t), nil)
			srv := f.start(t)
			conn := f.open(t, srv)

			require.NoError(t, srv.HandleFrame(conn, tt.in))

			ev := next(t, conn)
			require.Equal(t, model.EventJoinedRoom, ev.GetName())
			payload := ev.GetPayload().(*model.JoinedRoomPayload)
			assert.Equal(t, tt.room, payload.Room)
			assert.Equal(t, tt.role, payload.Type)
			assert.NotEmpty(t, payload.Timestamp)
			assert.Equal(t, []string{tt.room}, srv.Hub().Rooms(conn.GetID()))
		})
	}
}

func TestHandleFrame_JoinBadID(t *testing.T) {
	f := newFixture(t, testConfig(t), nil)
	srv := f.start(t)
	conn := f.open(t, srv)

	for _, data := range []string{"", `""`, `{"id":1}`, `null`} {
		err := srv.HandleFrame(conn, frame(model.ControlJoinRestaurant, data))
		assert.ErrorIs(t, err, ErrBadControl, data)
		assert.Equal(t, model.EventError, next(t, conn).GetName())
	}
	assert.Empty(t, srv.Hub().Rooms(conn.GetID()))
}

func TestHandleFrame_Ping(t *testing.T) {
	f := newFixture(t, testConfig(t), nil)
	srv := f.start(t)
	conn := f.open(t, srv)

	require.NoError(t, srv.HandleFrame(conn, frame(model.ControlPing, "")))
	assert.Equal(t, model.EventPong, next(t, conn).GetName())
}

func TestHandleFrame_TestMessageEcho(t *testing.T) {
	f := newFixture(t, testConfig(t), nil)
	srv := f.start(t)
	conn := f.open(t, srv)

	require.NoError(t, srv.HandleFrame(conn, frame(model.ControlTestMessage, `{"hello":"world"}`)))
	ev := next(t, conn)
	require.Equal(t, model.EventTestMessage, ev.GetName())

	payload := ev.GetPayload().(map[string]any)
	assert.Equal(t, "world", payload["hello"])
	assert.Equal(t, true, payload["echo"])
	assert.NotEmpty(t, payload["timestamp"])
	assert.NotZero(t, payload["receivedAt"])

	require.NoError(t, srv.HandleFrame(conn, frame(model.ControlTestMessage, `"plain"`)))
	payload = next(t, conn).GetPayload().(map[string]any)
	assert.Equal(t, json.RawMessage(`"plain"`), payload["data"])
	assert.Equal(t, true, payload["echo"])
}

func TestHandleFrame_Disconnect(t *testing.T) {
	for event, reason := range map[string]string{
		model.ControlDisconnect: "client_disconnect",
		model.ControlError:      "client_error",
	} {
		t.Run(event, func(t *testing.T) {
			f := newFixture(t, testConfig(t), nil)
			srv := f.start(t)
			conn := f.open(t, srv)
			f.join(t, srv, conn, model.RoleCustomer, "7")

			require.NoError(t, srv.HandleFrame(conn, frame(event, `"bye"`)))

			<-conn.Done()
			assert.Equal(t, reason, conn.Reason())
			assert.Empty(t, srv.Hub().Members("customer-7"))
		})
	}
}

func TestHandleFrame_Unknown(t *testing.T) {
	f := newFixture(t, testConfig(t), nil)
	srv := f.start(t)
	conn := f.open(t, srv)

	err := srv.HandleFrame(conn, frame("dance", ""))
	assert.ErrorIs(t, err, ErrUnknownControl)
	assert.True(t, empty(conn), "unknown messages are ignored")

	_, ok := srv.Lookup(conn.GetID().String())
	assert.True(t, ok, "connection survives")
}

func TestHandleFrame_RateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.Socket.MessageRate = 0.001
	cfg.Socket.MessageBurst = 2
	f := newFixture(t, cfg, nil)
	srv := f.start(t)
	conn := f.open(t, srv)

	require.NoError(t, srv.HandleFrame(conn, frame(model.ControlPing, "")))
	require.NoError(t, srv.HandleFrame(conn, frame(model.ControlPing, "")))
	assert.ErrorIs(t, srv.HandleFrame(conn, frame(model.ControlPing, "")), ErrRateLimited)

	assert.Equal(t, float64(1), counterValue(t, f.metrics.ControlMessages.WithLabelValues(model.ControlPing, "rate_limited")))
}

func TestHandleFrame_ControlLabelsBounded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Socket.MessageRate = 0.001
	cfg.Socket.MessageBurst = 1
	f := newFixture(t, cfg, nil)
	srv := f.start(t)
	conn := f.open(t, srv)

	for i := 0; i < 200; i++ {
		_ = srv.HandleFrame(conn, frame(fmt.Sprintf("junk-%d", i), ""))
	}

	assert.Equal(t, 2, testutil.CollectAndCount(f.metrics.ControlMessages))
	assert.Equal(t, float64(1), counterValue(t, f.metrics.ControlMessages.WithLabelValues("unknown", "rejected")))
	assert.Equal(t, float64(199), counterValue(t, f.metrics.ControlMessages.WithLabelValues("unknown", "rate_limited")))
}
