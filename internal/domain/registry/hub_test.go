package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

func newConn(t *testing.T, buffer int) Connector {
	t.Helper()
	return NewConnector(context.Background(), model.TransportPolling, ConnectOptions{BufferSize: buffer})
}

func newHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h := NewHub(opts...)
	t.Cleanup(h.Shutdown)
	return h
}

func drain(c Connector) []model.Eventer {
	var out []model.Eventer
	for {
		select {
		case ev := <-c.Recv():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	h := newHub(t)
	c := newConn(t, 8)
	require.NoError(t, h.Register(c))

	require.NoError(t, h.Join(c.GetID(), "restaurant-42"))
	require.NoError(t, h.Join(c.GetID(), "restaurant-42"))

	assert.Equal(t, []uuid.UUID{c.GetID()}, h.Members("restaurant-42"))
	assert.Equal(t, []string{"restaurant-42"}, h.Rooms(c.GetID()))

	n, err := h.Send("restaurant-42", model.NewEvent("new-order", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, drain(c), 1)
}

func TestHub_JoinUnknownConnection(t *testing.T) {
	h := newHub(t)
	err := h.Join(uuid.New(), "rider-1")
	assert.ErrorIs(t, err, ErrUnknownConnection)
	assert.Empty(t, h.Members("rider-1"))
}

func TestHub_Send(t *testing.T) {
	tests := []struct {
		name  string
		rooms map[string][]string // conn name -> rooms
		room  string
		want  map[string]int
	}{
		{
			name:  "every member receives",
			rooms: map[string][]string{"a": {"restaurant-42"}, "b": {"restaurant-42"}},
			room:  "restaurant-42",
			want:  map[string]int{"a": 1, "b": 1},
		},
		{
			name:  "no cross-room delivery",
			rooms: map[string][]string{"a": {"restaurant-42"}, "b": {"customer-7"}},
			room:  "restaurant-42",
			want:  map[string]int{"a": 1, "b": 0},
		},
		{
			name:  "empty room reaches nobody",
			rooms: map[string][]string{"a": {"customer-7"}},
			room:  "rider-99",
			want:  map[string]int{"a": 0},
		},
		{
			name:  "multi-room member",
			rooms: map[string][]string{"a": {"customer-7", "rider-3"}},
			room:  "rider-3",
			want:  map[string]int{"a": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHub(t)
			conns := make(map[string]Connector)
			for name, rooms := range tt.rooms {
				c := newConn(t, 8)
				require.NoError(t, h.Register(c))
				for _, room := range rooms {
					require.NoError(t, h.Join(c.GetID(), room))
				}
				conns[name] = c
			}

			n, err := h.Send(tt.room, model.NewEvent("evt", nil))
			require.NoError(t, err)

			total := 0
			for name, want := range tt.want {
				got := len(drain(conns[name]))
				assert.Equal(t, want, got, "conn %s", name)
				total += want
			}
			assert.Equal(t, total, n)
		})
	}
}

func TestHub_SendToAll(t *testing.T) {
	h := newHub(t)
	a, b := newConn(t, 8), newConn(t, 8)
	require.NoError(t, h.Register(a))
	require.NoError(t, h.Register(b))
	require.NoError(t, h.Join(a.GetID(), "restaurant-1"))

	n, err := h.SendToAll(model.NewEvent(model.EventBroadcast, "hi"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestHub_DestroyPrunesRooms(t *testing.T) {
	var (
		mu      sync.Mutex
		reasons []string
	)
	h := newHub(t, WithDestroyHook(func(_ Connector, reason string) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	}))

	c := newConn(t, 8)
	require.NoError(t, h.Register(c))
	require.NoError(t, h.Join(c.GetID(), "customer-7"))
	require.NoError(t, h.Join(c.GetID(), "rider-3"))

	assert.True(t, h.Destroy(c.GetID(), "client_disconnect"))
	assert.False(t, h.Destroy(c.GetID(), "client_disconnect"))

	assert.Empty(t, h.Members("customer-7"))
	assert.Empty(t, h.Members("rider-3"))
	assert.Equal(t, 0, h.Stats().Rooms)

	_, ok := h.Lookup(c.GetID())
	assert.False(t, ok)

	select {
	case <-c.Done():
	default:
		t.Fatal("destroyed connection must be closed")
	}
	assert.Equal(t, "client_disconnect", c.Reason())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"client_disconnect"}, reasons)
}

func TestHub_LeaveDeletesEmptyRoom(t *testing.T) {
	h := newHub(t)
	a, b := newConn(t, 8), newConn(t, 8)
	require.NoError(t, h.Register(a))
	require.NoError(t, h.Register(b))
	require.NoError(t, h.Join(a.GetID(), "restaurant-42"))
	require.NoError(t, h.Join(b.GetID(), "restaurant-42"))

	require.NoError(t, h.Leave(a.GetID(), "restaurant-42"))
	assert.Equal(t, 1, h.Stats().Rooms)

	require.NoError(t, h.LeaveAll(b.GetID()))
	assert.Equal(t, 0, h.Stats().Rooms)
	assert.Empty(t, h.Rooms(b.GetID()))

	// Both connections stay registered.
	assert.Equal(t, 2, h.Stats().Connections)
}

func TestHub_FullOutboxDropsOnlyForThatConnection(t *testing.T) {
	h := newHub(t)
	slow, fast := newConn(t, 1), newConn(t, 8)
	require.NoError(t, h.Register(slow))
	require.NoError(t, h.Register(fast))
	require.NoError(t, h.Join(slow.GetID(), "rider-1"))
	require.NoError(t, h.Join(fast.GetID(), "rider-1"))

	n1, err := h.Send("rider-1", model.NewEvent("a", nil))
	require.NoError(t, err)
	n2, err := h.Send("rider-1", model.NewEvent("b", nil))
	require.NoError(t, err)

	assert.Equal(t, 2, n1)
	assert.Equal(t, 1, n2)
	assert.Equal(t, uint64(1), slow.Dropped())
	assert.Len(t, drain(fast), 2)

	st := h.Stats()
	assert.Equal(t, uint64(3), st.Delivered)
	assert.Equal(t, uint64(1), st.Dropped)
}

func TestHub_SweepEvictsUnattached(t *testing.T) {
	h := newHub(t,
		WithSweepInterval(10*time.Millisecond),
		WithConnectTimeout(30*time.Millisecond),
		WithPingTimeout(time.Hour),
	)

	idle, attached := newConn(t, 1), newConn(t, 1)
	attached.Attach(model.TransportWebsocket)
	require.NoError(t, h.Register(idle))
	require.NoError(t, h.Register(attached))

	require.Eventually(t, func() bool {
		_, ok := h.Lookup(idle.GetID())
		return !ok
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "connect_timeout", idle.Reason())
	_, ok := h.Lookup(attached.GetID())
	assert.True(t, ok)
}

func TestHub_SweepEvictsSilent(t *testing.T) {
	h := newHub(t,
		WithSweepInterval(10*time.Millisecond),
		WithConnectTimeout(time.Hour),
		WithPingTimeout(30*time.Millisecond),
	)

	c := newConn(t, 1)
	c.Attach(model.TransportPolling)
	require.NoError(t, h.Register(c))

	require.Eventually(t, func() bool {
		select {
		case <-c.Done():
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "ping_timeout", c.Reason())
}

func TestHub_Shutdown(t *testing.T) {
	h := NewHub()
	c := newConn(t, 1)
	require.NoError(t, h.Register(c))

	h.Shutdown()
	h.Shutdown()

	assert.Equal(t, "server_shutdown", c.Reason())
	assert.ErrorIs(t, h.Register(newConn(t, 1)), ErrHubStopped)

	_, err := h.Send("any", model.NewEvent("x", nil))
	assert.ErrorIs(t, err, ErrHubStopped)
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := newHub(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newConn(t, 4)
			if !assert.NoError(t, h.Register(c)) {
				return
			}
			assert.NoError(t, h.Join(c.GetID(), "restaurant-1"))
			_, _ = h.Send("restaurant-1", model.NewEvent("x", nil))
			h.Destroy(c.GetID(), "done")
		}()
	}
	wg.Wait()

	st := h.Stats()
	assert.Equal(t, 0, st.Connections)
	assert.Equal(t, 0, st.Rooms)
}
