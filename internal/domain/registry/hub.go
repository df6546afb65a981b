/*
Package registry owns every live connection of the process and the topic rooms
they joined.

Key Architectural Concepts:
  - Single Owner: connections and room membership are mutated only by the Hub
    loop goroutine. Public methods ship closures to that loop and wait for them,
    so no two mutations interleave and no lock guards the maps.
  - Implicit Rooms: a room exists while it has members. Joining creates it,
    the last leave deletes it, and an absent room behaves as an empty one.
  - Non-blocking Fan-out: delivery enqueues into each connection's outbox and
    never waits on a slow consumer.
*/
package registry

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

var (
	ErrHubStopped        = errors.New("registry: hub stopped")
	ErrUnknownConnection = errors.New("registry: unknown connection")
)

// Hubber defines the gateway for session management and room routing.
type Hubber interface {
	Register(conn Connector) error
	Lookup(connID uuid.UUID) (Connector, bool)
	Destroy(connID uuid.UUID, reason string) bool

	Join(connID uuid.UUID, room string) error
	Leave(connID uuid.UUID, room string) error
	LeaveAll(connID uuid.UUID) error
	Rooms(connID uuid.UUID) []string
	Members(room string) []uuid.UUID

	Send(room string, ev model.Eventer) (int, error)
	SendToAll(ev model.Eventer) (int, error)

	Stats() model.HubStats
	Shutdown()
}

type hubConfig struct {
	sweepInterval  time.Duration
	connectTimeout time.Duration
	pingTimeout    time.Duration
}

// session is the loop-owned record of one connection.
type session struct {
	conn  Connector
	rooms map[string]struct{}
}

// Hub implements the Connection Registry and the Room/Topic Manager.
type Hub struct {
	config    hubConfig
	logger    *slog.Logger
	onDestroy DestroyHook

	ops      chan func()
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// [LOOP_OWNED] touched only from loop()
	sessions  map[uuid.UUID]*session
	rooms     map[string]map[uuid.UUID]Connector
	delivered uint64
	dropped   uint64
	startedAt time.Time
}

var _ Hubber = (*Hub)(nil)

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			sweepInterval:  5 * time.Second,
			connectTimeout: 45 * time.Second,
			pingTimeout:    60 * time.Second,
		},
		logger:    slog.Default(),
		ops:       make(chan func()),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		sessions:  make(map[uuid.UUID]*session),
		rooms:     make(map[string]map[uuid.UUID]Connector),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}

	go h.loop()
	return h
}

func (h *Hub) loop() {
	defer close(h.stopped)

	ticker := time.NewTicker(h.config.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			h.destroyAll("server_shutdown")
			return
		case op := <-h.ops:
			op()
		case now := <-ticker.C:
			h.sweep(now)
		}
	}
}

// exec runs fn on the loop and waits for it to finish.
func (h *Hub) exec(fn func()) error {
	finished := make(chan struct{})
	select {
	case h.ops <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubStopped
	}

	select {
	case <-finished:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

func (h *Hub) Register(conn Connector) error {
	return h.exec(func() {
		if _, ok := h.sessions[conn.GetID()]; ok {
			return
		}
		h.sessions[conn.GetID()] = &session{conn: conn, rooms: make(map[string]struct{})}
	})
}

func (h *Hub) Lookup(connID uuid.UUID) (conn Connector, ok bool) {
	_ = h.exec(func() {
		var s *session
		if s, ok = h.sessions[connID]; ok {
			conn = s.conn
		}
	})
	return conn, ok
}

// Destroy prunes the connection from every room before closing it.
// Returns false when the connection was not registered.
func (h *Hub) Destroy(connID uuid.UUID, reason string) (found bool) {
	_ = h.exec(func() {
		found = h.destroy(connID, reason)
	})
	return found
}

// Join is idempotent: re-joining a room leaves a single membership entry.
func (h *Hub) Join(connID uuid.UUID, room string) (err error) {
	execErr := h.exec(func() {
		s, ok := h.sessions[connID]
		if !ok {
			err = ErrUnknownConnection
			return
		}
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[uuid.UUID]Connector)
			h.rooms[room] = members
		}
		members[connID] = s.conn
		s.rooms[room] = struct{}{}
	})
	if execErr != nil {
		return execErr
	}
	return err
}

func (h *Hub) Leave(connID uuid.UUID, room string) (err error) {
	execErr := h.exec(func() {
		s, ok := h.sessions[connID]
		if !ok {
			err = ErrUnknownConnection
			return
		}
		h.leave(s, connID, room)
	})
	if execErr != nil {
		return execErr
	}
	return err
}

func (h *Hub) LeaveAll(connID uuid.UUID) (err error) {
	execErr := h.exec(func() {
		s, ok := h.sessions[connID]
		if !ok {
			err = ErrUnknownConnection
			return
		}
		for room := range s.rooms {
			h.leave(s, connID, room)
		}
	})
	if execErr != nil {
		return execErr
	}
	return err
}

// Rooms returns the sorted room keys connID belongs to.
func (h *Hub) Rooms(connID uuid.UUID) (rooms []string) {
	_ = h.exec(func() {
		s, ok := h.sessions[connID]
		if !ok {
			return
		}
		rooms = make([]string, 0, len(s.rooms))
		for room := range s.rooms {
			rooms = append(rooms, room)
		}
	})
	sort.Strings(rooms)
	return rooms
}

func (h *Hub) Members(room string) (ids []uuid.UUID) {
	_ = h.exec(func() {
		for id := range h.rooms[room] {
			ids = append(ids, id)
		}
	})
	return ids
}

// Send delivers ev to every current member of room and returns how many
// outboxes accepted it. An empty or unknown room yields 0 and no error.
func (h *Hub) Send(room string, ev model.Eventer) (n int, err error) {
	err = h.exec(func() {
		for _, conn := range h.rooms[room] {
			if h.deliver(conn, ev) {
				n++
			}
		}
	})
	return n, err
}

// SendToAll delivers ev to every live connection regardless of rooms.
func (h *Hub) SendToAll(ev model.Eventer) (n int, err error) {
	err = h.exec(func() {
		for _, s := range h.sessions {
			if h.deliver(s.conn, ev) {
				n++
			}
		}
	})
	return n, err
}

func (h *Hub) Stats() (st model.HubStats) {
	st.ByTransport = make(map[string]int)
	_ = h.exec(func() {
		st.Connections = len(h.sessions)
		st.Rooms = len(h.rooms)
		st.Delivered = h.delivered
		st.Dropped = h.dropped
		for _, s := range h.sessions {
			st.ByTransport[s.conn.GetTransport().String()]++
		}
	})
	st.Uptime = time.Since(h.startedAt)
	return st
}

// Shutdown destroys every connection and stops the loop. Safe to call twice.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.done) })
	<-h.stopped
}

// --- loop-owned helpers -----------------------------------------------------

func (h *Hub) deliver(conn Connector, ev model.Eventer) bool {
	if conn.Send(ev) {
		h.delivered++
		return true
	}
	h.dropped++
	return false
}

func (h *Hub) leave(s *session, connID uuid.UUID, room string) {
	delete(s.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) destroy(connID uuid.UUID, reason string) bool {
	s, ok := h.sessions[connID]
	if !ok {
		return false
	}
	for room := range s.rooms {
		h.leave(s, connID, room)
	}
	delete(h.sessions, connID)
	s.conn.Close(reason)

	if h.onDestroy != nil {
		h.onDestroy(s.conn, reason)
	}
	return true
}

func (h *Hub) destroyAll(reason string) {
	for id := range h.sessions {
		h.destroy(id, reason)
	}
}

// sweep is the [JANITOR]: it enforces the connect and ping deadlines.
func (h *Hub) sweep(now time.Time) {
	for id, s := range h.sessions {
		switch {
		case !s.conn.Attached() && now.Sub(s.conn.CreatedAt()) > h.config.connectTimeout:
			h.logger.Info("connection evicted", "conn_id", id, "reason", "connect_timeout")
			h.destroy(id, "connect_timeout")
		case s.conn.Attached() && now.Sub(s.conn.LastActivity()) > h.config.pingTimeout:
			h.logger.Info("connection evicted", "conn_id", id, "reason", "ping_timeout")
			h.destroy(id, "ping_timeout")
		}
	}
}
