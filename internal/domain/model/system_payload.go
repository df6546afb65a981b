package model

// ConnectedPayload acknowledges a freshly created connection.
type ConnectedPayload struct {
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	Transport Transport `json:"transport"`
}

// JoinedRoomPayload acknowledges a successful room join.
type JoinedRoomPayload struct {
	Room      string `json:"room"`
	Type      Role   `json:"type"`
	Timestamp string `json:"timestamp"`
}

// DisconnectedPayload is sent before the server closes a stream.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload is written on a connection when a control message is rejected.
type ErrorPayload struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}

const (
	EventConnected    = "connected"
	EventJoinedRoom   = "joined-room"
	EventPong         = "pong"
	EventTestMessage  = "test-message"
	EventDisconnected = "disconnected"
	EventError        = "error"
)
