package model

// Transport is the negotiated delivery mode of a connection.
type Transport string

const (
	TransportPolling   Transport = "polling"
	TransportWebsocket Transport = "websocket"
)

func (t Transport) Valid() bool {
	return t == TransportPolling || t == TransportWebsocket
}

func (t Transport) String() string { return string(t) }
