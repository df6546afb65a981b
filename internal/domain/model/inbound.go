package model

import "encoding/json"

// Control messages a peer may send after connecting.
const (
	ControlJoinRestaurant = "join-restaurant"
	ControlJoinCustomer   = "join-customer"
	ControlJoinRider      = "join-rider"
	ControlPing           = "ping"
	ControlTestMessage    = "test-message"
	ControlDisconnect     = "disconnect"
	ControlError          = "error"
)

// JoinControls maps each join message to the role it subscribes to.
var JoinControls = map[string]Role{
	ControlJoinRestaurant: RoleRestaurant,
	ControlJoinCustomer:   RoleCustomer,
	ControlJoinRider:      RoleRider,
}

// InboundFrame is one peer -> server message. Both transports use it.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
