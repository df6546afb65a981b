package model

import (
	"fmt"
	"strings"
)

// Role identifies the actor class a room belongs to.
type Role string

const (
	RoleRestaurant Role = "restaurant"
	RoleCustomer   Role = "customer"
	RoleRider      Role = "rider"
)

const (
	EventNewOrder       = "new-order"
	EventOrderUpdate    = "order-update"
	EventDeliveryUpdate = "delivery-update"
	EventBroadcast      = "broadcast-message"
)

// DefaultEvents is the event name emitted per role when the payload does not
// carry its own type.
var DefaultEvents = map[Role]string{
	RoleRestaurant: EventNewOrder,
	RoleCustomer:   EventOrderUpdate,
	RoleRider:      EventDeliveryUpdate,
}

// Roles lists every role in a stable order.
var Roles = []Role{RoleRestaurant, RoleCustomer, RoleRider}

func (r Role) Valid() bool {
	_, ok := DefaultEvents[r]
	return ok
}

// DefaultEvent returns the event name used when the caller does not override it.
func (r Role) DefaultEvent() string { return DefaultEvents[r] }

// RoomKey builds the topic key "<role>-<id>".
func RoomKey(role Role, id string) string {
	return fmt.Sprintf("%s-%s", role, id)
}

// ParseRoomKey splits a topic key back into its role and id.
func ParseRoomKey(key string) (Role, string, bool) {
	prefix, id, ok := strings.Cut(key, "-")
	if !ok || id == "" {
		return "", "", false
	}
	role := Role(prefix)
	if !role.Valid() {
		return "", "", false
	}
	return role, id, true
}
