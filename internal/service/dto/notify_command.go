package dto

import (
	"errors"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

// NotifyCommand is published by other services that want a realtime push.
// An empty role means broadcast to every live connection.
type NotifyCommand struct {
	Role     model.Role          `json:"role,omitempty"`
	TargetID string              `json:"target_id,omitempty"`
	Event    string              `json:"event,omitempty"`
	Data     *model.Notification `json:"data"`
}

func (c *NotifyCommand) IsBroadcast() bool { return c.Role == "" }

// Validate rejects commands that cannot be routed.
func (c *NotifyCommand) Validate() error {
	if c.IsBroadcast() {
		if c.TargetID != "" {
			return errors.New("notify command: target_id without role")
		}
		return nil
	}
	if !c.Role.Valid() {
		return errors.New("notify command: unknown role " + string(c.Role))
	}
	if c.TargetID == "" {
		return errors.New("notify command: target_id is required")
	}
	return nil
}
