package model

import (
	"encoding/json"
	"time"
)

// Notification is the application payload delivered to peers.
//
// Type, when set, overrides the default event name of the dispatch call.
// Extra holds arbitrary caller fields and is flattened into the top-level
// JSON object on the wire.
type Notification struct {
	Message   string
	Type      string
	Timestamp string
	From      string
	Extra     map[string]any
}

// NewNotification stamps a notification with the current time.
func NewNotification(from, message string) *Notification {
	return &Notification{
		Message:   message,
		From:      from,
		Timestamp: Now(),
	}
}

var reservedKeys = map[string]struct{}{
	"message":   {},
	"type":      {},
	"timestamp": {},
	"from":      {},
}

func (n Notification) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Extra)+4)
	for k, v := range n.Extra {
		if _, reserved := reservedKeys[k]; !reserved {
			out[k] = v
		}
	}
	out["message"] = n.Message
	out["timestamp"] = n.Timestamp
	out["from"] = n.From
	if n.Type != "" {
		out["type"] = n.Type
	}
	return json.Marshal(out)
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*n = Notification{}
	n.Message, _ = raw["message"].(string)
	n.Type, _ = raw["type"].(string)
	n.Timestamp, _ = raw["timestamp"].(string)
	n.From, _ = raw["from"].(string)

	for k := range reservedKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		n.Extra = raw
	}
	return nil
}

// Now formats the current time the way every payload timestamp is written.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
