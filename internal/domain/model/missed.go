package model

// MissedNotification records a dispatch that reached no live subscriber.
type MissedNotification struct {
	Room     string        `json:"room"`
	Role     Role          `json:"role"`
	TargetID string        `json:"target_id"`
	Event    string        `json:"event"`
	Data     *Notification `json:"data"`
	MissedAt string        `json:"missed_at"`
}
