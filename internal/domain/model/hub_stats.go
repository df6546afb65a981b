package model

import "time"

type HubStats struct {
	Connections  int            `json:"connections"`
	Rooms        int            `json:"rooms"`
	ByTransport  map[string]int `json:"by_transport"`
	Delivered    uint64         `json:"delivered"`
	Dropped      uint64         `json:"dropped"`
	Uptime       time.Duration  `json:"uptime"`
	MissedByRoom map[string]int `json:"missed_by_room,omitempty"`
}
