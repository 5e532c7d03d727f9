package model

import "time"

// Event types.
const (
	EventRoutePublished   = "route.published"
	EventRouteUpdated     = "route.updated"
	EventRouteUnpublished = "route.unpublished"
	EventRouteChecked     = "route.checked"
	EventSyncCompleted    = "sync.completed"
	EventTunnelRestarted  = "tunnel.restarted"
)

// Event is a notification about a completed engine operation.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Hostname string    `json:"hostname,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}
