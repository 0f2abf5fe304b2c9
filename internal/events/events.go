package events

import "time"

// Sources of a position change
const (
	SourceUser = "user" // requested by a client through the API
	SourceNag  = "nag"  // issued by the dwell timer toggling the position
)

// PositionChangedEvent is published after the controller accepts a position
// change and has dispatched the physical move.
type PositionChangedEvent struct {
	Position  string    `json:"position"`
	Previous  string    `json:"previous,omitempty"`
	Source    string    `json:"source"`
	NagIn     string    `json:"nag_in,omitempty"` // dwell duration of the new timer, empty when none was started
	Timestamp time.Time `json:"timestamp"`
}

// NagFiredEvent is published when a dwell timer expires and the controller is
// about to toggle to the complement position.
type NagFiredEvent struct {
	Position  string    `json:"position"`
	Next      string    `json:"next"`
	Timestamp time.Time `json:"timestamp"`
}
