package desk

import "github.com/google/uuid"

// newTimerID generates a unique identifier for a dwell timer instance.
// Identity comparison against the controller's stored timer is what filters
// stale timeout signals, but the ID makes individual timers traceable in logs.
func newTimerID() string {
	return uuid.New().String()
}
