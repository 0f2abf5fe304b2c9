package desk

import (
	"time"

	"github.com/samber/oops"
)

// Position names a physical desk height ("sit", "stand", ...). The set of
// valid names is owned by the idasen config file, not by this package, and is
// looked up fresh on every validation.
type Position string

// String returns string representation
func (p Position) String() string {
	return string(p)
}

// IsEmpty checks if the position is unset
func (p Position) IsEmpty() bool {
	return string(p) == ""
}

// DwellPolicy maps a position name to the time it may be held before the nag
// timer fires. A missing or nonpositive entry means "no nagging here".
type DwellPolicy map[Position]time.Duration

// DwellFor returns the dwell duration for a position, or false when the
// position has no positive dwell configured.
func (p DwellPolicy) DwellFor(position Position) (time.Duration, bool) {
	d, ok := p[position]
	if !ok || d <= 0 {
		return 0, false
	}
	return d, true
}

// ConfigSource supplies the externally-owned position set. Implementations
// must re-read their backing store on every call; the file may change while
// the daemon runs.
type ConfigSource interface {
	// Positions returns the name -> height (meters) mapping.
	Positions() (map[string]float64, error)
}

// Mover physically moves the desk. Calls are fire-and-forget: failures are
// handled (logged) inside the implementation and never reach the caller.
type Mover interface {
	Move(position string)
}

// Error codes surfaced by the controller
const (
	CodeInvalidPosition   = "INVALID_POSITION"
	CodeConfigUnavailable = "CONFIG_UNAVAILABLE"
	CodeInvalidDuration   = "INVALID_DURATION"
)

// NewInvalidPositionError reports a position name that is not in the config
func NewInvalidPositionError(position Position) error {
	return oops.
		Code(CodeInvalidPosition).
		In("desk").
		With("position", position.String()).
		Errorf("position %q is not a valid position name", position)
}

// NewConfigUnavailableError wraps a failed position lookup
func NewConfigUnavailableError(err error) error {
	return oops.
		Code(CodeConfigUnavailable).
		In("desk").
		Wrapf(err, "position config is unavailable")
}

// IsInvalidPosition checks whether err reports an unknown position name
func IsInvalidPosition(err error) bool {
	return hasCode(err, CodeInvalidPosition)
}

// IsConfigUnavailable checks whether err reports a failed config lookup
func IsConfigUnavailable(err error) bool {
	return hasCode(err, CodeConfigUnavailable)
}

func hasCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return oopsErr.Code() == code
}
