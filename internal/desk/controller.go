package desk

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/danghamo/deskd/internal/events"
	"github.com/danghamo/deskd/pkg/logger"
)

// EventPublisher publishes domain events. Satisfied by watermill's
// cqrs.EventBus; may be nil, in which case events are dropped.
type EventPublisher interface {
	Publish(ctx context.Context, event interface{}) error
}

// ControllerConfig holds the controller's immutable policy.
type ControllerConfig struct {
	// Nagging enables the dwell timers. When false no timer is ever stored.
	Nagging bool
	// TogglePair is the sit/stand pair used by the timeout transition. The
	// complement of a position outside the pair is undefined: such a timeout
	// is dropped with a warning instead of guessing a target.
	TogglePair [2]Position
	// Policy maps position names to dwell durations.
	Policy DwellPolicy
}

// PositionController owns the current desk position and drives the dwell
// state machine. Every mutation, whether a client request or a timer timeout,
// goes through one mutex, which serializes the command stream: commands are
// applied one at a time, in arrival order.
//
// At most one dwell timer is active at any instant. Accepting a position
// change aborts and discards the previous timer before a new one is started.
// A timeout whose originating timer is no longer the stored active timer is
// stale and is discarded without touching state.
type PositionController struct {
	logger    *logger.Logger
	source    ConfigSource
	mover     Mover
	publisher EventPublisher
	config    ControllerConfig

	mu          sync.Mutex
	current     Position
	activeTimer *DwellTimer
}

// NewPositionController creates a controller. The toggle pair must hold two
// distinct nonempty names when nagging is enabled.
func NewPositionController(
	config ControllerConfig,
	source ConfigSource,
	mover Mover,
	publisher EventPublisher,
	log *logger.Logger,
) (*PositionController, error) {
	if source == nil || mover == nil {
		return nil, oops.In("desk").Errorf("config source and mover are required")
	}
	if config.Nagging {
		if config.TogglePair[0].IsEmpty() || config.TogglePair[1].IsEmpty() {
			return nil, oops.In("desk").Errorf("nagging requires a toggle pair")
		}
		if config.TogglePair[0] == config.TogglePair[1] {
			return nil, oops.In("desk").Errorf("toggle pair must hold two distinct positions")
		}
	}

	return &PositionController{
		logger:    log.WithComponent("position-controller"),
		source:    source,
		mover:     mover,
		publisher: publisher,
		config:    config,
	}, nil
}

// Current returns the current position. ok is false before the first
// successful change. This is a pure query, never a mutation path.
func (c *PositionController) Current() (Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, !c.current.IsEmpty()
}

// NagActive reports whether a dwell timer is currently running.
func (c *PositionController) NagActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeTimer != nil
}

// Nagging reports whether nagging is enabled for this controller.
func (c *PositionController) Nagging() bool {
	return c.config.Nagging
}

// Apply requests a change to the named position. Validation happens against a
// fresh config read; unknown names fail with an INVALID_POSITION error and a
// failed lookup with CONFIG_UNAVAILABLE, both leaving state untouched.
// Applying the position the desk is already at is a no-op: the desk is not
// moved again and an in-flight dwell countdown keeps running.
func (c *PositionController) Apply(ctx context.Context, position Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(ctx, position, events.SourceUser)
}

// Shutdown aborts any pending dwell timer. Further commands are still
// accepted; this only quiesces the background countdown on process exit.
func (c *PositionController) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearTimerLocked()
}

// applyLocked is the single entry point of the state machine. Callers must
// hold c.mu.
func (c *PositionController) applyLocked(ctx context.Context, position Position, source string) error {
	positions, err := c.source.Positions()
	if err != nil {
		c.logger.Error("Position config lookup failed", zap.Error(err))
		return NewConfigUnavailableError(err)
	}

	if _, ok := positions[position.String()]; !ok {
		c.logger.Warn("Rejected unknown position", zap.String("position", position.String()))
		return NewInvalidPositionError(position)
	}

	if position == c.current {
		c.logger.Debug("Already at position, nothing to do",
			zap.String("position", position.String()))
		return nil
	}

	previous := c.current
	c.current = position

	c.logger.Info("Changing position",
		zap.String("position", position.String()),
		zap.String("previous", previous.String()),
		zap.String("source", source))

	// Fire-and-forget: a failed physical move must not block the logical
	// bookkeeping or the nag timer. The mover logs its own failures.
	c.mover.Move(position.String())

	nagIn := c.restartTimerLocked(position)

	c.publish(ctx, &events.PositionChangedEvent{
		Position:  position.String(),
		Previous:  previous.String(),
		Source:    source,
		NagIn:     nagIn,
		Timestamp: time.Now(),
	})

	return nil
}

// restartTimerLocked replaces the active timer according to the dwell policy
// and returns the started duration as a string, or "" when no timer runs.
func (c *PositionController) restartTimerLocked(position Position) string {
	c.clearTimerLocked()

	if !c.config.Nagging {
		return ""
	}

	dwell, ok := c.config.Policy.DwellFor(position)
	if !ok {
		return ""
	}

	timer, err := StartDwellTimer(dwell, c.handleTimeout, c.logger)
	if err != nil {
		// Unreachable for a positive dwell, but never let a timer problem
		// fail the position change itself.
		c.logger.Error("Failed to start dwell timer", zap.Error(err))
		return ""
	}

	c.activeTimer = timer
	c.logger.Debug("Dwell timer armed",
		zap.String("position", position.String()),
		zap.Duration("dwell", dwell))

	return dwell.String()
}

// clearTimerLocked aborts and discards the active timer, if any.
func (c *PositionController) clearTimerLocked() {
	if c.activeTimer != nil {
		c.activeTimer.Abort()
		c.activeTimer = nil
	}
}

// handleTimeout receives timer expiries. It runs on the timer's goroutine and
// takes the controller mutex, so timeouts join the same serialized command
// stream as client requests. The identity check against the stored timer is
// what filters stale signals: a superseded timer may still fire if its abort
// lost the race, and its signal must never affect state.
func (c *PositionController) handleTimeout(timer *DwellTimer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer != c.activeTimer {
		c.logger.Debug("Discarding stale dwell timeout",
			zap.String("timer_id", timer.ID()))
		return
	}
	c.activeTimer = nil

	next, ok := c.complementOf(c.current)
	if !ok {
		c.logger.Warn("No complement for current position, dropping nag",
			zap.String("position", c.current.String()))
		return
	}

	c.logger.Info("Dwell time elapsed, toggling position",
		zap.String("position", c.current.String()),
		zap.String("next", next.String()))

	ctx := context.Background()
	c.publish(ctx, &events.NagFiredEvent{
		Position:  c.current.String(),
		Next:      next.String(),
		Timestamp: time.Now(),
	})

	// Re-enter the apply path exactly as if a client had requested the
	// complement. Failures are logged, not retried: a vanished config entry
	// is recovered by the next client command.
	if err := c.applyLocked(ctx, next, events.SourceNag); err != nil {
		c.logger.Error("Nag toggle failed", zap.Error(err))
	}
}

// complementOf resolves the paired alternate position. Only the two
// configured toggle positions have a complement.
func (c *PositionController) complementOf(position Position) (Position, bool) {
	switch position {
	case c.config.TogglePair[0]:
		return c.config.TogglePair[1], true
	case c.config.TogglePair[1]:
		return c.config.TogglePair[0], true
	default:
		return "", false
	}
}

func (c *PositionController) publish(ctx context.Context, event interface{}) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Error("Failed to publish event", zap.Error(err))
	}
}
