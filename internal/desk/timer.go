package desk

import (
	"sync"
	"time"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/danghamo/deskd/pkg/logger"
)

// DwellTimer counts down a dwell period in a background goroutine and reports
// expiry to its owner exactly once, unless aborted first. A timer is used for
// a single dwell period: it is started on creation and is terminal once it
// has either fired or been aborted. Fired and aborted are mutually exclusive;
// the internal mutex resolves an expiry/abort race so the owner observes
// exactly one outcome.
type DwellTimer struct {
	id        string
	duration  time.Duration
	onTimeout func(*DwellTimer)
	logger    *logger.Logger

	mu      sync.Mutex
	fired   bool
	aborted bool
	abortCh chan struct{}
}

// StartDwellTimer creates a timer and begins its countdown immediately.
// Nonpositive durations are rejected: the controller never schedules a dwell
// of zero, so a nonpositive duration here is a programming error, not an
// immediate fire.
func StartDwellTimer(duration time.Duration, onTimeout func(*DwellTimer), log *logger.Logger) (*DwellTimer, error) {
	if duration <= 0 {
		return nil, oops.
			Code(CodeInvalidDuration).
			In("desk").
			With("duration", duration.String()).
			Errorf("dwell duration must be positive")
	}
	if onTimeout == nil {
		return nil, oops.
			Code(CodeInvalidDuration).
			In("desk").
			Errorf("timeout callback must not be nil")
	}

	id := newTimerID()
	t := &DwellTimer{
		id:        id,
		duration:  duration,
		onTimeout: onTimeout,
		logger:    log.WithComponent("dwell-timer").WithField("timer_id", id),
		abortCh:   make(chan struct{}),
	}

	t.logger.Debug("Dwell timer started", zap.Duration("duration", duration))
	go t.run()

	return t, nil
}

// ID returns the timer's unique identifier
func (t *DwellTimer) ID() string {
	return t.id
}

// Duration returns the configured dwell duration
func (t *DwellTimer) Duration() time.Duration {
	return t.duration
}

// Fired reports whether the timer expired naturally and delivered its signal
func (t *DwellTimer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Aborted reports whether the timer was aborted before it fired
func (t *DwellTimer) Aborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborted
}

// Abort suppresses a pending timeout. It is idempotent and safe to call after
// the timer already fired, in which case it is a no-op: the signal was
// already delivered and the timer is terminal either way.
func (t *DwellTimer) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fired || t.aborted {
		return
	}

	t.aborted = true
	close(t.abortCh)
	t.logger.Debug("Dwell timer aborted")
}

// run sleeps for the dwell duration and delivers the timeout callback. The
// fired flag is decided under the mutex before the callback runs, so an Abort
// arriving during the sleep either stops the wait outright or loses the race
// and becomes a no-op.
func (t *DwellTimer) run() {
	timer := time.NewTimer(t.duration)
	defer timer.Stop()

	select {
	case <-t.abortCh:
		return
	case <-timer.C:
	}

	t.mu.Lock()
	if t.aborted {
		// Abort won the race against the expired timer channel.
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()

	t.logger.Debug("Dwell timer fired")
	t.onTimeout(t)
}
