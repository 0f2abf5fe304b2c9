package desk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/deskd/internal/events"
	"github.com/danghamo/deskd/pkg/logger"
)

// fakeSource is a concurrency-safe in-memory ConfigSource
type fakeSource struct {
	mu        sync.Mutex
	positions map[string]float64
	err       error
	calls     int
}

func (f *fakeSource) Positions() (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.positions, nil
}

func (f *fakeSource) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeMover records move invocations
type fakeMover struct {
	mu    sync.Mutex
	moves []string
}

func (f *fakeMover) Move(position string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, position)
}

func (f *fakeMover) Moves() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.moves...)
}

// fakePublisher records published events
type fakePublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (f *fakePublisher) Publish(_ context.Context, event interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Events() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.events...)
}

func sitStandSource() *fakeSource {
	return &fakeSource{positions: map[string]float64{"sit": 0.75, "stand": 1.12}}
}

func newTestController(t *testing.T, config ControllerConfig, source ConfigSource, mover Mover, publisher EventPublisher) *PositionController {
	t.Helper()
	controller, err := NewPositionController(config, source, mover, publisher, logger.NewDefault())
	require.NoError(t, err)
	t.Cleanup(controller.Shutdown)
	return controller
}

func TestNewPositionController_ValidatesTogglePair(t *testing.T) {
	source := sitStandSource()
	mover := &fakeMover{}
	log := logger.NewDefault()

	_, err := NewPositionController(ControllerConfig{Nagging: true}, source, mover, nil, log)
	assert.Error(t, err)

	_, err = NewPositionController(ControllerConfig{
		Nagging:    true,
		TogglePair: [2]Position{"sit", "sit"},
	}, source, mover, nil, log)
	assert.Error(t, err)

	_, err = NewPositionController(ControllerConfig{
		Nagging:    true,
		TogglePair: [2]Position{"sit", "stand"},
	}, source, mover, nil, log)
	assert.NoError(t, err)
}

func TestPositionController_CurrentBeforeFirstChange(t *testing.T) {
	controller := newTestController(t, ControllerConfig{}, sitStandSource(), &fakeMover{}, nil)

	_, ok := controller.Current()
	assert.False(t, ok)
}

func TestPositionController_ApplyIsIdempotent(t *testing.T) {
	source := sitStandSource()
	mover := &fakeMover{}
	controller := newTestController(t, ControllerConfig{
		Nagging:    true,
		TogglePair: [2]Position{"sit", "stand"},
		Policy:     DwellPolicy{"sit": time.Hour},
	}, source, mover, nil)

	require.NoError(t, controller.Apply(context.Background(), "sit"))
	firstTimer := controller.activeTimer
	require.NotNil(t, firstTimer)

	// Re-applying the current position must neither move the desk again nor
	// reset the running dwell countdown
	require.NoError(t, controller.Apply(context.Background(), "sit"))

	assert.Equal(t, []string{"sit"}, mover.Moves())
	assert.Same(t, firstTimer, controller.activeTimer)

	current, ok := controller.Current()
	require.True(t, ok)
	assert.Equal(t, Position("sit"), current)
}

func TestPositionController_RejectsUnknownPosition(t *testing.T) {
	source := sitStandSource()
	mover := &fakeMover{}
	controller := newTestController(t, ControllerConfig{
		Nagging:    true,
		TogglePair: [2]Position{"sit", "stand"},
		Policy:     DwellPolicy{"sit": time.Hour},
	}, source, mover, nil)

	err := controller.Apply(context.Background(), "kneel")
	require.Error(t, err)
	assert.True(t, IsInvalidPosition(err))

	_, ok := controller.Current()
	assert.False(t, ok)
	assert.Empty(t, mover.Moves())
	assert.False(t, controller.NagActive())
}

func TestPositionController_ConfigUnavailable(t *testing.T) {
	source := sitStandSource()
	mover := &fakeMover{}
	controller := newTestController(t, ControllerConfig{}, source, mover, nil)

	require.NoError(t, controller.Apply(context.Background(), "sit"))

	source.setError(assert.AnError)

	err := controller.Apply(context.Background(), "stand")
	require.Error(t, err)
	assert.True(t, IsConfigUnavailable(err))
	assert.False(t, IsInvalidPosition(err))

	// State untouched by the failed transition
	current, ok := controller.Current()
	require.True(t, ok)
	assert.Equal(t, Position("sit"), current)
	assert.Equal(t, []string{"sit"}, mover.Moves())
}

func TestPositionController_ValidatesAgainstFreshConfig(t *testing.T) {
	source := sitStandSource()
	controller := newTestController(t, ControllerConfig{}, source, &fakeMover{}, nil)

	before := source.callCount()
	require.NoError(t, controller.Apply(context.Background(), "sit"))
	require.NoError(t, controller.Apply(context.Background(), "stand"))

	// One fresh lookup per command, never cached
	assert.Equal(t, before+2, source.callCount())
}

func TestPositionController_NoNagModeNeverStoresTimer(t *testing.T) {
	mover := &fakeMover{}
	controller := newTestController(t, ControllerConfig{
		Nagging: false,
		Policy:  DwellPolicy{"sit": time.Minute, "stand": time.Minute},
	}, sitStandSource(), mover, nil)

	require.NoError(t, controller.Apply(context.Background(), "sit"))
	assert.False(t, controller.NagActive())

	require.NoError(t, controller.Apply(context.Background(), "stand"))
	assert.False(t, controller.NagActive())
}

func TestPositionController_NoDwellEntryClearsTimer(t *testing.T) {
	mover := &fakeMover{}
	controller := newTestController(t, ControllerConfig{
		Nagging:    true,
		TogglePair: [2]Position{"sit", "stand"},
		Policy:     DwellPolicy{"sit": 40 * time.Millisecond},
	}, sitStandSource(), mover, nil)

	require.NoError(t, controller.Apply(context.Background(), "sit"))
	assert.True(t, controller.NagActive())

	// "stand" has no dwell entry: the sit timer is aborted and nothing
	// replaces it
	require.NoError(t, controller.Apply(context.Background(), "stand"))
	assert.False(t, controller.NagActive())

	// Even after the aborted timer's dwell has long elapsed, its suppressed
	// expiry must not toggle anything
	time.Sleep(120 * time.Millisecond)

	current, ok := controller.Current()
	require.True(t, ok)
	assert.Equal(t, Position("stand"), current)
	assert.Equal(t, []string{"sit", "stand"}, mover.Moves())
}

func TestPositionController_StaleTimeoutIsDiscarded(t *testing.T) {
	mover := &fakeMover{}
	controller := newTestController(t, ControllerConfig{
		Nagging:    true,
		TogglePair: [2]Position{"sit", "stand"},
		Policy:     DwellPolicy{"sit": time.Hour},
	}, sitStandSource(), mover, nil)

	require.NoError(t, controller.Apply(context.Background(), "sit"))
	active := controller.activeTimer
	require.NotNil(t, active)

	// A timeout from a timer that is not the stored active timer simulates a
	// superseded timer whose abort lost the race. Identity, not the abort
	// flag, decides.
	stale, err := StartDwellTimer(time.Hour, controller.handleTimeout, logger.NewDefault())
	require.NoError(t, err)
	stale.Abort()

	controller.handleTimeout(stale)

	current, ok := controller.Current()
	require.True(t, ok)
	assert.Equal(t, Position("sit"), current)
	assert.Same(t, active, controller.activeTimer)
	assert.Equal(t, []string{"sit"}, mover.Moves())
}

func TestPositionController_ToggleOnTimeout(t *testing.T) {
	mover := &fakeMover{}
	publisher := &fakePublisher{}
	controller := newTestController(t, ControllerConfig{
		Nagging:    true,
		TogglePair: [2]Position{"sit", "stand"},
		Policy:     DwellPolicy{"sit": 20 * time.Millisecond, "stand": time.Hour},
	}, sitStandSource(), mover, publisher)

	require.NoError(t, controller.Apply(context.Background(), "sit"))

	// The sit timer fires and re-enters the apply path with the complement
	require.Eventually(t, func() bool {
		current, ok := controller.Current()
		return ok && current == Position("stand")
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"sit", "stand"}, mover.Moves())
	assert.True(t, controller.NagActive(), "a fresh timer should run for stand")

	var nagFired bool
	for _, event := range publisher.Events() {
		if e, ok := event.(*events.NagFiredEvent); ok {
			nagFired = true
			assert.Equal(t, "sit", e.Position)
			assert.Equal(t, "stand", e.Next)
		}
	}
	assert.True(t, nagFired, "expected a NagFiredEvent")
}

func TestPositionController_TimeoutOutsideTogglePairIsDropped(t *testing.T) {
	source := &fakeSource{positions: map[string]float64{"sit": 0.75, "stand": 1.12, "perch": 0.95}}
	mover := &fakeMover{}
	controller := newTestController(t, ControllerConfig{
		Nagging:    true,
		TogglePair: [2]Position{"sit", "stand"},
		Policy:     DwellPolicy{"perch": 15 * time.Millisecond},
	}, source, mover, nil)

	require.NoError(t, controller.Apply(context.Background(), "perch"))
	require.True(t, controller.NagActive())

	// "perch" has no complement: the timeout is dropped instead of guessing
	require.Eventually(t, func() bool {
		return !controller.NagActive()
	}, 2*time.Second, 5*time.Millisecond)

	current, ok := controller.Current()
	require.True(t, ok)
	assert.Equal(t, Position("perch"), current)
	assert.Equal(t, []string{"perch"}, mover.Moves())
}

func TestPositionController_PublishesPositionChangedEvents(t *testing.T) {
	publisher := &fakePublisher{}
	controller := newTestController(t, ControllerConfig{}, sitStandSource(), &fakeMover{}, publisher)

	require.NoError(t, controller.Apply(context.Background(), "sit"))
	require.NoError(t, controller.Apply(context.Background(), "sit"))
	require.NoError(t, controller.Apply(context.Background(), "stand"))

	var changed []*events.PositionChangedEvent
	for _, event := range publisher.Events() {
		if e, ok := event.(*events.PositionChangedEvent); ok {
			changed = append(changed, e)
		}
	}

	// The idempotent second apply publishes nothing
	require.Len(t, changed, 2)
	assert.Equal(t, "sit", changed[0].Position)
	assert.Equal(t, "", changed[0].Previous)
	assert.Equal(t, events.SourceUser, changed[0].Source)
	assert.Equal(t, "stand", changed[1].Position)
	assert.Equal(t, "sit", changed[1].Previous)
}

// Scaled-down version of the end-to-end nag scenario: sit dwells, toggles to
// stand, an explicit change back to sit lands immediately and restarts the
// countdown at full duration.
func TestPositionController_NagScenario(t *testing.T) {
	mover := &fakeMover{}
	controller := newTestController(t, ControllerConfig{
		Nagging:    true,
		TogglePair: [2]Position{"sit", "stand"},
		Policy:     DwellPolicy{"sit": 60 * time.Millisecond, "stand": time.Hour},
	}, sitStandSource(), mover, nil)

	require.NoError(t, controller.Apply(context.Background(), "sit"))
	assert.True(t, controller.NagActive())

	// Uninterrupted dwell elapses: automatic toggle to stand with a fresh timer
	require.Eventually(t, func() bool {
		current, ok := controller.Current()
		return ok && current == Position("stand")
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, controller.NagActive())

	// Part-way into the stand dwell the user switches back: immediate change,
	// old timer aborted, new one started fresh
	time.Sleep(10 * time.Millisecond)
	standTimer := controller.activeTimer
	require.NoError(t, controller.Apply(context.Background(), "sit"))

	current, ok := controller.Current()
	require.True(t, ok)
	assert.Equal(t, Position("sit"), current)
	assert.True(t, controller.NagActive())
	assert.NotSame(t, standTimer, controller.activeTimer)
	assert.True(t, standTimer.Aborted())

	assert.Equal(t, []string{"sit", "stand", "sit"}, mover.Moves())
}
