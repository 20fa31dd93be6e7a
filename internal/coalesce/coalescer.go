package coalesce

import (
	"context"
	"sync"
	"time"
)

// State of the scheduler. The whole point of making these explicit is
// that the single-flight/pending-flag behaviour is a state machine, not a
// pile of ad hoc booleans.
type State int

const (
	// Idle: no timer armed, no fetch in flight.
	Idle State = iota
	// Debouncing: a change arrived; the debounce timer is armed.
	Debouncing
	// Fetching: the fetch is in flight, nothing queued behind it.
	Fetching
	// FetchingWithPending: the fetch is in flight AND at least one change
	// arrived meanwhile. However many more arrive, exactly one follow-up
	// fetch runs when the in-flight one completes.
	FetchingWithPending
)

// DefaultDebounce is the window that collapses a burst of change events
// into one fetch.
const DefaultDebounce = 800 * time.Millisecond

// Clock abstracts timer creation so tests can fire the debounce window by
// hand instead of sleeping.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the stoppable handle a Clock hands back.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is the production Clock backed by time.AfterFunc.
func RealClock() Clock { return realClock{} }

// Fetch is the refresh the coalescer guards. It applies its own result
// (push to a callback, update a cache) and returns any error; the
// coalescer only schedules it.
type Fetch func(ctx context.Context) error

// Coalescer serializes change-driven refreshes for one logical
// subscription: a burst of change notifications becomes one debounced
// fetch, and events arriving while a fetch is in flight become exactly
// one follow-up fetch — never zero (staleness), never N (thundering
// herd).
//
// A fetch error is not fatal: it goes to onError and the machine keeps
// running, so the channel stays live through transient failures.
type Coalescer struct {
	mu       sync.Mutex
	state    State
	timer    Timer
	disposed bool

	debounce time.Duration
	clock    Clock
	fetch    Fetch
	onError  func(error)

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Coalescer. onError may be nil; debounce <= 0 selects
// DefaultDebounce; clock == nil selects the real clock.
func New(debounce time.Duration, clock Clock, fetch Fetch, onError func(error)) *Coalescer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if clock == nil {
		clock = RealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coalescer{
		state:    Idle,
		debounce: debounce,
		clock:    clock,
		fetch:    fetch,
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Notify records one change event and advances the machine.
func (c *Coalescer) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}

	switch c.state {
	case Idle:
		c.state = Debouncing
		c.timer = c.clock.AfterFunc(c.debounce, c.timerFired)
	case Debouncing:
		// Reset the window: the burst is still going.
		if c.timer != nil {
			c.timer.Stop()
		}
		c.timer = c.clock.AfterFunc(c.debounce, c.timerFired)
	case Fetching:
		c.state = FetchingWithPending
	case FetchingWithPending:
		// Flag already set; further events collapse into it.
	}
}

// State returns the current state. Exposed for tests and introspection.
func (c *Coalescer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dispose tears the scheduler down: the pending timer is cancelled, the
// fetch context is cancelled, and any late completion is discarded instead
// of being applied or re-dispatched.
func (c *Coalescer) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.cancel()
}

func (c *Coalescer) timerFired() {
	c.mu.Lock()
	if c.disposed || c.state != Debouncing {
		// A Stop that lost the race with firing, or a stale timer after
		// a reset. Either way the event no longer means anything.
		c.mu.Unlock()
		return
	}
	c.state = Fetching
	c.timer = nil
	c.mu.Unlock()

	go c.runFetch()
}

func (c *Coalescer) runFetch() {
	err := c.fetch(c.ctx)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	refetch := c.state == FetchingWithPending
	if refetch {
		c.state = Fetching
	} else {
		c.state = Idle
	}
	onError := c.onError
	c.mu.Unlock()

	if err != nil && onError != nil {
		onError(err)
	}
	if refetch {
		go c.runFetch()
	}
}
