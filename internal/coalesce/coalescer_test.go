package coalesce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock hands out timers that fire only when the test says so — no
// sleeping, no flaky timing.
type fakeClock struct {
	mu      sync.Mutex
	pending *fakeTimer
	armed   int
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.stopped
	t.stopped = true
	return !was
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	stopped := t.stopped
	f := t.f
	t.mu.Unlock()
	if !stopped {
		f()
	}
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed++
	c.pending = &fakeTimer{f: f}
	return c.pending
}

func (c *fakeClock) fireLatest() {
	c.mu.Lock()
	t := c.pending
	c.mu.Unlock()
	if t != nil {
		t.fire()
	}
}

func (c *fakeClock) timersArmed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// blockingFetch parks each fetch call until the test releases it, and
// counts calls so the single-flight guarantees are observable.
type blockingFetch struct {
	started chan struct{}
	release chan error
}

func newBlockingFetch() *blockingFetch {
	return &blockingFetch{
		started: make(chan struct{}, 8),
		release: make(chan error),
	}
}

func (b *blockingFetch) fetch(ctx context.Context) error {
	b.started <- struct{}{}
	select {
	case err := <-b.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingFetch) waitStart(t *testing.T) {
	t.Helper()
	select {
	case <-b.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not start")
	}
}

func (b *blockingFetch) assertNoStart(t *testing.T) {
	t.Helper()
	select {
	case <-b.started:
		t.Fatal("unexpected fetch")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoalescer_Burst_Collapses_To_One_Fetch(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{}
	fetch := newBlockingFetch()
	c := New(DefaultDebounce, clock, fetch.fetch, nil)
	defer c.Dispose()

	// Given a burst of change events
	c.Notify()
	c.Notify()
	c.Notify()

	// Then each event re-arms the window, but nothing fetches yet
	req.Equal(Debouncing, c.State())
	req.Equal(3, clock.timersArmed())
	fetch.assertNoStart(t)

	// When the window elapses
	clock.fireLatest()

	// Then exactly one fetch runs
	fetch.waitStart(t)
	req.Equal(Fetching, c.State())

	fetch.release <- nil
	req.Eventually(func() bool { return c.State() == Idle }, time.Second, 5*time.Millisecond)
}

func TestCoalescer_Events_During_Fetch_Trigger_Exactly_One_Followup(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{}
	fetch := newBlockingFetch()
	c := New(DefaultDebounce, clock, fetch.fetch, nil)
	defer c.Dispose()

	// Given a fetch in flight
	c.Notify()
	clock.fireLatest()
	fetch.waitStart(t)

	// When many events arrive while it runs
	for i := 0; i < 5; i++ {
		c.Notify()
	}
	req.Equal(FetchingWithPending, c.State())

	// And the in-flight fetch completes
	fetch.release <- nil

	// Then exactly one follow-up fetch runs
	fetch.waitStart(t)
	req.Equal(Fetching, c.State())

	fetch.release <- nil
	req.Eventually(func() bool { return c.State() == Idle }, time.Second, 5*time.Millisecond)

	// And nothing else is queued behind it
	fetch.assertNoStart(t)
}

func TestCoalescer_Fetch_Error_Is_Reported_And_Machine_Keeps_Running(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{}
	fetch := newBlockingFetch()
	boom := errors.New("boom")

	errCh := make(chan error, 1)
	c := New(DefaultDebounce, clock, fetch.fetch, func(err error) { errCh <- err })
	defer c.Dispose()

	// Given a fetch that fails
	c.Notify()
	clock.fireLatest()
	fetch.waitStart(t)
	fetch.release <- boom

	// Then the error reaches the callback
	select {
	case err := <-errCh:
		req.ErrorIs(err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("error not reported")
	}

	// And the machine still schedules the next change
	req.Eventually(func() bool { return c.State() == Idle }, time.Second, 5*time.Millisecond)
	c.Notify()
	clock.fireLatest()
	fetch.waitStart(t)
	fetch.release <- nil
}

func TestCoalescer_Dispose_Cancels_Timer_And_Ignores_Late_Events(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{}
	fetch := newBlockingFetch()
	c := New(DefaultDebounce, clock, fetch.fetch, nil)

	// Given an armed debounce window
	c.Notify()

	// When the coalescer is disposed
	c.Dispose()

	// Then the timer never produces a fetch, even if it fires late
	clock.fireLatest()
	fetch.assertNoStart(t)

	// And further events are no-ops
	c.Notify()
	req.Equal(1, clock.timersArmed())
}

func TestCoalescer_Dispose_During_Fetch_Discards_Completion(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{}
	fetch := newBlockingFetch()
	c := New(DefaultDebounce, clock, fetch.fetch, nil)

	// Given a fetch in flight with a pending follow-up
	c.Notify()
	clock.fireLatest()
	fetch.waitStart(t)
	c.Notify()
	req.Equal(FetchingWithPending, c.State())

	// When disposed mid-flight, the in-flight fetch unblocks via its
	// cancelled context
	c.Dispose()

	// Then the pending follow-up is dropped, not dispatched
	fetch.assertNoStart(t)
}
