package realtime

import (
	"testing"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/stretchr/testify/require"
)

func countingOpen(disposed *int) OpenFunc {
	return func() (Disposer, error) {
		return func() { *disposed++ }, nil
	}
}

func TestRegistry_Open_Refuses_Duplicate_Pair(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	// Given an open subscription on (session, topic)
	_, err := r.Open("session-1", "inbox.a", countingOpen(new(int)))
	req.NoError(err)

	// When the same pair is opened again
	_, err = r.Open("session-1", "inbox.a", countingOpen(new(int)))

	// Then it is refused, not stacked
	req.ErrorIs(err, models.ErrDuplicateSubscription)
	req.Equal(1, r.Count("session-1"))
}

func TestRegistry_Same_Topic_Different_Sessions_Coexist(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, err := r.Open("session-1", "inbox.a", countingOpen(new(int)))
	req.NoError(err)
	_, err = r.Open("session-2", "inbox.a", countingOpen(new(int)))
	req.NoError(err)

	req.Equal(1, r.Count("session-1"))
	req.Equal(1, r.Count("session-2"))
}

func TestRegistry_Replace_Disposes_The_Prior_Subscription(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	var first, second int
	_, err := r.Replace("session-1", "inbox.a", countingOpen(&first))
	req.NoError(err)

	// When the client re-opens the same view
	_, err = r.Replace("session-1", "inbox.a", countingOpen(&second))
	req.NoError(err)

	// Then the prior subscription was torn down and only one remains
	req.Equal(1, first)
	req.Equal(0, second)
	req.Equal(1, r.Count("session-1"))
}

func TestRegistry_Disposer_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	var disposed int
	dispose, err := r.Open("session-1", "inbox.a", countingOpen(&disposed))
	req.NoError(err)

	dispose()
	dispose()

	req.Equal(1, disposed)
	req.Equal(0, r.Count("session-1"))
}

func TestRegistry_Stale_Disposer_Does_Not_Kill_Its_Successor(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	var first, second int
	staleDispose, err := r.Replace("session-1", "inbox.a", countingOpen(&first))
	req.NoError(err)

	_, err = r.Replace("session-1", "inbox.a", countingOpen(&second))
	req.NoError(err)
	req.Equal(1, first)

	// A late dispose of the replaced subscription must not unregister
	// the successor.
	staleDispose()
	req.Equal(1, r.Count("session-1"))
	req.Equal(0, second)
}

func TestRegistry_DisposeSession_Tears_Down_Everything_The_Session_Owns(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	var a, b, other int
	_, err := r.Open("session-1", "inbox.a", countingOpen(&a))
	req.NoError(err)
	_, err = r.Open("session-1", "typing.x", countingOpen(&b))
	req.NoError(err)
	_, err = r.Open("session-2", "inbox.a", countingOpen(&other))
	req.NoError(err)

	r.DisposeSession("session-1")

	req.Equal(1, a)
	req.Equal(1, b)
	req.Equal(0, r.Count("session-1"))

	// Another session's subscriptions are untouched
	req.Equal(0, other)
	req.Equal(1, r.Count("session-2"))
}

func TestRegistry_Open_After_Dispose_Succeeds(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	dispose, err := r.Open("session-1", "inbox.a", countingOpen(new(int)))
	req.NoError(err)
	dispose()

	_, err = r.Open("session-1", "inbox.a", countingOpen(new(int)))
	req.NoError(err)
}
