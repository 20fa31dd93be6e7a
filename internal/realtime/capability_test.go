package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedChecker struct {
	healthy bool
	calls   int
}

func (c *scriptedChecker) Healthy(context.Context) bool {
	c.calls++
	return c.healthy
}

func TestCapabilityProbe_Caches_Within_TTL(t *testing.T) {
	req := require.New(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	checker := &scriptedChecker{healthy: true}
	probe := NewCapabilityProbe(checker, 5*time.Second, func() time.Time { return now })

	req.True(probe.Available(context.Background()))
	req.True(probe.Available(context.Background()))
	req.True(probe.Available(context.Background()))

	// One real probe served all three calls
	req.Equal(1, checker.calls)
}

func TestCapabilityProbe_Reprobes_After_TTL(t *testing.T) {
	req := require.New(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	checker := &scriptedChecker{healthy: true}
	probe := NewCapabilityProbe(checker, 5*time.Second, func() time.Time { return now })

	req.True(probe.Available(context.Background()))

	// The transport goes down; the cached answer hides it until expiry
	checker.healthy = false
	req.True(probe.Available(context.Background()))

	now = now.Add(6 * time.Second)
	req.False(probe.Available(context.Background()))
	req.Equal(2, checker.calls)
}

func TestCapabilityProbe_Invalidate_Forces_The_Next_Call_To_Probe(t *testing.T) {
	req := require.New(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	checker := &scriptedChecker{healthy: true}
	probe := NewCapabilityProbe(checker, time.Minute, func() time.Time { return now })

	req.True(probe.Available(context.Background()))

	// A publish just failed: drop the cache instead of waiting a minute
	checker.healthy = false
	probe.Invalidate()

	req.False(probe.Available(context.Background()))
	req.Equal(2, checker.calls)
}
