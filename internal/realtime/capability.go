package realtime

import (
	"context"
	"sync"
	"time"
)

// HealthChecker is anything that can say whether the transport currently
// works; AMQPBus implements it from its connection state.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// CapabilityProbe answers "is the realtime transport usable right now"
// with a cached result. Operations consult it before doing work so that,
// during a known-down window, they fail fast instead of silently queueing
// and replaying out of order after reconnect.
//
// The probe is an injectable component with its own TTL and clock, scoped
// to the engine's lifetime — not a module-level mutable map.
type CapabilityProbe struct {
	checker HealthChecker
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	checkedAt time.Time
	healthy   bool
}

// NewCapabilityProbe builds a probe. now may be nil for time.Now.
func NewCapabilityProbe(checker HealthChecker, ttl time.Duration, now func() time.Time) *CapabilityProbe {
	if now == nil {
		now = time.Now
	}
	return &CapabilityProbe{checker: checker, ttl: ttl, now: now}
}

// Available returns the cached health answer, refreshing it once the TTL
// has lapsed.
func (p *CapabilityProbe) Available(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.checkedAt.IsZero() && now.Sub(p.checkedAt) < p.ttl {
		return p.healthy
	}
	p.healthy = p.checker.Healthy(ctx)
	p.checkedAt = now
	return p.healthy
}

// Invalidate drops the cached answer so the next Available re-probes.
// Called on transport errors to shorten the stale-healthy window.
func (p *CapabilityProbe) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkedAt = time.Time{}
}
