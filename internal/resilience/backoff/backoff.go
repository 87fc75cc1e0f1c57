// Package backoff computes reconnection delays: exponential growth capped
// at a maximum, with full jitter to avoid thundering-herd reconnects.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the delay sequence for reconnection attempts.
type Policy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// rand returns a value in [0.0, 1.0); overridable for tests.
	rand func() float64
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	BaseDelay: 1 * time.Second,
	MaxDelay:  30 * time.Second,
}

// NewPolicy creates a policy with the given bounds. Non-positive values
// fall back to DefaultPolicy fields.
func NewPolicy(base, max time.Duration) Policy {
	p := Policy{BaseDelay: base, MaxDelay: max}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	return p
}

// Delay returns the wait before reconnect attempt n (0-based):
// min(base * 2^n, max) scaled by a uniform factor in [0.5, 1.0].
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	r := p.rand
	if r == nil {
		r = rand.Float64
	}
	jitter := 0.5 + r()*0.5

	return time.Duration(d * jitter)
}
