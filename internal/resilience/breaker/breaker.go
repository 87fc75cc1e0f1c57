// Package breaker implements a per-component circuit breaker: consecutive
// failures open the circuit, a cooldown elapses, then a single half-open
// probe decides whether the component is healthy again.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/livefeed/internal/core/domain"
)

// ErrOpen is returned by Allow when the circuit is open and the cooldown
// has not elapsed. Callers must not count it as a component failure.
var ErrOpen = fmt.Errorf("circuit breaker open")

// Config defines breaker thresholds.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	FailureThreshold: 5,
	ResetTimeout:     30 * time.Second,
}

// Listener receives breaker state-change events.
type Listener func(domain.BreakerEvent)

type record struct {
	state        domain.BreakerState
	failureCount int
	lastFailure  time.Time
	openedAt     time.Time
}

// Breaker tracks failure state per component key. Records are created
// lazily on first use and reset on success, never destroyed.
type Breaker struct {
	mu        sync.Mutex
	cfg       Config
	records   map[string]*record
	listeners []Listener

	now func() time.Time // overridable for tests
}

// New creates a breaker. Zero config fields fall back to DefaultConfig.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig.ResetTimeout
	}
	return &Breaker{
		cfg:     cfg,
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// OnStateChange registers a listener invoked on every state transition.
// Listeners are called outside the breaker lock.
func (b *Breaker) OnStateChange(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Allow reports whether a call to the component may proceed. An open
// circuit whose cooldown has elapsed transitions to half-open and lets
// exactly one probe through; an open circuit inside the cooldown returns
// ErrOpen wrapped with the key.
func (b *Breaker) Allow(key string) error {
	b.mu.Lock()
	r := b.get(key)

	if r.state != domain.BreakerOpen {
		b.mu.Unlock()
		return nil
	}

	if b.now().Sub(r.openedAt) < b.cfg.ResetTimeout {
		b.mu.Unlock()
		return fmt.Errorf("%w for %s", ErrOpen, key)
	}

	r.state = domain.BreakerHalfOpen
	ev := b.event(key, r)
	b.mu.Unlock()

	b.notify(ev)
	return nil
}

// RecordFailure counts a failure against the component. Reaching the
// threshold while closed opens the circuit; any failure while half-open
// reopens it immediately.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	r := b.get(key)

	r.failureCount++
	r.lastFailure = b.now()

	var ev *domain.BreakerEvent
	switch r.state {
	case domain.BreakerClosed:
		if r.failureCount >= b.cfg.FailureThreshold {
			r.state = domain.BreakerOpen
			r.openedAt = b.now()
			e := b.event(key, r)
			ev = &e
		}
	case domain.BreakerHalfOpen:
		r.state = domain.BreakerOpen
		r.openedAt = b.now()
		e := b.event(key, r)
		ev = &e
	}
	b.mu.Unlock()

	if ev != nil {
		b.notify(*ev)
	}
}

// RecordSuccess resets the failure window. A success while half-open
// closes the circuit.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	r := b.get(key)

	var ev *domain.BreakerEvent
	switch r.state {
	case domain.BreakerHalfOpen:
		r.state = domain.BreakerClosed
		r.failureCount = 0
		e := b.event(key, r)
		ev = &e
	case domain.BreakerClosed:
		r.failureCount = 0
	}
	b.mu.Unlock()

	if ev != nil {
		b.notify(*ev)
	}
}

// Reset forces the component back to closed with a clean failure window.
func (b *Breaker) Reset(key string) {
	b.mu.Lock()
	r := b.get(key)

	var ev *domain.BreakerEvent
	if r.state != domain.BreakerClosed {
		r.state = domain.BreakerClosed
		r.failureCount = 0
		e := b.event(key, r)
		ev = &e
	} else {
		r.failureCount = 0
	}
	b.mu.Unlock()

	if ev != nil {
		b.notify(*ev)
	}
}

// State returns the current state for a component key.
func (b *Breaker) State(key string) domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(key).state
}

// Snapshot returns read-only views of all known component records.
func (b *Breaker) Snapshot() []domain.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.BreakerSnapshot, 0, len(b.records))
	for key, r := range b.records {
		out = append(out, domain.BreakerSnapshot{
			Component:    key,
			State:        r.state,
			FailureCount: r.failureCount,
			LastFailure:  r.lastFailure,
			OpenedAt:     r.openedAt,
		})
	}
	return out
}

// get returns the record for key, creating it lazily. Caller holds b.mu.
func (b *Breaker) get(key string) *record {
	r, ok := b.records[key]
	if !ok {
		r = &record{state: domain.BreakerClosed}
		b.records[key] = r
	}
	return r
}

// event builds a state-change event. Caller holds b.mu.
func (b *Breaker) event(key string, r *record) domain.BreakerEvent {
	return domain.BreakerEvent{
		Component:    key,
		State:        r.state,
		FailureCount: r.failureCount,
	}
}

func (b *Breaker) notify(ev domain.BreakerEvent) {
	b.mu.Lock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
