// Package conn maintains one logical live-data channel over two
// transports: a WebSocket push channel preferred, HTTP polling as
// fallback. It owns the connection-mode state machine, the reconnection
// backoff, and the event fan-out to consumers.
package conn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/livefeed/internal/conn/transport"
	"github.com/vietddude/livefeed/internal/core/domain"
	"github.com/vietddude/livefeed/internal/metrics"
	"github.com/vietddude/livefeed/internal/resilience/backoff"
	"github.com/vietddude/livefeed/internal/resilience/breaker"
	"github.com/vietddude/livefeed/internal/resilience/classify"
)

// Component is the circuit breaker key for the connection manager.
const Component = "ConnectionManager"

// Config holds the connection manager tuning knobs.
type Config struct {
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	MaxReconnectAttempts int
	PollingInterval      time.Duration
	ProbeEvery           int    // push probe every N polling cycles; 0 disables probing
	PollEndpoint         string // overrides the endpoint derived from the push URL
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	BaseDelay:            1 * time.Second,
	MaxDelay:             30 * time.Second,
	MaxReconnectAttempts: 5,
	PollingInterval:      10 * time.Second,
	ProbeEvery:           6,
}

// Manager orchestrates the push and pull transports. One Manager owns one
// logical channel; transport handles are never shared between instances.
type Manager struct {
	cfg        Config
	push       transport.PushTransport
	pull       transport.PullTransport
	classifier *classify.Classifier
	brk        *breaker.Breaker
	policy     backoff.Policy
	log        *slog.Logger

	mu           sync.Mutex
	mode         domain.ConnectionMode
	url          string
	pollEndpoint string
	gen          uint64 // per-start generation; stale callbacks are dropped
	attempts     int    // scheduled reconnect attempts since last reset
	pollCycles   int    // polls since the last push probe
	pushConn     transport.PushConn
	timer        *time.Timer // the single live timer; replaced, never stacked
	ctx          context.Context
	cancel       context.CancelFunc

	dataSubs subscribers[[]byte]
	modeSubs subscribers[domain.ModeChangeEvent]
	errSubs  subscribers[*domain.ClassifiedError]
}

// NewManager creates a connection manager. Zero config fields fall back
// to DefaultConfig. The classifier may be nil until SetClassifier is
// called (the facade binds recovery hooks back to this manager).
func NewManager(
	cfg Config,
	push transport.PushTransport,
	pull transport.PullTransport,
	brk *breaker.Breaker,
	log *slog.Logger,
) *Manager {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultConfig.MaxReconnectAttempts
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = DefaultConfig.PollingInterval
	}
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		cfg:    cfg,
		push:   push,
		pull:   pull,
		brk:    brk,
		policy: backoff.NewPolicy(cfg.BaseDelay, cfg.MaxDelay),
		log:    log,
		mode:   domain.ModeDisconnected,
	}
}

// SetClassifier binds the error classifier. Must be called before Start.
func (m *Manager) SetClassifier(c *classify.Classifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifier = c
}

// OnData subscribes to data updates. Returns an unsubscribe function.
func (m *Manager) OnData(fn func(payload []byte)) func() {
	return m.dataSubs.add(fn)
}

// OnModeChange subscribes to mode-change events.
func (m *Manager) OnModeChange(fn func(domain.ModeChangeEvent)) func() {
	return m.modeSubs.add(fn)
}

// OnError subscribes to classified error events.
func (m *Manager) OnError(fn func(*domain.ClassifiedError)) func() {
	return m.errSubs.add(fn)
}

// CurrentMode returns the current connection mode.
func (m *Manager) CurrentMode() domain.ConnectionMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Start begins connecting to the push channel at url. Calling Start while
// already running is a no-op.
func (m *Manager) Start(url string) {
	m.mu.Lock()
	if m.mode != domain.ModeDisconnected {
		m.mu.Unlock()
		return
	}

	m.gen++
	gen := m.gen
	m.url = url
	m.pollEndpoint = m.cfg.PollEndpoint
	if m.pollEndpoint == "" {
		m.pollEndpoint = transport.PollEndpoint(url)
	}
	m.attempts = 0
	m.pollCycles = 0
	m.ctx, m.cancel = context.WithCancel(context.Background())
	ev := m.transitionLocked(domain.ModeConnecting, domain.ReasonStart)
	m.mu.Unlock()

	m.emitMode(ev)
	go m.tryConnect(gen)
}

// Stop moves to Disconnected from any state, cancelling all pending
// timers and discarding in-flight transport callbacks. Idempotent and
// safe to call from within an event callback.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.gen++ // invalidate every outstanding callback
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	pc := m.pushConn
	m.pushConn = nil
	ev := m.transitionLocked(domain.ModeDisconnected, domain.ReasonStopped)
	m.mu.Unlock()

	if pc != nil {
		_ = pc.Close()
	}
	m.emitMode(ev)
}

// Retry runs the pending reconnect attempt immediately instead of waiting
// out the backoff.
func (m *Manager) Retry() error {
	m.mu.Lock()
	if m.mode != domain.ModeConnecting {
		m.mu.Unlock()
		return errors.New("no reconnect pending")
	}
	gen := m.gen
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	go m.tryConnect(gen)
	return nil
}

// Reconnect abandons the current channel and reconnects the push
// transport from scratch.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	if m.mode == domain.ModeDisconnected || m.mode == domain.ModeDegraded {
		m.mu.Unlock()
		return errors.New("not connected")
	}
	gen := m.gen
	pc := m.pushConn
	m.pushConn = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	ev := m.transitionLocked(domain.ModeConnecting, domain.ReasonReconnectRequest)
	m.mu.Unlock()

	if pc != nil {
		_ = pc.Close()
	}
	m.emitMode(ev)
	go m.tryConnect(gen)
	return nil
}

// FallbackToPull switches to the polling transport on request.
func (m *Manager) FallbackToPull() error {
	m.mu.Lock()
	if m.mode != domain.ModeConnecting && m.mode != domain.ModeConnectedPush {
		m.mu.Unlock()
		return errors.New("fallback not applicable")
	}
	gen := m.gen
	pc := m.pushConn
	m.pushConn = nil
	m.pollCycles = 0
	ev := m.transitionLocked(domain.ModeConnectedPull, domain.ReasonFallbackRequest)
	m.scheduleLocked(gen, m.cfg.PollingInterval, m.pollTick)
	m.mu.Unlock()

	if pc != nil {
		_ = pc.Close()
	}
	m.emitMode(ev)
	return nil
}

// tryConnect attempts to open the push channel. Runs outside the lock;
// the generation counter guards against staleness.
func (m *Manager) tryConnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.mode != domain.ModeConnecting {
		m.mu.Unlock()
		return
	}
	url, ctx := m.url, m.ctx
	m.mu.Unlock()

	if err := m.brk.Allow(Component); err != nil {
		m.enterDegraded(gen)
		return
	}

	pc, err := m.push.Open(ctx, url, m.callbacks(gen))
	if err != nil {
		m.handleFailure(gen, "connect", err)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.mode != domain.ModeConnecting {
		m.mu.Unlock()
		_ = pc.Close()
		return
	}
	m.pushConn = pc
	m.attempts = 0
	ev := m.transitionLocked(domain.ModeConnectedPush, domain.ReasonConnected)
	m.mu.Unlock()

	m.brk.RecordSuccess(Component)
	m.emitMode(ev)
}

func (m *Manager) callbacks(gen uint64) transport.Callbacks {
	return transport.Callbacks{
		OnMessage: func(payload []byte) { m.onPushMessage(gen, payload) },
		OnError:   func(err error) { m.onPushError(gen, err) },
		OnClose:   func(err error) { m.onPushClose(gen, err) },
	}
}

func (m *Manager) onPushMessage(gen uint64, payload []byte) {
	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale {
		return
	}

	metrics.DataUpdates.WithLabelValues("websocket").Inc()
	m.dataSubs.emit(payload)
}

// onPushError logs non-fatal channel errors; the close callback carries
// the failure into the state machine.
func (m *Manager) onPushError(gen uint64, err error) {
	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale {
		return
	}
	m.log.Debug("Push channel error", "error", err)
}

// onPushClose handles an unexpected transport drop.
func (m *Manager) onPushClose(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.mode != domain.ModeConnectedPush {
		m.mu.Unlock()
		return
	}
	m.pushConn = nil
	// Attempt counter deliberately not reset here: a flapping channel
	// keeps climbing the backoff curve instead of thrashing.
	ev := m.transitionLocked(domain.ModeConnecting, domain.ReasonTransportDropped)
	m.mu.Unlock()
	m.emitMode(ev)

	if err == nil {
		err = errors.New("websocket connection closed")
	}
	m.handleFailure(gen, "maintain", err)
}

// handleFailure classifies a transport failure, feeds the breaker, and
// decides the next move: degrade, fall back to polling, or schedule the
// next reconnect attempt.
func (m *Manager) handleFailure(gen uint64, op string, err error) {
	m.mu.Lock()
	if gen != m.gen {
		// Stop (or a restart) invalidated this attempt while the dial was
		// in flight; its failure must not reach the breaker or consumers.
		m.mu.Unlock()
		return
	}
	attempt := m.attempts
	m.mu.Unlock()

	m.report(err, op, attempt)

	if m.brk.State(Component) == domain.BreakerOpen {
		m.enterDegraded(gen)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.mode != domain.ModeConnecting {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.pollCycles = 0
		ev := m.transitionLocked(domain.ModeConnectedPull, domain.ReasonMaxAttempts)
		m.scheduleLocked(gen, m.cfg.PollingInterval, m.pollTick)
		m.mu.Unlock()
		m.emitMode(ev)
		return
	}
	m.attempts++
	next := m.attempts
	delay := m.policy.Delay(next - 1)
	m.scheduleLocked(gen, delay, m.tryConnect)
	m.mu.Unlock()

	metrics.ReconnectAttempts.Inc()
	m.log.Debug("Reconnect scheduled", "attempt", next, "delay", delay)
}

// pollTick fetches one payload over the pull transport and occasionally
// probes the push channel.
func (m *Manager) pollTick(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.mode != domain.ModeConnectedPull {
		m.mu.Unlock()
		return
	}
	m.pollCycles++
	probe := m.cfg.ProbeEvery > 0 && m.pollCycles%m.cfg.ProbeEvery == 0
	endpoint, ctx := m.pollEndpoint, m.ctx
	m.mu.Unlock()

	start := time.Now()
	payload, err := m.pull.Fetch(ctx, endpoint)

	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale {
		return
	}

	if err != nil {
		m.report(err, "maintain", 0)
		if m.brk.State(Component) == domain.BreakerOpen {
			m.enterDegraded(gen)
			return
		}
	} else {
		metrics.PollLatency.Observe(time.Since(start).Seconds())
		metrics.DataUpdates.WithLabelValues("polling").Inc()
		m.brk.RecordSuccess(Component)
		m.dataSubs.emit(payload)
	}

	if probe && m.probePush(gen) {
		return
	}

	m.mu.Lock()
	if gen == m.gen && m.mode == domain.ModeConnectedPull {
		m.scheduleLocked(gen, m.cfg.PollingInterval, m.pollTick)
	}
	m.mu.Unlock()
}

// probePush attempts one lightweight push reconnect from pull mode.
// Returns true when the probe succeeded and the mode switched.
func (m *Manager) probePush(gen uint64) bool {
	m.mu.Lock()
	if gen != m.gen || m.mode != domain.ModeConnectedPull {
		m.mu.Unlock()
		return false
	}
	url, ctx := m.url, m.ctx
	m.mu.Unlock()

	if err := m.brk.Allow(Component); err != nil {
		return false
	}

	pc, err := m.push.Open(ctx, url, m.callbacks(gen))
	if err != nil {
		m.mu.Lock()
		stale := gen != m.gen
		m.mu.Unlock()
		if stale {
			return false
		}
		m.report(err, "probe", 0)
		if m.brk.State(Component) == domain.BreakerOpen {
			m.enterDegraded(gen)
			return true
		}
		return false
	}

	m.mu.Lock()
	if gen != m.gen || m.mode != domain.ModeConnectedPull {
		m.mu.Unlock()
		_ = pc.Close()
		return false
	}
	m.pushConn = pc
	m.attempts = 0
	m.pollCycles = 0
	ev := m.transitionLocked(domain.ModeConnectedPush, domain.ReasonProbeSucceeded)
	m.mu.Unlock()

	m.brk.RecordSuccess(Component)
	m.emitMode(ev)
	return true
}

// enterDegraded suppresses all transport attempts until the breaker lets
// a half-open probe through.
func (m *Manager) enterDegraded(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.mode == domain.ModeDegraded {
		m.mu.Unlock()
		return
	}
	pc := m.pushConn
	m.pushConn = nil
	ev := m.transitionLocked(domain.ModeDegraded, domain.ReasonCircuitOpen)
	m.scheduleLocked(gen, m.cfg.PollingInterval, m.degradedTick)
	m.mu.Unlock()

	if pc != nil {
		_ = pc.Close()
	}
	m.emitMode(ev)
}

// degradedTick checks whether the breaker allows a half-open probe yet.
func (m *Manager) degradedTick(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.mode != domain.ModeDegraded {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := m.brk.Allow(Component); err != nil {
		m.mu.Lock()
		if gen == m.gen && m.mode == domain.ModeDegraded {
			m.scheduleLocked(gen, m.cfg.PollingInterval, m.degradedTick)
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.mode != domain.ModeDegraded {
		m.mu.Unlock()
		return
	}
	ev := m.transitionLocked(domain.ModeConnecting, domain.ReasonCircuitHalfOpen)
	m.mu.Unlock()

	m.emitMode(ev)
	m.tryConnect(gen)
}

// report classifies a failure, feeds the breaker, and emits the error
// event. Transport failures never propagate to consumers as thrown
// errors, only as events.
func (m *Manager) report(err error, op string, attempt int) {
	ce := m.classifier.Classify(err, domain.ErrorContext{
		Component: Component,
		Operation: op,
		Attempt:   attempt,
	})
	m.brk.RecordFailure(Component)

	metrics.TransportFailures.WithLabelValues(op, string(ce.Category)).Inc()
	m.log.Warn("Transport failure",
		"operation", op,
		"category", ce.Category,
		"attempt", attempt,
		"error", err,
	)
	m.errSubs.emit(ce)
}

// transitionLocked changes the mode and returns the event to emit, or nil
// when the mode did not actually change. Caller holds m.mu and must emit
// after unlocking.
func (m *Manager) transitionLocked(to domain.ConnectionMode, reason string) *domain.ModeChangeEvent {
	if m.mode == to {
		return nil
	}
	ev := &domain.ModeChangeEvent{From: m.mode, To: to, Reason: reason}
	m.mode = to
	return ev
}

func (m *Manager) emitMode(ev *domain.ModeChangeEvent) {
	if ev == nil {
		return
	}
	metrics.ModeChanges.WithLabelValues(ev.From.String(), ev.To.String(), ev.Reason).Inc()
	m.log.Info("Connection mode changed",
		"from", ev.From.String(),
		"to", ev.To.String(),
		"reason", ev.Reason,
	)
	m.modeSubs.emit(*ev)
}

// scheduleLocked replaces the single live timer with a new wait. Caller
// holds m.mu.
func (m *Manager) scheduleLocked(gen uint64, d time.Duration, fn func(uint64)) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(d, func() { fn(gen) })
}
