// Package engine is the public entry point of the live data layer. It
// combines the connection manager, the error classifier and the circuit
// breaker behind one constructible facade; the composition root wires a
// dashboard to exactly one Engine (no hidden global instance, so tests
// can run several independently).
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/livefeed/internal/conn"
	"github.com/vietddude/livefeed/internal/conn/transport"
	"github.com/vietddude/livefeed/internal/core/domain"
	"github.com/vietddude/livefeed/internal/infra/storage"
	"github.com/vietddude/livefeed/internal/infra/storage/memory"
	"github.com/vietddude/livefeed/internal/metrics"
	"github.com/vietddude/livefeed/internal/resilience/breaker"
	"github.com/vietddude/livefeed/internal/resilience/classify"
)

// SnapshotStore caches the latest payload per channel for warm starts.
type SnapshotStore interface {
	Save(ctx context.Context, channel string, payload []byte) error
	Load(ctx context.Context, channel string) ([]byte, error)
}

// Config holds engine tuning knobs.
type Config struct {
	Conn    conn.Config
	Breaker breaker.Config
}

// Options carries optional collaborators. Zero values get defaults:
// WebSocket push, HTTP pull, in-memory journal, no snapshot cache.
type Options struct {
	Push      transport.PushTransport
	Pull      transport.PullTransport
	Journal   storage.ErrorJournal
	Snapshots SnapshotStore
	Logger    *slog.Logger
}

// ErrorStatistics summarizes classified errors seen by this engine.
type ErrorStatistics struct {
	TotalErrors      int64
	ErrorsByCategory map[domain.ErrorCategory]int64
}

// Engine is the resilience facade.
type Engine struct {
	mgr       *conn.Manager
	brk       *breaker.Breaker
	cls       *classify.Classifier
	journal   storage.ErrorJournal
	snapshots SnapshotStore
	log       *slog.Logger

	mu          sync.Mutex
	url         string
	ready       chan struct{}
	readyClosed bool
	total       int64
	byCategory  map[domain.ErrorCategory]int64
}

// New creates an engine.
func New(cfg Config, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	push := opts.Push
	if push == nil {
		push = transport.NewWebSocket(10 * time.Second)
	}
	pull := opts.Pull
	if pull == nil {
		pull = transport.NewHTTPPoller(10 * time.Second)
	}
	journal := opts.Journal
	if journal == nil {
		journal = memory.NewErrorJournal()
	}

	brk := breaker.New(cfg.Breaker)
	mgr := conn.NewManager(cfg.Conn, push, pull, brk, log)

	e := &Engine{
		mgr:        mgr,
		brk:        brk,
		journal:    journal,
		snapshots:  opts.Snapshots,
		log:        log,
		byCategory: make(map[domain.ErrorCategory]int64),
	}

	// Recovery actions carry live effects bound to this engine's manager.
	e.cls = classify.New(classify.Hooks{
		Retry:     mgr.Retry,
		Reconnect: mgr.Reconnect,
		Fallback:  mgr.FallbackToPull,
	})
	mgr.SetClassifier(e.cls)

	mgr.OnError(e.recordError)
	mgr.OnData(e.saveSnapshot)
	mgr.OnModeChange(e.trackReady)
	brk.OnStateChange(e.exportBreakerState)

	e.ready = make(chan struct{})

	return e
}

// Start begins feeding data from url. No-op while already running.
func (e *Engine) Start(url string) {
	e.mu.Lock()
	e.url = url
	if e.readyClosed {
		e.ready = make(chan struct{})
		e.readyClosed = false
	}
	e.mu.Unlock()
	e.mgr.Start(url)
}

// Ready blocks until the engine reaches a connected mode, push or pull.
// Concurrent callers share one pending wait instead of each watching
// mode changes on their own.
func (e *Engine) Ready(ctx context.Context) error {
	e.mu.Lock()
	ch := e.ready
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) trackReady(ev domain.ModeChangeEvent) {
	if !ev.To.Connected() {
		return
	}
	e.mu.Lock()
	if !e.readyClosed {
		e.readyClosed = true
		close(e.ready)
	}
	e.mu.Unlock()
}

// Stop disconnects and cancels all pending work. Idempotent. Ready
// waiters arriving after Stop block until the next session connects.
func (e *Engine) Stop() {
	e.mgr.Stop()
	e.mu.Lock()
	if e.readyClosed {
		e.ready = make(chan struct{})
		e.readyClosed = false
	}
	e.mu.Unlock()
}

// CurrentMode returns the current connection mode.
func (e *Engine) CurrentMode() domain.ConnectionMode {
	return e.mgr.CurrentMode()
}

// OnData subscribes to data updates. Returns an unsubscribe function.
func (e *Engine) OnData(fn func(payload []byte)) func() {
	return e.mgr.OnData(fn)
}

// OnModeChange subscribes to mode-change events.
func (e *Engine) OnModeChange(fn func(domain.ModeChangeEvent)) func() {
	return e.mgr.OnModeChange(fn)
}

// OnError subscribes to classified error events.
func (e *Engine) OnError(fn func(*domain.ClassifiedError)) func() {
	return e.mgr.OnError(fn)
}

// Classify runs a raw failure through the engine's classifier. Intended
// for backend-call wrappers that want the same taxonomy and recovery
// actions as the connection engine.
func (e *Engine) Classify(err error, ctx domain.ErrorContext) *domain.ClassifiedError {
	ce := e.cls.Classify(err, ctx)
	e.recordError(ce)
	return ce
}

// Allow asks the circuit breaker whether a call to the component may
// proceed.
func (e *Engine) Allow(componentKey string) error {
	return e.brk.Allow(componentKey)
}

// RecordSuccess feeds a component success to the circuit breaker.
func (e *Engine) RecordSuccess(componentKey string) {
	e.brk.RecordSuccess(componentKey)
}

// RecordFailure feeds a component failure to the circuit breaker.
func (e *Engine) RecordFailure(componentKey string) {
	e.brk.RecordFailure(componentKey)
}

// ResetBreaker manually closes the circuit for a component.
func (e *Engine) ResetBreaker(componentKey string) {
	e.brk.Reset(componentKey)
}

// BreakerSnapshot returns the state of every known breaker component.
func (e *Engine) BreakerSnapshot() []domain.BreakerSnapshot {
	return e.brk.Snapshot()
}

// ErrorStatistics returns counters for all errors classified through
// this engine since construction.
func (e *Engine) ErrorStatistics() ErrorStatistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	byCat := make(map[domain.ErrorCategory]int64, len(e.byCategory))
	for k, v := range e.byCategory {
		byCat[k] = v
	}
	return ErrorStatistics{TotalErrors: e.total, ErrorsByCategory: byCat}
}

// LastSnapshot returns the cached payload for the current channel, or
// nil when no snapshot cache is configured or none exists yet.
func (e *Engine) LastSnapshot(ctx context.Context) ([]byte, error) {
	if e.snapshots == nil {
		return nil, nil
	}
	e.mu.Lock()
	url := e.url
	e.mu.Unlock()
	return e.snapshots.Load(ctx, url)
}

func (e *Engine) recordError(ce *domain.ClassifiedError) {
	e.mu.Lock()
	e.total++
	e.byCategory[ce.Category]++
	e.mu.Unlock()

	metrics.ErrorsClassified.WithLabelValues(string(ce.Category), string(ce.Severity)).Inc()

	msg := ""
	if ce.Err != nil {
		msg = ce.Err.Error()
	}
	rec := &storage.ErrorRecord{
		ID:         ce.ID,
		Category:   string(ce.Category),
		Severity:   string(ce.Severity),
		Component:  ce.Context.Component,
		Operation:  ce.Context.Operation,
		Retryable:  ce.Retryable,
		Message:    msg,
		OccurredAt: ce.Timestamp,
	}

	// Journal writes are best effort and must never slow down event
	// delivery.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.journal.Append(ctx, rec); err != nil {
			e.log.Warn("Failed to journal error", "id", rec.ID, "error", err)
		}
	}()
}

func (e *Engine) saveSnapshot(payload []byte) {
	if e.snapshots == nil {
		return
	}
	e.mu.Lock()
	url := e.url
	e.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.snapshots.Save(ctx, url, payload); err != nil {
			e.log.Warn("Failed to save snapshot", "error", err)
		}
	}()
}

func (e *Engine) exportBreakerState(ev domain.BreakerEvent) {
	var v float64
	switch ev.State {
	case domain.BreakerHalfOpen:
		v = 1
	case domain.BreakerOpen:
		v = 2
	}
	metrics.BreakerState.WithLabelValues(ev.Component).Set(v)
}
