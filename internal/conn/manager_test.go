package conn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/livefeed/internal/conn/transport"
	"github.com/vietddude/livefeed/internal/core/domain"
	"github.com/vietddude/livefeed/internal/resilience/breaker"
	"github.com/vietddude/livefeed/internal/resilience/classify"
)

// fakePush is a scriptable push transport: it fails the first failUntil
// opens, then succeeds.
type fakePush struct {
	mu        sync.Mutex
	failUntil int
	opens     int
	conns     []*fakeConn
}

func (f *fakePush) Open(ctx context.Context, url string, cb transport.Callbacks) (transport.PushConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.opens <= f.failUntil {
		return nil, errors.New("WebSocket connection failed")
	}
	c := &fakeConn{cb: cb}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakePush) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakePush) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type fakeConn struct {
	cb     transport.Callbacks
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) drop(err error) {
	c.cb.OnClose(err)
}

func (c *fakeConn) send(payload []byte) {
	c.cb.OnMessage(payload)
}

// fakePull serves a fixed payload, or errors when broken.
type fakePull struct {
	mu      sync.Mutex
	broken  bool
	fetches int
}

func (f *fakePull) Fetch(ctx context.Context, endpoint string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.broken {
		return nil, errors.New("Failed to fetch")
	}
	return []byte(`{"poll":true}`), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(cfg Config, push transport.PushTransport, pull transport.PullTransport, bcfg breaker.Config) *Manager {
	m := NewManager(cfg, push, pull, breaker.New(bcfg), quietLogger())
	m.SetClassifier(classify.New(classify.Hooks{}))
	return m
}

func fastConfig() Config {
	return Config{
		BaseDelay:            1 * time.Millisecond,
		MaxDelay:             4 * time.Millisecond,
		MaxReconnectAttempts: 3,
		PollingInterval:      5 * time.Millisecond,
		ProbeEvery:           2,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(1 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestConnectSuccess(t *testing.T) {
	push := &fakePush{}
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{})
	defer m.Stop()

	var events []domain.ModeChangeEvent
	var mu sync.Mutex
	m.OnModeChange(func(ev domain.ModeChangeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	var got []byte
	m.OnData(func(p []byte) {
		mu.Lock()
		got = p
		mu.Unlock()
	})

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPush })

	push.lastConn().send([]byte(`{"metric":1}`))
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(got) == `{"metric":1}`
	})

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("got %d mode events, want 2 (start, connected)", len(events))
	}
	if events[0].To != domain.ModeConnecting || events[0].Reason != domain.ReasonStart {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].To != domain.ModeConnectedPush || events[1].Reason != domain.ReasonConnected {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestFallbackAfterMaxAttempts(t *testing.T) {
	push := &fakePush{failUntil: 1000} // never succeeds
	pull := &fakePull{}
	cfg := fastConfig()
	cfg.ProbeEvery = 0 // keep pull mode from dialing push again
	m := newTestManager(cfg, push, pull, breaker.Config{FailureThreshold: 100})
	defer m.Stop()

	var mu sync.Mutex
	var fallback *domain.ModeChangeEvent
	fallbackCount := 0
	m.OnModeChange(func(ev domain.ModeChangeEvent) {
		if ev.Reason == domain.ReasonMaxAttempts {
			mu.Lock()
			e := ev
			fallback = &e
			fallbackCount++
			mu.Unlock()
		}
	})

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPull })

	// Initial attempt plus exactly maxReconnectAttempts scheduled reconnects.
	time.Sleep(20 * time.Millisecond)
	if n := push.openCount(); n != 4 {
		t.Errorf("push dialed %d times, want 4 (1 initial + 3 reconnects)", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if fallbackCount != 1 {
		t.Fatalf("fallback event fired %d times, want 1", fallbackCount)
	}
	if fallback.From.String() != "connecting" || fallback.To.String() != "polling" {
		t.Errorf("fallback event = %+v", *fallback)
	}

	// Pull transport now feeds data.
	pull.mu.Lock()
	fetched := pull.fetches
	pull.mu.Unlock()
	if fetched == 0 {
		t.Error("no pull fetches after fallback")
	}
}

func TestDropReconnects(t *testing.T) {
	push := &fakePush{}
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{})
	defer m.Stop()

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPush })

	first := push.lastConn()
	first.drop(errors.New("websocket closed: abnormal closure"))

	// Manager reconnects on a fresh channel.
	waitFor(t, time.Second, func() bool {
		return m.CurrentMode() == domain.ModeConnectedPush && push.openCount() == 2
	})
}

func TestProbeRecoversToPush(t *testing.T) {
	push := &fakePush{failUntil: 4} // initial + 3 reconnects fail, probe succeeds
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{FailureThreshold: 100})
	defer m.Stop()

	var mu sync.Mutex
	var probeEv *domain.ModeChangeEvent
	m.OnModeChange(func(ev domain.ModeChangeEvent) {
		if ev.Reason == domain.ReasonProbeSucceeded {
			mu.Lock()
			e := ev
			probeEv = &e
			mu.Unlock()
		}
	})

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPull })
	waitFor(t, 2*time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPush })

	mu.Lock()
	defer mu.Unlock()
	if probeEv == nil {
		t.Fatal("no probe_succeeded event")
	}
	if probeEv.From != domain.ModeConnectedPull || probeEv.To != domain.ModeConnectedPush {
		t.Errorf("probe event = %+v", *probeEv)
	}
}

func TestBreakerOpensDegraded(t *testing.T) {
	push := &fakePush{failUntil: 2}
	m := newTestManager(Config{
		BaseDelay:            1 * time.Millisecond,
		MaxDelay:             2 * time.Millisecond,
		MaxReconnectAttempts: 10,
		PollingInterval:      5 * time.Millisecond,
	}, push, &fakePull{}, breaker.Config{FailureThreshold: 2, ResetTimeout: 25 * time.Millisecond})
	defer m.Stop()

	m.Start("ws://example.test/feed")

	// Two consecutive failures trip the breaker; mode degrades.
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeDegraded })

	// After the reset timeout the half-open probe goes through; the push
	// transport succeeds now, so the channel recovers.
	waitFor(t, 2*time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPush })
}

func TestErrorEventsClassified(t *testing.T) {
	push := &fakePush{failUntil: 1000}
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{FailureThreshold: 100})
	defer m.Stop()

	var mu sync.Mutex
	var cats []domain.ErrorCategory
	m.OnError(func(ce *domain.ClassifiedError) {
		mu.Lock()
		cats = append(cats, ce.Category)
		mu.Unlock()
	})

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(cats) >= 1
	})

	mu.Lock()
	defer mu.Unlock()
	if cats[0] != domain.CategoryTransport {
		t.Errorf("category = %s, want transport", cats[0])
	}
}

func TestStopIdempotent(t *testing.T) {
	push := &fakePush{}
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{})

	var mu sync.Mutex
	stops := 0
	m.OnModeChange(func(ev domain.ModeChangeEvent) {
		if ev.To == domain.ModeDisconnected {
			mu.Lock()
			stops++
			mu.Unlock()
		}
	})

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPush })

	m.Stop()
	if m.CurrentMode() != domain.ModeDisconnected {
		t.Fatal("not disconnected after first Stop")
	}
	m.Stop()
	if m.CurrentMode() != domain.ModeDisconnected {
		t.Fatal("not disconnected after second Stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if stops != 1 {
		t.Errorf("disconnected event fired %d times, want 1", stops)
	}
}

func TestStartWhileRunningNoop(t *testing.T) {
	push := &fakePush{}
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{})
	defer m.Stop()

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPush })

	m.Start("ws://example.test/other")
	time.Sleep(10 * time.Millisecond)
	if n := push.openCount(); n != 1 {
		t.Errorf("second Start dialed again: %d opens", n)
	}
}

func TestLateCallbackAfterStopIgnored(t *testing.T) {
	push := &fakePush{}
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{})

	var mu sync.Mutex
	var events []domain.ModeChangeEvent
	m.OnModeChange(func(ev domain.ModeChangeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPush })
	conn := push.lastConn()

	m.Stop()
	mu.Lock()
	before := len(events)
	mu.Unlock()

	// A drop arriving after Stop belongs to a dead generation.
	conn.drop(errors.New("websocket closed late"))
	time.Sleep(10 * time.Millisecond)

	if m.CurrentMode() != domain.ModeDisconnected {
		t.Error("late callback changed mode")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != before {
		t.Errorf("late callback emitted %d extra events", len(events)-before)
	}
}

func TestStopFromCallback(t *testing.T) {
	push := &fakePush{}
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{})

	done := make(chan struct{})
	m.OnModeChange(func(ev domain.ModeChangeEvent) {
		if ev.To == domain.ModeConnectedPush {
			m.Stop() // must not deadlock
			close(done)
		}
	})

	m.Start("ws://example.test/feed")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop from callback deadlocked")
	}
	if m.CurrentMode() != domain.ModeDisconnected {
		t.Error("Stop from callback did not disconnect")
	}
}

func TestNoDuplicateTransitions(t *testing.T) {
	push := &fakePush{failUntil: 1000}
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{FailureThreshold: 100})
	defer m.Stop()

	var mu sync.Mutex
	var events []domain.ModeChangeEvent
	m.OnModeChange(func(ev domain.ModeChangeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPull })

	mu.Lock()
	defer mu.Unlock()
	for i, ev := range events {
		if ev.From == ev.To {
			t.Errorf("event %d is a self-transition: %+v", i, ev)
		}
	}
}

func TestSubscriberPanicDoesNotBreakEngine(t *testing.T) {
	push := &fakePush{}
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{})
	defer m.Stop()

	m.OnModeChange(func(ev domain.ModeChangeEvent) {
		panic("subscriber bug")
	})

	var reached bool
	var mu sync.Mutex
	m.OnModeChange(func(ev domain.ModeChangeEvent) {
		mu.Lock()
		reached = true
		mu.Unlock()
	})

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPush })

	mu.Lock()
	defer mu.Unlock()
	if !reached {
		t.Error("later subscriber never reached after earlier panic")
	}
}

func TestUnsubscribe(t *testing.T) {
	push := &fakePush{}
	m := newTestManager(fastConfig(), push, &fakePull{}, breaker.Config{})
	defer m.Stop()

	var mu sync.Mutex
	count := 0
	unsub := m.OnModeChange(func(ev domain.ModeChangeEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsub()
	unsub() // idempotent

	m.Start("ws://example.test/feed")
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnectedPush })

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("unsubscribed callback fired %d times", count)
	}
}

// blockingPush blocks in Open until the dial context is cancelled.
type blockingPush struct {
	opened chan struct{}
}

func (p *blockingPush) Open(ctx context.Context, url string, cb transport.Callbacks) (transport.PushConn, error) {
	select {
	case p.opened <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStopDiscardsInFlightDialFailure(t *testing.T) {
	push := &blockingPush{opened: make(chan struct{}, 1)}
	// Threshold 1: a single leaked failure would open the breaker and
	// send the next start straight to degraded.
	brk := breaker.New(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Minute})
	m := NewManager(fastConfig(), push, &fakePull{}, brk, quietLogger())
	m.SetClassifier(classify.New(classify.Hooks{}))

	var mu sync.Mutex
	var errCount int
	m.OnError(func(*domain.ClassifiedError) {
		mu.Lock()
		errCount++
		mu.Unlock()
	})

	m.Start("ws://example.test/feed")
	<-push.opened // the dial is now in flight
	m.Stop()      // cancels the dial context; the failure unwinds late

	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	n := errCount
	mu.Unlock()
	if n != 0 {
		t.Errorf("in-flight dial failure emitted %d error events after stop", n)
	}
	if st := brk.State(Component); st != domain.BreakerClosed {
		t.Errorf("breaker = %s, want closed", st)
	}

	m.Start("ws://example.test/feed")
	defer m.Stop()
	waitFor(t, time.Second, func() bool { return m.CurrentMode() == domain.ModeConnecting })
	if m.CurrentMode() == domain.ModeDegraded {
		t.Error("restart entered degraded after discarded failure")
	}
}
