package health

import (
	"sync"
	"time"

	"github.com/vietddude/livefeed/internal/core/domain"
	"github.com/vietddude/livefeed/internal/engine"
)

// EngineStatus is the slice of the engine surface the monitor reads.
type EngineStatus interface {
	CurrentMode() domain.ConnectionMode
	BreakerSnapshot() []domain.BreakerSnapshot
	ErrorStatistics() engine.ErrorStatistics
}

// Monitor aggregates health status from the engine's components.
type Monitor struct {
	eng        EngineStatus
	interval   time.Duration
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. Reports are cached for
// interval between checks; zero or negative means 10s.
func NewMonitor(eng EngineStatus, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{eng: eng, interval: interval}
}

// CheckHealth builds the current health report.
func (m *Monitor) CheckHealth() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid hammering the engine's mutexes
	if time.Since(m.lastCheck) < m.interval && m.lastReport != nil {
		return *m.lastReport
	}

	mode := m.eng.CurrentMode()
	stats := m.eng.ErrorStatistics()

	report := HealthReport{
		Status:           StatusHealthy,
		Mode:             mode.String(),
		TotalErrors:      stats.TotalErrors,
		ErrorsByCategory: make(map[string]int64, len(stats.ErrorsByCategory)),
	}
	for cat, n := range stats.ErrorsByCategory {
		report.ErrorsByCategory[string(cat)] = n
	}

	anyOpen, anyHalfOpen := false, false
	for _, snap := range m.eng.BreakerSnapshot() {
		report.Breakers = append(report.Breakers, BreakerHealth{
			Component:    snap.Component,
			State:        string(snap.State),
			FailureCount: snap.FailureCount,
		})
		switch snap.State {
		case domain.BreakerOpen:
			anyOpen = true
		case domain.BreakerHalfOpen:
			anyHalfOpen = true
		}
	}

	switch {
	case mode == domain.ModeDegraded || anyOpen:
		report.Status = StatusCritical
	case mode == domain.ModeConnectedPush && !anyHalfOpen:
		report.Status = StatusHealthy
	default:
		// polling, connecting, disconnected, or a probing breaker
		report.Status = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
