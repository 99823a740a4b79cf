package health

import (
	"sync"
	"time"
)

const (
	// UnhealthyErrorRate — доля ошибок, выше которой воркер Unhealthy.
	UnhealthyErrorRate = 0.5

	// MinSamples — минимум исходов, после которого доля ошибок учитывается.
	MinSamples = 10

	// IdleThreshold — простой, после которого воркер Degraded.
	IdleThreshold = 60 * time.Minute
)

// Snapshot — согласованная копия счётчиков Probe.
type Snapshot struct {
	TotalProcessed int64     `json:"total_processed"`
	TotalErrors    int64     `json:"total_errors"`
	ErrorRate      float64   `json:"error_rate"`
	LastProcessed  time.Time `json:"last_processed"`
}

// Samples — число учтённых исходов.
func (s Snapshot) Samples() int64 {
	return s.TotalProcessed + s.TotalErrors
}

// Probe — локальные счётчики воркера.
// Безопасен для конкурентного использования.
type Probe struct {
	mu            sync.Mutex
	processed     int64
	errors        int64
	lastProcessed time.Time
	now           func() time.Time
}

// NewProbe создаёт Probe. Отсчёт простоя идёт с момента создания.
func NewProbe() *Probe {
	return newProbe(time.Now)
}

func newProbe(now func() time.Time) *Probe {
	return &Probe{now: now, lastProcessed: now()}
}

// RecordProcessed учитывает успешно обработанное сообщение.
func (p *Probe) RecordProcessed() {
	p.mu.Lock()
	p.processed++
	p.lastProcessed = p.now()
	p.mu.Unlock()
}

// RecordError учитывает ошибку обработки.
func (p *Probe) RecordError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// Snapshot возвращает копию счётчиков.
func (p *Probe) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		TotalProcessed: p.processed,
		TotalErrors:    p.errors,
		LastProcessed:  p.lastProcessed,
	}
	if total := s.Samples(); total > 0 {
		s.ErrorRate = float64(s.TotalErrors) / float64(total)
	}
	return s
}

// Evaluate вычисляет статус воркера на момент now.
//
//   - Unhealthy: доля ошибок > 50% при ≥ 10 исходах
//   - Degraded: больше часа без обработанных сообщений, при этом хотя бы одно было
//   - иначе Healthy
func (p *Probe) Evaluate(now time.Time) (Status, string, Snapshot) {
	s := p.Snapshot()

	if s.Samples() >= MinSamples && s.ErrorRate > UnhealthyErrorRate {
		return StatusUnhealthy, "High error rate detected", s
	}
	if s.TotalProcessed > 0 && now.Sub(s.LastProcessed) > IdleThreshold {
		return StatusDegraded, "No messages processed recently", s
	}
	return StatusHealthy, "Worker is healthy", s
}
