package health

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"
)

// DefaultCheckTimeout — таймаут одной проверки.
const DefaultCheckTimeout = 5 * time.Second

// Filter отбирает проверки для запуска.
type Filter func(name string, tags []string) bool

// All — все зарегистрированные проверки.
func All(string, []string) bool { return true }

// None — ни одной проверки (liveness самого процесса).
func None(string, []string) bool { return false }

// Tagged — проверки с тегом tag.
func Tagged(tag string) Filter {
	return func(_ string, tags []string) bool {
		return slices.Contains(tags, tag)
	}
}

// Named — одна проверка по имени.
func Named(name string) Filter {
	return func(n string, _ []string) bool {
		return n == name
	}
}

// Entry — результат проверки в отчёте.
type Entry struct {
	Status      Status
	Description string
	Data        map[string]any
	Err         error
	Duration    time.Duration
}

func (e Entry) MarshalJSON() ([]byte, error) {
	var errText string
	if e.Err != nil {
		errText = e.Err.Error()
	}
	return json.Marshal(struct {
		Status      Status         `json:"status"`
		Description string         `json:"description,omitempty"`
		Data        map[string]any `json:"data,omitempty"`
		Error       string         `json:"error,omitempty"`
		Duration    float64        `json:"duration"`
	}{e.Status, e.Description, e.Data, errText, milliseconds(e.Duration)})
}

// Report — сводный результат запуска проверок.
// Статус отчёта — худший из статусов записей; пустой отчёт Healthy.
type Report struct {
	Status        Status
	TotalDuration time.Duration
	Entries       map[string]Entry
}

func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status        Status           `json:"status"`
		TotalDuration float64          `json:"total_duration"`
		Entries       map[string]Entry `json:"entries"`
	}{r.Status, milliseconds(r.TotalDuration), r.Entries})
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type registration struct {
	name  string
	check Check
	tags  []string
}

// Evaluator — реестр проверок здоровья.
type Evaluator struct {
	mu      sync.RWMutex
	checks  []registration
	timeout time.Duration
}

// NewEvaluator создаёт Evaluator с таймаутом одной проверки.
func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Evaluator{timeout: timeout}
}

// Register добавляет проверку. Повторное имя заменяет прежнюю.
func (e *Evaluator) Register(name string, check Check, tags ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reg := registration{name: name, check: check, tags: tags}
	for i := range e.checks {
		if e.checks[i].name == name {
			e.checks[i] = reg
			return
		}
	}
	e.checks = append(e.checks, reg)
}

// Names возвращает имена проверок в порядке регистрации.
func (e *Evaluator) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, len(e.checks))
	for i, c := range e.checks {
		names[i] = c.name
	}
	return names
}

// Run параллельно запускает отобранные проверки.
func (e *Evaluator) Run(ctx context.Context, filter Filter) Report {
	e.mu.RLock()
	var selected []registration
	for _, c := range e.checks {
		if filter(c.name, c.tags) {
			selected = append(selected, c)
		}
	}
	e.mu.RUnlock()

	start := time.Now()
	entries := make(map[string]Entry, len(selected))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range selected {
		wg.Add(1)
		go func(c registration) {
			defer wg.Done()
			entry := e.runOne(ctx, c.check)
			mu.Lock()
			entries[c.name] = entry
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	status := StatusHealthy
	for _, entry := range entries {
		status = Worst(status, entry.Status)
	}

	return Report{
		Status:        status,
		TotalDuration: time.Since(start),
		Entries:       entries,
	}
}

// runOne выполняет проверку с таймаутом. Паника проверки — Unhealthy.
func (e *Evaluator) runOne(ctx context.Context, check Check) Entry {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- Unhealthy("Health check panicked", fmt.Errorf("panic: %v", rec), nil)
			}
		}()
		done <- check.Check(ctx)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Unhealthy("Health check timed out", ctx.Err(), nil)
	}

	return Entry{
		Status:      res.Status,
		Description: res.Description,
		Data:        res.Data,
		Err:         res.Err,
		Duration:    time.Since(start),
	}
}
