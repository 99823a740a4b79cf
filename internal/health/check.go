package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/repo"
)

// DefaultWorkerTimeout — сколько снимок воркера считается свежим.
const DefaultWorkerTimeout = 30 * time.Second

// Result — результат одной проверки.
type Result struct {
	Status      Status
	Description string
	Data        map[string]any
	Err         error
	Duration    time.Duration
}

// Healthy создаёт успешный результат.
func Healthy(description string, data map[string]any) Result {
	return Result{Status: StatusHealthy, Description: description, Data: data}
}

// Unhealthy создаёт неуспешный результат.
func Unhealthy(description string, err error, data map[string]any) Result {
	return Result{Status: StatusUnhealthy, Description: description, Err: err, Data: data}
}

// Check — проверка одной зависимости.
type Check interface {
	Check(ctx context.Context) Result
}

// CheckFunc адаптирует функцию к интерфейсу Check.
type CheckFunc func(ctx context.Context) Result

func (f CheckFunc) Check(ctx context.Context) Result { return f(ctx) }

// Pinger — хранилище, которое умеет отвечать на ping (*pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck проверяет доступность БД.
type StoreCheck struct {
	DB Pinger
}

func (c StoreCheck) Check(ctx context.Context) Result {
	if err := c.DB.Ping(ctx); err != nil {
		return Unhealthy("Database health check failed", err, nil)
	}
	return Healthy("Database is healthy", nil)
}

// BrokerStatus — соединение с брокером (*mq.Connection).
type BrokerStatus interface {
	Check() error
}

// BrokerCheck проверяет, что соединение и канал AMQP открыты.
type BrokerCheck struct {
	Conn BrokerStatus
}

func (c BrokerCheck) Check(_ context.Context) Result {
	if err := c.Conn.Check(); err != nil {
		return Unhealthy("RabbitMQ is not available", err, map[string]any{"connection_open": false})
	}
	return Healthy("RabbitMQ is healthy", map[string]any{"connection_open": true, "channel_open": true})
}

// ProbeCheck — локальные счётчики воркера.
type ProbeCheck struct {
	Probe *Probe
	Now   func() time.Time
}

func (c ProbeCheck) Check(_ context.Context) Result {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	status, description, s := c.Probe.Evaluate(now)
	return Result{
		Status:      status,
		Description: description,
		Data: map[string]any{
			"total_processed":            s.TotalProcessed,
			"total_errors":               s.TotalErrors,
			"error_rate":                 s.ErrorRate,
			"last_processed":             s.LastProcessed,
			"seconds_since_last_process": now.Sub(s.LastProcessed).Seconds(),
		},
	}
}

// WorkerStatusReader читает сохранённые снимки воркеров (*repo.HealthRepo).
type WorkerStatusReader interface {
	Get(ctx context.Context, workerName string) (*domain.WorkerHealthStatus, error)
}

// RemoteWorkerCheck оценивает воркер по его строке в worker_health_status.
//
// Другой процесс недоступен напрямую: общая БД — единственный канал.
// Устаревший снимок важнее сохранённого статуса.
type RemoteWorkerCheck struct {
	Reader     WorkerStatusReader
	WorkerName string
	Timeout    time.Duration
	Now        func() time.Time
}

func (c RemoteWorkerCheck) Check(ctx context.Context) Result {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultWorkerTimeout
	}

	h, err := c.Reader.Get(ctx, c.WorkerName)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Unhealthy(fmt.Sprintf("Worker %s has never reported status", c.WorkerName), nil, nil)
		}
		return Unhealthy(fmt.Sprintf("Error checking worker %s health", c.WorkerName), err, nil)
	}

	elapsed := now.Sub(h.LastCheckTime)
	data := map[string]any{
		"worker_name":            h.WorkerName,
		"last_check_time":        h.LastCheckTime,
		"time_since_last_update": elapsed.Seconds(),
		"total_processed":        h.TotalProcessed,
		"total_errors":           h.TotalErrors,
		"error_rate":             h.ErrorRate,
		"reported_status":        h.Status,
	}

	if elapsed > timeout {
		return Unhealthy(fmt.Sprintf("Worker %s stopped reporting %.0fs ago", c.WorkerName, elapsed.Seconds()), nil, data)
	}

	status := ParseStatus(h.Status)
	return Result{
		Status:      status,
		Description: fmt.Sprintf("Worker %s is %s", c.WorkerName, h.Status),
		Data:        data,
	}
}
