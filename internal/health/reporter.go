package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/telemetry"
)

const (
	DefaultReportDelay  = 5 * time.Second
	DefaultReportPeriod = 10 * time.Second
)

// StatusWriter сохраняет снимок воркера (*repo.HealthRepo).
type StatusWriter interface {
	Upsert(ctx context.Context, h *domain.WorkerHealthStatus) error
}

// ReporterConfig — конфигурация Reporter.
type ReporterConfig struct {
	WorkerName   string
	Probe        *Probe
	Evaluator    *Evaluator // локальные проверки для details
	Writer       StatusWriter
	Logger       *slog.Logger
	InitialDelay time.Duration // default: 5s
	Period       time.Duration // default: 10s
}

// Reporter периодически публикует снимок воркера в общую БД.
type Reporter struct {
	cfg    ReporterConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	timer   *time.Timer
	cancel  context.CancelFunc
	stopped bool
}

// NewReporter создаёт Reporter.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultReportDelay
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultReportPeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = NewEvaluator(0)
	}

	return &Reporter{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "health-reporter", "worker", cfg.WorkerName),
		now:    func() time.Time { return time.Now().UTC() },
		cron:   cron.New(),
	}
}

// Start планирует публикации: первая через InitialDelay, затем каждые Period.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped || r.timer != nil {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.cron.Schedule(cron.Every(r.cfg.Period), cron.FuncJob(func() {
		r.publish(ctx)
	}))

	r.timer = time.AfterFunc(r.cfg.InitialDelay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.stopped {
			return
		}
		r.publish(ctx)
		r.cron.Start()
	})

	r.logger.Info("health reporter scheduled",
		"initial_delay", r.cfg.InitialDelay,
		"period", r.cfg.Period,
	)
}

// Stop останавливает расписание и ждёт выполняющуюся публикацию.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()

	<-r.cron.Stop().Done()
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Reporter) publish(ctx context.Context) {
	if err := r.PublishOnce(ctx); err != nil {
		r.logger.Error("failed to publish health status", "error", err)
	}
}

// PublishOnce записывает текущий снимок воркера.
//
// Статус строки — статус локальных счётчиков, details — отчёт
// всех локальных проверок.
func (r *Reporter) PublishOnce(ctx context.Context) error {
	now := r.now()
	status, _, snap := r.cfg.Probe.Evaluate(now)
	report := r.cfg.Evaluator.Run(ctx, All)

	details, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal health report: %w", err)
	}

	row := &domain.WorkerHealthStatus{
		WorkerName:     r.cfg.WorkerName,
		Status:         string(status),
		LastCheckTime:  now,
		TotalProcessed: snap.TotalProcessed,
		TotalErrors:    snap.TotalErrors,
		ErrorRate:      snap.ErrorRate,
		Details:        details,
		UpdatedAt:      now,
	}

	if err := r.cfg.Writer.Upsert(ctx, row); err != nil {
		telemetry.HealthReports.WithLabelValues(r.cfg.WorkerName, "error").Inc()
		return err
	}
	telemetry.HealthReports.WithLabelValues(r.cfg.WorkerName, "ok").Inc()

	r.logger.Debug("published health status",
		"status", status,
		"report_status", report.Status,
		"total_processed", snap.TotalProcessed,
		"total_errors", snap.TotalErrors,
	)
	return nil
}
