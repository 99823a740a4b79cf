package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки сообщения этапом.
const (
	OutcomeAcked     = "acked"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeDeclined  = "declined"
	OutcomeRejected  = "rejected"
	OutcomeRequeued  = "requeued"
)

var (
	// StageMessages — сообщения, обработанные этапом, по исходу.
	StageMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_stage_messages_total",
		Help: "Messages handled by a pipeline stage, by outcome",
	}, []string{"stage", "outcome"})

	// StageDuration — длительность обработки сообщения этапом.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orderflow_stage_duration_seconds",
		Help:    "Time spent handling one message in a pipeline stage",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	// OrdersSubmitted — запросы на создание заказа по результату.
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_orders_submitted_total",
		Help: "Order submissions by result (created, duplicate, invalid, error)",
	}, []string{"result"})

	// HTTPRequests — HTTP запросы к API.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_http_requests_total",
		Help: "Total HTTP requests handled by orderflow-api",
	}, []string{"method", "route", "code"})

	// HTTPDuration — длительность HTTP запросов.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orderflow_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// HealthReports — публикации снимков здоровья воркеров.
	HealthReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_worker_health_reports_total",
		Help: "Worker health snapshots written to the shared store",
	}, []string{"worker", "result"})
)
