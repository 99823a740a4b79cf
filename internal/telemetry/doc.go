// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики этапов, приёма заказов и HTTP
//   - tracing.go — OpenTelemetry спаны
//
// API и воркеры используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
