// Package health реализует агрегатор здоровья воркеров.
//
// Структура:
//   - probe.go     — локальные счётчики воркера и их оценка
//   - check.go     — проверки БД, брокера, счётчиков и удалённого воркера
//   - evaluator.go — реестр проверок, параллельный запуск с таймаутом
//   - reporter.go  — периодическая запись снимка в worker_health_status
//
// Воркеры и API — разные процессы. Единственный канал между ними —
// строка воркера в worker_health_status: воркер пишет её по расписанию,
// API читает и считает воркер мёртвым, если строка устарела.
package health
