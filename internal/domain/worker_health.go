package domain

import (
	"encoding/json"
	"time"
)

// WorkerHealthStatus — последний опубликованный снимок здоровья воркера.
//
// Одна строка на имя воркера, перезаписывается на каждом цикле публикации.
// Это не история, а последнее известное состояние.
type WorkerHealthStatus struct {
	// WorkerName — логическое имя воркера (PaymentWorker и т.д.).
	WorkerName string `json:"worker_name"`

	// Status — Healthy, Degraded или Unhealthy.
	Status string `json:"status"`

	// LastCheckTime — время публикации снимка.
	LastCheckTime time.Time `json:"last_check_time"`

	TotalProcessed int64   `json:"total_processed"`
	TotalErrors    int64   `json:"total_errors"`
	ErrorRate      float64 `json:"error_rate"`

	// Details — отчёт по всем локальным проверкам в JSON.
	Details json.RawMessage `json:"details,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}
