package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/orderflow/internal/domain"
)

// HealthRepo — репозиторий снимков здоровья воркеров.
type HealthRepo struct {
	db DB
}

// NewHealthRepo создаёт новый HealthRepo.
func NewHealthRepo(db DB) *HealthRepo {
	return &HealthRepo{db: db}
}

// Upsert создаёт или перезаписывает строку воркера.
func (r *HealthRepo) Upsert(ctx context.Context, h *domain.WorkerHealthStatus) error {
	var details []byte
	if len(h.Details) > 0 {
		details = h.Details
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO worker_health_status (worker_name, status, last_check_time, total_processed,
		                                  total_errors, error_rate, details, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (worker_name) DO UPDATE SET
			status          = EXCLUDED.status,
			last_check_time = EXCLUDED.last_check_time,
			total_processed = EXCLUDED.total_processed,
			total_errors    = EXCLUDED.total_errors,
			error_rate      = EXCLUDED.error_rate,
			details         = EXCLUDED.details,
			updated_at      = EXCLUDED.updated_at
	`,
		h.WorkerName,
		h.Status,
		h.LastCheckTime,
		h.TotalProcessed,
		h.TotalErrors,
		h.ErrorRate,
		details,
		h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert worker health %s: %w", h.WorkerName, err)
	}
	return nil
}

const healthColumns = `worker_name, status, last_check_time, total_processed, total_errors, error_rate, details, updated_at`

// Get возвращает последний снимок воркера или ErrNotFound.
func (r *HealthRepo) Get(ctx context.Context, workerName string) (*domain.WorkerHealthStatus, error) {
	row := r.db.QueryRow(ctx, `SELECT `+healthColumns+` FROM worker_health_status WHERE worker_name = $1`, workerName)

	h, err := scanHealth(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get worker health %s: %w", workerName, err)
	}
	return h, nil
}

// List возвращает снимки всех воркеров.
func (r *HealthRepo) List(ctx context.Context) ([]domain.WorkerHealthStatus, error) {
	rows, err := r.db.Query(ctx, `SELECT `+healthColumns+` FROM worker_health_status ORDER BY worker_name`)
	if err != nil {
		return nil, fmt.Errorf("list worker health: %w", err)
	}
	defer rows.Close()

	var result []domain.WorkerHealthStatus
	for rows.Next() {
		h, err := scanHealth(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker health: %w", err)
		}
		result = append(result, *h)
	}
	return result, rows.Err()
}

func scanHealth(row rowScanner) (*domain.WorkerHealthStatus, error) {
	var h domain.WorkerHealthStatus
	var details []byte

	err := row.Scan(
		&h.WorkerName,
		&h.Status,
		&h.LastCheckTime,
		&h.TotalProcessed,
		&h.TotalErrors,
		&h.ErrorRate,
		&details,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		h.Details = details
	}
	return &h, nil
}
