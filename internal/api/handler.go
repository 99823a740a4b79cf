package api

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/health"
)

// OrderStore — операции с заказами, нужные API (*repo.OrderRepo).
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	ListByCustomerEmail(ctx context.Context, email string) ([]domain.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]domain.StatusHistory, error)
}

// Publisher — публикация в очередь (*mq.Publisher).
type Publisher interface {
	Publish(ctx context.Context, queue, messageID string, payload any) error
}

// WorkerSnapshots — последние снимки здоровья воркеров (*repo.HealthRepo).
type WorkerSnapshots interface {
	List(ctx context.Context) ([]domain.WorkerHealthStatus, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	orders           OrderStore
	publisher        Publisher
	workers          WorkerSnapshots
	health           *health.Evaluator
	validate         *validator.Validate
	orderPlacedQueue string
	requireKey       bool
	logger           *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orders    OrderStore
	Publisher Publisher
	Workers   WorkerSnapshots

	// Health — проверки: с тегом "ready" для /health/ready,
	// воркеры регистрируются под своими именами.
	Health *health.Evaluator

	// OrderPlacedQueue — очередь первого этапа.
	OrderPlacedQueue string

	// RequireIdempotencyKey — без ключа заказ не принимается (400).
	RequireIdempotencyKey bool

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eval := cfg.Health
	if eval == nil {
		eval = health.NewEvaluator(0)
	}

	return &Handler{
		orders:           cfg.Orders,
		publisher:        cfg.Publisher,
		workers:          cfg.Workers,
		health:           eval,
		validate:         newValidator(),
		orderPlacedQueue: cfg.OrderPlacedQueue,
		requireKey:       cfg.RequireIdempotencyKey,
		logger:           logger,
	}
}
