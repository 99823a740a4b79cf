package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shaiso/orderflow/internal/api"
	"github.com/shaiso/orderflow/internal/config"
	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/health"
	"github.com/shaiso/orderflow/internal/mq"
	"github.com/shaiso/orderflow/internal/repo"
	"github.com/shaiso/orderflow/internal/telemetry"
)

// MonitoredWorkers — воркеры, чьи снимки оценивает GET /health.
var MonitoredWorkers = []domain.WorkerType{
	domain.WorkerTypePayment,
	domain.WorkerTypeInventory,
	domain.WorkerTypeEmail,
}

// APIEvaluator собирает проверки шлюза: хранилище и брокер с тегом
// "ready", плюс удалённая проверка каждого воркера под его именем.
func APIEvaluator(db health.Pinger, broker health.BrokerStatus, workers health.WorkerStatusReader, cfg config.Config) *health.Evaluator {
	eval := health.NewEvaluator(0)
	eval.Register("database", health.StoreCheck{DB: db}, "ready")
	eval.Register("rabbitmq", health.BrokerCheck{Conn: broker}, "ready")

	for _, w := range MonitoredWorkers {
		eval.Register(string(w), health.RemoteWorkerCheck{
			Reader:     workers,
			WorkerName: string(w),
			Timeout:    cfg.WorkerHealthTimeout,
		}, "workers")
	}
	return eval
}

// RunAPI поднимает HTTP шлюз и блокируется до отмены ctx.
func RunAPI(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger = telemetry.WithComponent(logger, "api")

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	if cfg.ApplySchema {
		if err := repo.ApplySchema(ctx, pool); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		logger.Info("schema applied")
	}

	// RabbitMQ
	conn, topo, err := ConnectBroker(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer conn.Close()

	healthRepo := repo.NewHealthRepo(pool)

	handler := api.NewHandler(api.Config{
		Orders:                repo.NewOrderRepo(pool),
		Publisher:             mq.NewPublisher(conn, logger),
		Workers:               healthRepo,
		Health:                APIEvaluator(pool, conn, healthRepo, cfg),
		OrderPlacedQueue:      topo.OrderPlaced,
		RequireIdempotencyKey: cfg.RequireIdempotencyKey,
		Logger:                logger,
	})

	srv := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	served := serve(ctx, srv, logger, cancel)

	<-ctx.Done()
	logger.Info("shutting down")

	<-served
	return nil
}
