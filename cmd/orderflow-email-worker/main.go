// Orderflow EmailWorker — этап email пайплайна заказов.
//
// Worker:
//   - Читает email-queue, последний этап пайплайна
//   - Отправляет покупателю подтверждение и завершает заказ
//   - Публикует снимок здоровья в worker_health_status
//   - Отдаёт /healthz и /metrics
//
// Экземпляры масштабируются горизонтально: повторы отсекает журнал дедупликации.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/orderflow/internal/app"
	"github.com/shaiso/orderflow/internal/config"
	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("orderflow-email-worker")
	logger.Info("starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunWorker(ctx, domain.StageEmail, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("orderflow-email-worker stopped")
}
