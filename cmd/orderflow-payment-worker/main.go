// Orderflow PaymentWorker — этап payment пайплайна заказов.
//
// Worker:
//   - Читает order-placed-queue, передаёт успешные заказы в inventory-queue
//   - Авторизует платёж; отказ переводит заказ в Failed
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
	logger := telemetry.SetupLogger("orderflow-payment-worker")
	logger.Info("starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunWorker(ctx, domain.StagePayment, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("orderflow-payment-worker stopped")
}
