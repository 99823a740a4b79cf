// Orderflow InventoryWorker — этап inventory пайплайна заказов.
//
// Worker:
//   - Читает inventory-queue, передаёт успешные заказы в email-queue
//   - Списывает остатки по позициям заказа
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
	logger := telemetry.SetupLogger("orderflow-inventory-worker")
	logger.Info("starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunWorker(ctx, domain.StageInventory, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("orderflow-inventory-worker stopped")
}
