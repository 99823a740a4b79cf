// Orderflow API — шлюз приёма заказов.
//
// API:
//   - POST /api/v1/orders — приём заказа с ключом идемпотентности
//   - GET  /api/v1/orders/:id, /history — статус и история заказа
//   - GET  /api/v1/customers/:email/orders — заказы покупателя
//   - GET  /health, /health/ready, /health/live — здоровье системы
//   - GET  /metrics — Prometheus
//
// Новый заказ публикуется в order-placed-queue для PaymentWorker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/shaiso/orderflow/internal/app"
	"github.com/shaiso/orderflow/internal/config"
	"github.com/shaiso/orderflow/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("orderflow-api")
	logger.Info("starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Логи запросов пишет middleware Logging
	gin.SetMode(gin.ReleaseMode)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunAPI(ctx, cfg, logger); err != nil {
		logger.Error("api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("orderflow-api stopped")
}
