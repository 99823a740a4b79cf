// Package app собирает процессы orderflow из общих компонентов.
package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/orderflow/internal/config"
	"github.com/shaiso/orderflow/internal/health"
	"github.com/shaiso/orderflow/internal/mq"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Topology строит топологию брокера из конфигурации очередей.
func Topology(q config.Queues) mq.Topology {
	return mq.Topology{
		OrderPlaced:        q.OrderPlaced,
		Inventory:          q.Inventory,
		Email:              q.Email,
		DeadLetterEnabled:  q.DeadLetterEnabled,
		DeadLetterExchange: mq.DefaultDeadLetterExchange,
		DeadLetterQueue:    q.DeadLetter,
	}
}

// ConnectBroker подключается к RabbitMQ и объявляет топологию.
func ConnectBroker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*mq.Connection, mq.Topology, error) {
	topo := Topology(cfg.Queues)

	conn, err := mq.NewConnection(ctx, cfg.RabbitMQURL, logger)
	if err != nil {
		return nil, topo, err
	}
	if err := mq.SetupTopology(ctx, conn, topo); err != nil {
		conn.Close()
		return nil, topo, err
	}

	logger.Info("RabbitMQ connected", "topology", topo.Describe())
	return conn, topo, nil
}

// opsHandler — служебный HTTP воркера: /healthz (локальные проверки) и /metrics.
func opsHandler(eval *health.Evaluator) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		report := eval.Run(r.Context(), health.All)

		code := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(report)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// serve запускает HTTP сервер и останавливает его при отмене ctx.
// Ошибка запуска отменяет процесс через cancel.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger, cancel context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	go func() {
		defer close(done)
		<-ctx.Done()

		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}()

	return done
}
