package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shaiso/orderflow/internal/config"
	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/health"
	"github.com/shaiso/orderflow/internal/mq"
	"github.com/shaiso/orderflow/internal/repo"
	"github.com/shaiso/orderflow/internal/telemetry"
	"github.com/shaiso/orderflow/internal/worker"
)

// StageWork возвращает работу этапа с имитацией внешних систем.
// Логгер работа берёт из контекста сообщения.
func StageWork(stage domain.Stage, cfg config.Config) (worker.Work, error) {
	switch stage {
	case domain.StagePayment:
		return worker.PaymentWork{Authorizer: worker.RandomAuthorizer{
			SuccessRate: cfg.PaymentSuccessRate,
			Delay:       cfg.PaymentDelay,
		}}, nil
	case domain.StageInventory:
		return worker.InventoryWork{Reserver: worker.SimulatedInventory{
			Delay: cfg.InventoryDelay,
		}}, nil
	case domain.StageEmail:
		return worker.EmailWork{Notifier: worker.SimulatedNotifier{
			Delay: cfg.EmailDelay,
		}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", worker.ErrUnknownStage, stage)
	}
}

// RunWorker поднимает процесс этапа и блокируется до отмены ctx.
//
// После отмены воркер перестаёт принимать сообщения, дожидается
// обрабатываемого и закрывает соединения.
func RunWorker(ctx context.Context, stage domain.Stage, cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerName := string(stage.WorkerType())
	logger = telemetry.WithComponent(logger, string(stage)+"-worker").With("worker", workerName)

	work, err := StageWork(stage, cfg)
	if err != nil {
		return err
	}

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	// RabbitMQ
	conn, topo, err := ConnectBroker(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer conn.Close()

	input, next, err := worker.Route(stage, topo)
	if err != nil {
		return err
	}

	// Локальные проверки: счётчики, БД, брокер
	probe := health.NewProbe()
	eval := health.NewEvaluator(0)
	eval.Register("worker", health.ProbeCheck{Probe: probe})
	eval.Register("database", health.StoreCheck{DB: pool}, "ready")
	eval.Register("rabbitmq", health.BrokerCheck{Conn: conn}, "ready")

	reporter := health.NewReporter(health.ReporterConfig{
		WorkerName:   workerName,
		Probe:        probe,
		Evaluator:    eval,
		Writer:       repo.NewHealthRepo(pool),
		Logger:       logger,
		InitialDelay: cfg.HealthReportDelay,
		Period:       cfg.HealthReportPeriod,
	})

	processor := worker.NewProcessor(worker.ProcessorConfig{
		Stage: worker.StageConfig{
			Stage:      stage,
			InputQueue: input,
			NextQueue:  next,
			Work:       work,
		},
		Store:     repo.NewOrderRepo(pool),
		Publisher: mq.NewPublisher(conn, logger),
		Probe:     probe,
		Logger:    logger,
	})

	w := worker.New(worker.Config{
		Processor: processor,
		Conn:      conn,
		Reporter:  reporter,
		Logger:    logger,
	})
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.WorkerAddr(stage),
		Handler:           opsHandler(eval),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	served := serve(ctx, srv, logger, cancel)

	<-ctx.Done()

	w.Stop()
	<-served
	return nil
}
