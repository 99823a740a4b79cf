package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/orderflow/internal/health"
	"github.com/shaiso/orderflow/internal/mq"
)

// Worker — процесс одного этапа пайплайна.
//
// Владеет consumer'ом входной очереди и публикатором снимков здоровья.
// Несколько экземпляров одного этапа могут читать одну очередь:
// повторную обработку отсекает журнал дедупликации.
type Worker struct {
	processor *Processor
	conn      *mq.Connection
	queue     string
	prefetch  int
	reporter  *health.Reporter

	consumer *mq.Consumer

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Processor *Processor
	Conn      *mq.Connection

	// Reporter — публикатор снимков здоровья (опционально).
	Reporter *health.Reporter

	// Prefetch — неподтверждённых сообщений на канал (default: 1).
	Prefetch int

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Worker{
		processor: cfg.Processor,
		conn:      cfg.Conn,
		queue:     cfg.Processor.stage.InputQueue,
		prefetch:  prefetch,
		reporter:  cfg.Reporter,
		logger:    logger,
	}
}

// Start запускает consumer и публикатор здоровья.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"stage", w.processor.stage.Stage,
		"queue", w.queue,
		"next_queue", w.processor.stage.NextQueue,
		"prefetch", w.prefetch,
	)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    w.queue,
		Handler:  w.processor.Handle,
		Prefetch: w.prefetch,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("consumer error", "queue", w.queue, "error", err)
		}
	}()

	if w.reporter != nil {
		w.reporter.Start(ctx)
	}

	w.logger.Info("worker started")
	return nil
}

// Stop прекращает приём сообщений и ждёт, пока обрабатываемое
// сообщение пройдёт протокол до ack/nack.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	if w.stopped {
		w.stoppedMu.Unlock()
		return
	}
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.consumer != nil {
		w.consumer.Stop()
	}
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()

	if w.reporter != nil {
		w.reporter.Stop()
	}

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
