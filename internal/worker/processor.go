package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/health"
	"github.com/shaiso/orderflow/internal/mq"
	"github.com/shaiso/orderflow/internal/repo"
	"github.com/shaiso/orderflow/internal/telemetry"
)

const (
	defaultPublishAttempts = 3
	defaultPublishBackoff  = 200 * time.Millisecond
	maxPublishBackoff      = 5 * time.Second
)

// OrderStore — операции хранилища, нужные этапу (*repo.OrderRepo).
type OrderStore interface {
	IsMessageProcessed(ctx context.Context, messageID string, workerType domain.WorkerType) (bool, error)
	MarkStageInProgress(ctx context.Context, orderID uuid.UUID, stage domain.Stage) error
	RecordMessage(ctx context.Context, orderID uuid.UUID, messageID string, stage domain.Stage) error
	CompleteStage(ctx context.Context, res repo.StageResult) (domain.Transition, error)
}

// Publisher — публикация в очередь (*mq.Publisher).
type Publisher interface {
	Publish(ctx context.Context, queue, messageID string, payload any) error
}

// StageConfig — этап пайплайна: откуда читает, куда передаёт, что делает.
// Пустой NextQueue — последний этап.
type StageConfig struct {
	Stage      domain.Stage
	InputQueue string
	NextQueue  string
	Work       Work
}

// Route возвращает входную и следующую очереди этапа.
func Route(stage domain.Stage, t mq.Topology) (input, next string, err error) {
	switch stage {
	case domain.StagePayment:
		return t.OrderPlaced, t.Inventory, nil
	case domain.StageInventory:
		return t.Inventory, t.Email, nil
	case domain.StageEmail:
		return t.Email, "", nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
}

// ProcessorConfig — конфигурация Processor.
type ProcessorConfig struct {
	Stage     StageConfig
	Store     OrderStore
	Publisher Publisher
	Probe     *health.Probe
	Logger    *slog.Logger

	PublishAttempts int           // попыток публикации в следующую очередь (default: 3)
	PublishBackoff  time.Duration // задержка перед второй попыткой, далее x2 (default: 200ms)
}

// Processor — идемпотентный обработчик сообщений одного этапа.
type Processor struct {
	stage     StageConfig
	store     OrderStore
	publisher Publisher
	probe     *health.Probe
	logger    *slog.Logger

	publishAttempts int
	publishBackoff  time.Duration
}

// NewProcessor создаёт Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	probe := cfg.Probe
	if probe == nil {
		probe = health.NewProbe()
	}
	attempts := cfg.PublishAttempts
	if attempts <= 0 {
		attempts = defaultPublishAttempts
	}
	backoff := cfg.PublishBackoff
	if backoff <= 0 {
		backoff = defaultPublishBackoff
	}

	return &Processor{
		stage:           cfg.Stage,
		store:           cfg.Store,
		publisher:       cfg.Publisher,
		probe:           probe,
		logger:          logger.With("stage", string(cfg.Stage.Stage)),
		publishAttempts: attempts,
		publishBackoff:  backoff,
	}
}

// Probe возвращает счётчики этапа.
func (p *Processor) Probe() *health.Probe {
	return p.probe
}

// Handle обрабатывает одно сообщение.
//
// Результат для consumer:
//   - nil — ack (успех, повтор, отказ в оплате, заказ уже завершён)
//   - mq.ErrReject — битое сообщение или несуществующий заказ
//   - иначе — requeue
func (p *Processor) Handle(ctx context.Context, d *mq.Delivery) error {
	start := time.Now()

	outcome, err := p.handle(ctx, d)

	stage := string(p.stage.Stage)
	telemetry.StageMessages.WithLabelValues(stage, outcome).Inc()
	telemetry.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())

	switch outcome {
	case telemetry.OutcomeAcked, telemetry.OutcomeDuplicate, telemetry.OutcomeSkipped, telemetry.OutcomeDeclined:
		p.probe.RecordProcessed()
	default:
		p.probe.RecordError()
	}
	return err
}

func (p *Processor) handle(ctx context.Context, d *mq.Delivery) (string, error) {
	msg, err := domain.DecodeOrderPlacedMessage(d.Body)
	if err != nil {
		p.logger.Warn("discarding malformed message",
			"queue", d.Queue,
			"amqp_message_id", d.MessageID,
			"error", err,
		)
		return telemetry.OutcomeRejected, mq.Reject(err)
	}

	ctx, span := telemetry.StartSpan(ctx, "stage."+string(p.stage.Stage),
		attribute.String("order_id", msg.OrderID.String()),
		attribute.String("message_id", msg.MessageID),
		attribute.String("stage", string(p.stage.Stage)),
		attribute.Bool("redelivered", d.Redelivered),
	)
	outcome, err := p.process(ctx, msg)
	span.SetAttributes(attribute.String("outcome", outcome))
	telemetry.EndSpan(span, err)

	return outcome, err
}

// process — протокол этапа после разбора сообщения.
func (p *Processor) process(ctx context.Context, msg *domain.OrderPlacedMessage) (string, error) {
	stage := p.stage.Stage
	logger := telemetry.WithMessage(p.logger, msg.MessageID, msg.OrderID.String())

	// 1. Журнал дедупликации
	done, err := p.store.IsMessageProcessed(ctx, msg.MessageID, stage.WorkerType())
	if err != nil {
		return telemetry.OutcomeRequeued, fmt.Errorf("check processed message: %w", err)
	}
	if done {
		logger.Info("message already processed, skipping")
		return telemetry.OutcomeDuplicate, nil
	}

	// 2. Этап в работе
	if err := p.store.MarkStageInProgress(ctx, msg.OrderID, stage); err != nil {
		if errors.Is(err, repo.ErrStageFinished) {
			return p.skip(ctx, logger, msg)
		}
		if errors.Is(err, repo.ErrNotFound) {
			logger.Error("order not found, rejecting message")
			return telemetry.OutcomeRejected, mq.Reject(fmt.Errorf("%w: %s", ErrOrderMissing, msg.OrderID))
		}
		return telemetry.OutcomeRequeued, fmt.Errorf("mark %s in progress: %w", stage, err)
	}

	// 3. Работа этапа
	logger.Info("processing stage")
	result, err := p.stage.Work.Perform(telemetry.WithLogger(ctx, logger), msg)
	if err != nil {
		return telemetry.OutcomeRequeued, fmt.Errorf("perform %s: %w", stage, err)
	}

	// 4. Статус этапа, статус заказа, история и дедупликация одной транзакцией
	tr, err := p.store.CompleteStage(ctx, repo.StageResult{
		OrderID:   msg.OrderID,
		MessageID: msg.MessageID,
		Stage:     stage,
		Outcome:   result,
	})
	switch {
	case errors.Is(err, repo.ErrDuplicateMessage):
		logger.Warn("concurrent duplicate processing detected")
		return telemetry.OutcomeDuplicate, nil
	case errors.Is(err, repo.ErrNotFound):
		logger.Error("order disappeared during processing, rejecting message")
		return telemetry.OutcomeRejected, mq.Reject(fmt.Errorf("%w: %s", ErrOrderMissing, msg.OrderID))
	case err != nil:
		return telemetry.OutcomeRequeued, fmt.Errorf("complete %s: %w", stage, err)
	}

	if tr.Changed {
		logger.Info("order status changed", "from", tr.From, "to", tr.To, "message", tr.Message)
	}

	if result == domain.ProcessingStatusFailed {
		logger.Warn("stage declined, order will not proceed", "order_status", tr.To)
		return telemetry.OutcomeDeclined, nil
	}

	// Заказ завершился раньше (например, отказом другого сообщения):
	// дальше по пайплайну не передаём
	if !tr.Changed && tr.To.IsTerminal() {
		logger.Warn("order already finished, not forwarding", "order_status", tr.To)
		return telemetry.OutcomeSkipped, nil
	}

	// 5. Передача следующему этапу только после коммита
	if p.stage.NextQueue != "" {
		if err := p.forward(ctx, logger, msg); err != nil {
			return telemetry.OutcomeRequeued, err
		}
	}

	logger.Info("stage completed")
	return telemetry.OutcomeAcked, nil
}

// skip фиксирует сообщение в журнале дедупликации, не выполняя работу
// этапа: этап или заказ уже завершён другим сообщением.
func (p *Processor) skip(ctx context.Context, logger *slog.Logger, msg *domain.OrderPlacedMessage) (string, error) {
	err := p.store.RecordMessage(ctx, msg.OrderID, msg.MessageID, p.stage.Stage)
	switch {
	case errors.Is(err, repo.ErrDuplicateMessage):
		logger.Info("message already processed, skipping")
		return telemetry.OutcomeDuplicate, nil
	case err != nil:
		return telemetry.OutcomeRequeued, fmt.Errorf("record skipped message: %w", err)
	}

	logger.Warn("stage or order already finished, skipping message")
	return telemetry.OutcomeSkipped, nil
}

// forward публикует то же сообщение в очередь следующего этапа
// с повторами и экспоненциальной задержкой.
func (p *Processor) forward(ctx context.Context, logger *slog.Logger, msg *domain.OrderPlacedMessage) error {
	queue := p.stage.NextQueue

	var err error
	for attempt := 1; attempt <= p.publishAttempts; attempt++ {
		if err = p.publisher.Publish(ctx, queue, msg.MessageID, msg); err == nil {
			logger.Info("published to next stage", "queue", queue)
			return nil
		}
		if attempt == p.publishAttempts {
			break
		}

		delay := publishBackoff(attempt, p.publishBackoff)
		logger.Warn("publish failed, retrying",
			"queue", queue,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("publish to %s: %w", queue, sleepErr)
		}
	}

	return fmt.Errorf("%w: %s: %w", ErrPublishExhausted, queue, err)
}

// publishBackoff — задержка перед попыткой attempt+1: initial * 2^(attempt-1),
// не больше maxPublishBackoff.
func publishBackoff(attempt int, initial time.Duration) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxPublishBackoff {
			return maxPublishBackoff
		}
	}
	return delay
}
