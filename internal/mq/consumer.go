package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrReject — сообщение отклоняется без возврата в очередь.
// Handler оборачивает его, когда повтор не поможет (битое сообщение,
// заказ не найден). При включённом dead-lettering сообщение уходит в DLQ.
var ErrReject = errors.New("reject message")

// Reject оборачивает err в ErrReject.
func Reject(err error) error {
	if err == nil {
		return ErrReject
	}
	return fmt.Errorf("%w: %w", ErrReject, err)
}

// Handler — функция обработки сообщения.
//
// Результат определяет судьбу сообщения:
//   - nil — Ack
//   - ошибка с ErrReject — Nack без requeue
//   - любая другая ошибка — Nack с requeue (повторная доставка)
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	// Body — тело сообщения (JSON).
	Body []byte

	// MessageID — AMQP message-id (может быть пустым).
	MessageID string

	// Redelivered — брокер доставляет сообщение повторно.
	Redelivered bool

	// Queue — очередь, из которой пришло сообщение.
	Queue string
}

// action — что сделать с сообщением после обработки.
type action int

const (
	actionAck action = iota
	actionReject
	actionRequeue
)

func (a action) String() string {
	switch a {
	case actionAck:
		return "ack"
	case actionReject:
		return "reject"
	default:
		return "requeue"
	}
}

// actionFor сопоставляет результат Handler с действием над сообщением.
func actionFor(err error) action {
	switch {
	case err == nil:
		return actionAck
	case errors.Is(err, ErrReject):
		return actionReject
	default:
		return actionRequeue
	}
}

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int
	tag      string

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	stopped    bool
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — максимум неподтверждённых сообщений на канал (по умолчанию 1).
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
		tag:      cfg.Queue + "-" + uuid.NewString(),
	}
}

// Start запускает потребление и блокируется до отмены ctx.
//
// После отмены новые сообщения не принимаются, но сообщение, которое уже
// обрабатывается, доводится до ack/nack: обработчик получает контекст
// без отмены.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancelFunc = cancel
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		cancel()
	}

	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			// Ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.queue, "prefetch", c.prefetch)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				c.cancelConsume()
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNotConnected
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		c.tag,   // consumer tag
		false,   // auto-ack (мы ack вручную)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// cancelConsume просит брокер прекратить доставку по нашему тегу.
// Неподтверждённые сообщения вернутся в очередь при закрытии канала.
func (c *Consumer) cancelConsume() {
	ch := c.conn.Channel()
	if ch == nil || ch.IsClosed() {
		return
	}
	if err := ch.Cancel(c.tag, false); err != nil {
		c.logger.Warn("failed to cancel consumer", "queue", c.queue, "error", err)
	}
}

// processDeliveries обрабатывает сообщения из канала по одному.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			// После остановки новое сообщение возвращается в очередь
			// и в обработчик не попадает
			if err := ctx.Err(); err != nil {
				if nackErr := raw.Nack(false, true); nackErr != nil {
					c.logger.Warn("failed to requeue message on stop",
						"queue", c.queue,
						"message_id", raw.MessageId,
						"error", nackErr,
					)
				}
				return err
			}

			c.handleDelivery(context.WithoutCancel(ctx), raw)
		}
	}
}

// handleDelivery вызывает обработчик и подтверждает сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	delivery := &Delivery{
		Body:        raw.Body,
		MessageID:   raw.MessageId,
		Redelivered: raw.Redelivered,
		Queue:       c.queue,
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", raw.MessageId,
		"redelivered", raw.Redelivered,
	)

	err := c.handler(ctx, delivery)

	var ackErr error
	switch act := actionFor(err); act {
	case actionAck:
		ackErr = raw.Ack(false)
	case actionReject:
		c.logger.Warn("message rejected",
			"queue", c.queue,
			"message_id", raw.MessageId,
			"error", err,
		)
		ackErr = raw.Nack(false, false)
	default:
		c.logger.Error("handler failed, requeueing",
			"queue", c.queue,
			"message_id", raw.MessageId,
			"error", err,
		)
		ackErr = raw.Nack(false, true)
	}

	if ackErr != nil {
		// Канал уже закрыт: брокер сам вернёт сообщение в очередь
		c.logger.Warn("failed to acknowledge message",
			"queue", c.queue,
			"message_id", raw.MessageId,
			"error", ackErr,
		)
	}
}

// Stop останавливает consumer. Безопасен из любой горутины,
// в том числе до Start.
func (c *Consumer) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
