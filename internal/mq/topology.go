package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultDeadLetterExchange — обменник для отклонённых сообщений.
const DefaultDeadLetterExchange = "orderflow.dlx"

// Topology — имена очередей пайплайна.
//
// Сообщения публикуются в default exchange с routing key = имя очереди,
// поэтому для этапов обменники и привязки не нужны.
type Topology struct {
	OrderPlaced string
	Inventory   string
	Email       string

	// DeadLetterEnabled — отклонённые без requeue сообщения уходят
	// в DeadLetterQueue через DeadLetterExchange, а не теряются.
	DeadLetterEnabled  bool
	DeadLetterExchange string
	DeadLetterQueue    string
}

// DefaultTopology возвращает топологию по умолчанию.
func DefaultTopology() Topology {
	return Topology{
		OrderPlaced:        "order-placed-queue",
		Inventory:          "inventory-queue",
		Email:              "email-queue",
		DeadLetterEnabled:  true,
		DeadLetterExchange: DefaultDeadLetterExchange,
		DeadLetterQueue:    "orderflow-dead-letter-queue",
	}
}

// StageQueues возвращает очереди этапов в порядке пайплайна.
func (t Topology) StageQueues() []string {
	return []string{t.OrderPlaced, t.Inventory, t.Email}
}

// stageQueueArgs — аргументы очередей этапов.
func (t Topology) stageQueueArgs() amqp.Table {
	if !t.DeadLetterEnabled {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange,
		"x-dead-letter-routing-key": t.DeadLetterQueue,
	}
}

// declarer — подмножество *amqp.Channel, нужное для объявления топологии.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// SetupTopology объявляет очереди (durable, non-exclusive, non-auto-delete)
// и, если включено, dead-letter обменник с очередью.
// Вызывается и API, и каждым воркером: объявление идемпотентно.
func SetupTopology(ctx context.Context, conn *Connection, t Topology) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return declareTopology(ch, t)
	})
}

func declareTopology(ch declarer, t Topology) error {
	// 1. Dead-letter обменник и очередь
	if t.DeadLetterEnabled {
		err := ch.ExchangeDeclare(
			t.DeadLetterExchange, // name
			"direct",             // type
			true,                 // durable
			false,                // auto-deleted
			false,                // internal
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", t.DeadLetterExchange, err)
		}

		if err := declareQueue(ch, t.DeadLetterQueue, nil); err != nil {
			return err
		}

		err = ch.QueueBind(
			t.DeadLetterQueue,    // queue name
			t.DeadLetterQueue,    // routing key
			t.DeadLetterExchange, // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", t.DeadLetterQueue, t.DeadLetterExchange, err)
		}
	}

	// 2. Очереди этапов
	args := t.stageQueueArgs()
	for _, q := range t.StageQueues() {
		if err := declareQueue(ch, q, args); err != nil {
			return err
		}
	}

	return nil
}

func declareQueue(ch declarer, name string, args amqp.Table) error {
	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,  // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Describe возвращает описание топологии для логирования.
func (t Topology) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s → PaymentWorker → %s → InventoryWorker → %s → EmailWorker", t.OrderPlaced, t.Inventory, t.Email)
	if t.DeadLetterEnabled {
		fmt.Fprintf(&b, "; rejected → %s → %s", t.DeadLetterExchange, t.DeadLetterQueue)
	}
	return b.String()
}
