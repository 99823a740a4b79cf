package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected — нет открытого соединения или канала.
var ErrNotConnected = errors.New("rabbitmq: not connected")

// Connection — одна пара соединение/канал AMQP на процесс.
//
// Особенности:
//   - Явная инициализация до старта основного цикла (NewConnection)
//   - Переподключение с экспоненциальной задержкой при разрыве соединения или канала
//   - Детерминированное освобождение ресурсов через Close
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	// Для уведомления consumer'а о переподключении
	reconnectCh chan struct{}
}

// NewConnection подключается к RabbitMQ.
//
// Пока ctx не отменён, неудачные попытки повторяются с задержкой:
// брокер часто поднимается позже процессов в docker-compose.
func NewConnection(ctx context.Context, url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:         url,
		logger:      logger.With("component", "rabbitmq"),
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	delay := 500 * time.Millisecond
	for {
		err := c.connect()
		if err == nil {
			break
		}

		c.logger.Warn("rabbitmq not ready", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect rabbitmq: %w", errors.Join(ctx.Err(), err))
		case <-time.After(delay):
		}
		delay = min(delay*2, 10*time.Second)
	}

	go c.watch()

	return c, nil
}

// connect устанавливает соединение и открывает канал.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = ch

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// watch ждёт закрытия соединения или канала и переподключается.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn, ch := c.conn, c.channel
		c.mu.RUnlock()

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-connClosed:
			c.logger.Warn("connection closed", "error", err)
		case err := <-chClosed:
			// Канал закрывается брокером при ошибке уровня канала
			// (например, PRECONDITION_FAILED); соединение пересоздаём целиком.
			c.logger.Warn("channel closed", "error", err)
			conn.Close()
		}

		c.reconnect()
	}
}

// reconnect пытается переподключиться с экспоненциальной задержкой.
func (c *Connection) reconnect() {
	delay := time.Second

	for {
		select {
		case <-c.closedCh:
			return
		case <-time.After(delay):
		}

		c.logger.Info("attempting to reconnect", "delay", delay)

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
			// Увеличиваем задержку (максимум 30 секунд)
			delay = min(delay*2, 30*time.Second)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")

		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
		return
	}
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify возвращает канал для уведомлений о переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}
	return fn(ch)
}

// IsConnected проверяет, что соединение и канал открыты.
func (c *Connection) IsConnected() bool {
	return c.Check() == nil
}

// Check возвращает причину, по которой соединение непригодно, или nil.
func (c *Connection) Check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.closed:
		return fmt.Errorf("%w: connection closed by owner", ErrNotConnected)
	case c.conn == nil || c.conn.IsClosed():
		return fmt.Errorf("%w: connection is closed", ErrNotConnected)
	case c.channel == nil || c.channel.IsClosed():
		return fmt.Errorf("%w: channel is closed", ErrNotConnected)
	}
	return nil
}

// Close закрывает канал и соединение. Повторный вызов безопасен.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}
