package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidMessage — тело сообщения не разбирается или структурно некорректно.
var ErrInvalidMessage = errors.New("invalid order placed message")

// OrderPlacedMessage — сообщение, которое проходит через все очереди пайплайна.
//
// MessageID выдаётся один раз на логическое событие и не перевыпускается
// при повторных доставках: по нему воркеры дедуплицируют обработку.
type OrderPlacedMessage struct {
	MessageID     string             `json:"message_id"`
	OrderID       uuid.UUID          `json:"order_id"`
	CustomerEmail string             `json:"customer_email"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	Items         []OrderItemMessage `json:"items"`
	Timestamp     time.Time          `json:"timestamp"`
}

// OrderItemMessage — позиция заказа в сообщении.
type OrderItemMessage struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// NewOrderPlacedMessage строит сообщение для заказа со свежим message_id.
func NewOrderPlacedMessage(order *Order) *OrderPlacedMessage {
	items := make([]OrderItemMessage, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemMessage{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.UnitPrice,
		}
	}

	return &OrderPlacedMessage{
		MessageID:     uuid.New().String(),
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		TotalAmount:   order.TotalAmount,
		Items:         items,
		Timestamp:     time.Now().UTC(),
	}
}

// Validate проверяет структурную корректность сообщения.
func (m *OrderPlacedMessage) Validate() error {
	if m.MessageID == "" {
		return fmt.Errorf("%w: empty message_id", ErrInvalidMessage)
	}
	if m.OrderID == uuid.Nil {
		return fmt.Errorf("%w: empty order_id", ErrInvalidMessage)
	}
	if len(m.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidMessage)
	}
	for i, item := range m.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has quantity %d", ErrInvalidMessage, i, item.Quantity)
		}
	}
	return nil
}

// DecodeOrderPlacedMessage разбирает и проверяет тело сообщения.
func DecodeOrderPlacedMessage(body []byte) (*OrderPlacedMessage, error) {
	var msg OrderPlacedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
