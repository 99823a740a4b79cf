package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order — заказ покупателя.
//
// Order создаётся шлюзом приёма заказов вместе с позициями и первой записью
// истории. Дальше его продвигают воркеры этапов: каждый меняет свой
// статус этапа, а итоговый статус заказа вычисляет Decide.
type Order struct {
	// ID — идентификатор заказа, не меняется за всю жизнь заказа.
	ID uuid.UUID `json:"order_id"`

	// IdempotencyKey — ключ идемпотентности от клиента.
	// Nil, если клиент его не передал. Уникален в хранилище.
	IdempotencyKey *string `json:"idempotency_key,omitempty"`

	CustomerEmail string          `json:"customer_email"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	OrderDate     time.Time       `json:"order_date"`

	// Status — итоговый статус заказа.
	Status OrderStatus `json:"status"`

	// Статусы этапов, независимые друг от друга.
	PaymentStatus   ProcessingStatus `json:"payment_status"`
	InventoryStatus ProcessingStatus `json:"inventory_status"`
	EmailStatus     ProcessingStatus `json:"email_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Items — позиции заказа, неизменяемы после создания.
	Items []OrderItem `json:"items"`
}

// OrderItem — позиция заказа.
type OrderItem struct {
	ID          uuid.UUID       `json:"order_item_id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LineTotal возвращает стоимость позиции.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StatusHistory — запись журнала смены статусов заказа.
// Только добавляется, никогда не изменяется.
type StatusHistory struct {
	ID        uuid.UUID   `json:"history_id"`
	OrderID   uuid.UUID   `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewOrder создаёт заказ в статусе Pending со всеми этапами в Pending.
// Пустой idempotencyKey означает, что ключ не передан.
func NewOrder(customerEmail string, totalAmount decimal.Decimal, idempotencyKey string, items []OrderItem) *Order {
	now := time.Now().UTC()
	order := &Order{
		ID:              uuid.New(),
		CustomerEmail:   customerEmail,
		TotalAmount:     totalAmount.Round(2),
		OrderDate:       now,
		Status:          OrderStatusPending,
		PaymentStatus:   ProcessingStatusPending,
		InventoryStatus: ProcessingStatusPending,
		EmailStatus:     ProcessingStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if idempotencyKey != "" {
		key := idempotencyKey
		order.IdempotencyKey = &key
	}

	order.Items = make([]OrderItem, len(items))
	for i, item := range items {
		item.ID = uuid.New()
		item.OrderID = order.ID
		item.UnitPrice = item.UnitPrice.Round(2)
		order.Items[i] = item
	}
	return order
}

// StageStatus возвращает статус указанного этапа.
func (o *Order) StageStatus(stage Stage) ProcessingStatus {
	switch stage {
	case StagePayment:
		return o.PaymentStatus
	case StageInventory:
		return o.InventoryStatus
	case StageEmail:
		return o.EmailStatus
	default:
		return ""
	}
}

// SetStageStatus меняет статус этапа, если переход допустим.
// Возвращает false, если статус остался прежним.
func (o *Order) SetStageStatus(stage Stage, status ProcessingStatus) bool {
	if !o.StageStatus(stage).CanTransitionTo(status) {
		return false
	}
	switch stage {
	case StagePayment:
		o.PaymentStatus = status
	case StageInventory:
		o.InventoryStatus = status
	case StageEmail:
		o.EmailStatus = status
	default:
		return false
	}
	return true
}

// ProcessedMessage — запись журнала дедупликации.
// Пара (MessageID, WorkerType) уникальна.
type ProcessedMessage struct {
	ID          uuid.UUID  `json:"id"`
	MessageID   string     `json:"message_id"`
	OrderID     uuid.UUID  `json:"order_id"`
	WorkerType  WorkerType `json:"worker_type"`
	ProcessedAt time.Time  `json:"processed_at"`
}
