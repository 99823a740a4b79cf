package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shaiso/orderflow/internal/domain"
)

// Сообщения ответа на создание заказа.
const (
	MessageOrderPlaced    = "Order placed successfully. Processing..."
	MessageOrderDuplicate = "Order already exists (idempotent response)"
)

// IdempotencyKeyHeader — заголовок с ключом идемпотентности.
// Имеет приоритет над полем idempotency_key в теле.
const IdempotencyKeyHeader = "Idempotency-Key"

// Order DTOs

// CreateOrderRequest — запрос на создание заказа.
type CreateOrderRequest struct {
	CustomerEmail  string             `json:"customer_email" validate:"required,email"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
	Items          []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	IdempotencyKey string             `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

// OrderItemRequest — позиция в запросе на создание заказа.
type OrderItemRequest struct {
	ProductID   string          `json:"product_id" validate:"required,max=100"`
	ProductName string          `json:"product_name" validate:"required,max=255"`
	Quantity    int             `json:"quantity" validate:"required,min=1"`
	Price       decimal.Decimal `json:"price"`
}

// toDomain конвертирует позиции запроса в позиции заказа.
func (r CreateOrderRequest) toDomain() []domain.OrderItem {
	items := make([]domain.OrderItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = domain.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
		}
	}
	return items
}

// CreateOrderResponse — ответ на создание заказа.
type CreateOrderResponse struct {
	OrderID   uuid.UUID          `json:"order_id"`
	Status    domain.OrderStatus `json:"status"`
	Message   string             `json:"message"`
	Duplicate bool               `json:"duplicate"`
}

// OrderResponse — заказ со статусами этапов и позициями.
type OrderResponse struct {
	ID              uuid.UUID               `json:"order_id"`
	IdempotencyKey  *string                 `json:"idempotency_key,omitempty"`
	CustomerEmail   string                  `json:"customer_email"`
	TotalAmount     string                  `json:"total_amount"`
	OrderDate       time.Time               `json:"order_date"`
	Status          domain.OrderStatus      `json:"status"`
	PaymentStatus   domain.ProcessingStatus `json:"payment_status"`
	InventoryStatus domain.ProcessingStatus `json:"inventory_status"`
	EmailStatus     domain.ProcessingStatus `json:"email_status"`
	Items           []OrderItemResponse     `json:"items"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// OrderItemResponse — позиция заказа.
type OrderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	LineTotal   string `json:"line_total"`
}

// OrderFromDomain конвертирует domain.Order в OrderResponse.
// Денежные суммы отдаются строкой с двумя знаками.
func OrderFromDomain(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.UnitPrice.StringFixed(2),
			LineTotal:   it.LineTotal().StringFixed(2),
		}
	}

	return OrderResponse{
		ID:              o.ID,
		IdempotencyKey:  o.IdempotencyKey,
		CustomerEmail:   o.CustomerEmail,
		TotalAmount:     o.TotalAmount.StringFixed(2),
		OrderDate:       o.OrderDate,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		InventoryStatus: o.InventoryStatus,
		EmailStatus:     o.EmailStatus,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// HistoryItemResponse — запись истории статусов.
type HistoryItemResponse struct {
	Status    domain.OrderStatus `json:"status"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
}

// HistoryFromDomain конвертирует историю в ответ, сохраняя порядок.
func HistoryFromDomain(history []domain.StatusHistory) []HistoryItemResponse {
	out := make([]HistoryItemResponse, len(history))
	for i, h := range history {
		out[i] = HistoryItemResponse{
			Status:    h.Status,
			Message:   h.Message,
			Timestamp: h.CreatedAt,
		}
	}
	return out
}

// OrderSummaryResponse — заказ в списке заказов покупателя.
type OrderSummaryResponse struct {
	ID          uuid.UUID          `json:"order_id"`
	TotalAmount string             `json:"total_amount"`
	OrderDate   time.Time          `json:"order_date"`
	Status      domain.OrderStatus `json:"status"`
	ItemCount   int                `json:"item_count"`
}

// OrderSummaryFromDomain конвертирует domain.Order в OrderSummaryResponse.
func OrderSummaryFromDomain(o domain.Order) OrderSummaryResponse {
	return OrderSummaryResponse{
		ID:          o.ID,
		TotalAmount: o.TotalAmount.StringFixed(2),
		OrderDate:   o.OrderDate,
		Status:      o.Status,
		ItemCount:   len(o.Items),
	}
}
