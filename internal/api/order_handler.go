package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/repo"
	"github.com/shaiso/orderflow/internal/telemetry"
)

// Результаты приёма заказа для метрики OrdersSubmitted.
const (
	submitCreated   = "created"
	submitDuplicate = "duplicate"
	submitInvalid   = "invalid"
	submitError     = "error"
)

// CreateOrder обрабатывает POST /api/v1/orders.
//
// Повторный запрос с тем же ключом идемпотентности возвращает
// существующий заказ (200, duplicate=true) и ничего не публикует.
func (h *Handler) CreateOrder(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "order.submit")
	var spanErr error
	defer func() { telemetry.EndSpan(span, spanErr) }()

	var req CreateOrderRequest
	if !h.bind(c, &req) {
		telemetry.OrdersSubmitted.WithLabelValues(submitInvalid).Inc()
		return
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if header := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)); header != "" {
		// То же ограничение, что у idempotency_key в теле
		var ve validator.ValidationErrors
		if err := h.validate.Var(header, "max=255"); errors.As(err, &ve) {
			telemetry.OrdersSubmitted.WithLabelValues(submitInvalid).Inc()
			ValidationFailed(c, map[string]string{IdempotencyKeyHeader: fieldMessage(ve[0])})
			return
		}
		key = header
	}
	if key == "" && h.requireKey {
		telemetry.OrdersSubmitted.WithLabelValues(submitInvalid).Inc()
		BadRequest(c, IdempotencyKeyHeader+" header or idempotency_key is required")
		return
	}

	logger := h.logger.With("customer_email", req.CustomerEmail)
	if key != "" {
		logger = logger.With("idempotency_key", key)
		span.SetAttributes(attribute.String("idempotency_key", key))

		existing, err := h.orders.GetByIdempotencyKey(ctx, key)
		switch {
		case err == nil:
			logger.Info("duplicate order request", "order_id", existing.ID)
			h.respondDuplicate(c, existing)
			return
		case !errors.Is(err, repo.ErrNotFound):
			spanErr = err
			telemetry.OrdersSubmitted.WithLabelValues(submitError).Inc()
			InternalError(c, logger, err)
			return
		}
	}

	order := domain.NewOrder(req.CustomerEmail, req.TotalAmount, key, req.toDomain())
	span.SetAttributes(attribute.String("order_id", order.ID.String()))

	if err := h.orders.Create(ctx, order); err != nil {
		// Параллельный запрос с тем же ключом успел раньше.
		if key != "" && errors.Is(err, repo.ErrAlreadyExists) {
			existing, getErr := h.orders.GetByIdempotencyKey(ctx, key)
			if getErr == nil {
				logger.Info("duplicate order request lost the race", "order_id", existing.ID)
				h.respondDuplicate(c, existing)
				return
			}
			err = getErr
		}
		spanErr = err
		telemetry.OrdersSubmitted.WithLabelValues(submitError).Inc()
		InternalError(c, logger, err)
		return
	}

	msg := domain.NewOrderPlacedMessage(order)
	if err := h.publisher.Publish(ctx, h.orderPlacedQueue, msg.MessageID, msg); err != nil {
		// TODO: писать сообщение в outbox той же транзакцией, что и заказ.
		spanErr = err
		telemetry.OrdersSubmitted.WithLabelValues(submitError).Inc()
		InternalError(c, telemetry.WithOrderID(logger, order.ID.String()), err)
		return
	}

	telemetry.OrdersSubmitted.WithLabelValues(submitCreated).Inc()
	telemetry.WithMessage(logger, msg.MessageID, order.ID.String()).Info("order placed",
		"total_amount", order.TotalAmount.StringFixed(2),
		"items", len(order.Items),
	)

	Created(c, CreateOrderResponse{
		OrderID:   order.ID,
		Status:    order.Status,
		Message:   MessageOrderPlaced,
		Duplicate: false,
	})
}

func (h *Handler) respondDuplicate(c *gin.Context, order *domain.Order) {
	telemetry.OrdersSubmitted.WithLabelValues(submitDuplicate).Inc()
	c.JSON(http.StatusOK, DataResponse{Data: CreateOrderResponse{
		OrderID:   order.ID,
		Status:    order.Status,
		Message:   MessageOrderDuplicate,
		Duplicate: true,
	}})
}

// GetOrder обрабатывает GET /api/v1/orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetByID(c.Request.Context(), id)
	if handleRepoError(c, h.logger, err, "order not found") {
		return
	}

	Success(c, OrderFromDomain(order))
}

// GetOrderHistory обрабатывает GET /api/v1/orders/:id/history.
func (h *Handler) GetOrderHistory(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	history, err := h.orders.History(c.Request.Context(), id)
	if handleRepoError(c, h.logger, err, "order not found") {
		return
	}
	// У любого заказа есть запись о создании.
	if len(history) == 0 {
		NotFound(c, "order not found")
		return
	}

	List(c, HistoryFromDomain(history), len(history))
}

// ListCustomerOrders обрабатывает GET /api/v1/customers/:email/orders.
func (h *Handler) ListCustomerOrders(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	if err := h.validate.Var(email, "required,email"); err != nil {
		BadRequest(c, "invalid customer email")
		return
	}

	orders, err := h.orders.ListByCustomerEmail(c.Request.Context(), email)
	if handleRepoError(c, h.logger, err, "customer not found") {
		return
	}

	out := make([]OrderSummaryResponse, len(orders))
	for i, o := range orders {
		out[i] = OrderSummaryFromDomain(o)
	}
	List(c, out, len(out))
}

func parseOrderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}
