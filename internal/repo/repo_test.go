package repo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/shaiso/orderflow/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func verify(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func paymentResult(outcome domain.ProcessingStatus) StageResult {
	return StageResult{
		OrderID:   uuid.New(),
		MessageID: "msg-1",
		Stage:     domain.StagePayment,
		Outcome:   outcome,
	}
}

func TestCompleteStage_AppliesTransition(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT status, payment_status FROM orders").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows([]string{"status", "payment_status"}).AddRow("Pending", "InProgress"))
	mock.ExpectExec("UPDATE orders SET payment_status").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(anyArgs(4)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO order_status_history").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tr, err := r.CompleteStage(context.Background(), paymentResult(domain.ProcessingStatusCompleted))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.Changed || tr.To != domain.OrderStatusPaymentCompleted {
		t.Errorf("expected transition to PaymentCompleted, got %+v", tr)
	}
	if tr.Message != "Payment processed successfully" {
		t.Errorf("unexpected message %q", tr.Message)
	}

	verify(t, mock)
}

func TestCompleteStage_PaymentDeclined(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT status, payment_status FROM orders").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows([]string{"status", "payment_status"}).AddRow("Pending", "InProgress"))
	mock.ExpectExec("UPDATE orders SET payment_status").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(anyArgs(4)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO order_status_history").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tr, err := r.CompleteStage(context.Background(), paymentResult(domain.ProcessingStatusFailed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.To != domain.OrderStatusFailed || tr.Message != "Payment processing failed" {
		t.Errorf("expected Failed transition, got %+v", tr)
	}

	verify(t, mock)
}

func TestCompleteStage_DuplicateMessage(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs(anyArgs(5)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ux_processed_messages_message_worker"})
	mock.ExpectRollback()

	_, err := r.CompleteStage(context.Background(), paymentResult(domain.ProcessingStatusCompleted))
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got %v", err)
	}

	verify(t, mock)
}

func TestCompleteStage_OrderNotFound(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT status, payment_status FROM orders").
		WithArgs(anyArgs(1)...).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.CompleteStage(context.Background(), paymentResult(domain.ProcessingStatusCompleted))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	verify(t, mock)
}

func TestCompleteStage_AlreadyAdvancedIsNoop(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	// Этап уже Completed, заказ ушёл дальше: ни статус, ни история не меняются
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT status, payment_status FROM orders").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows([]string{"status", "payment_status"}).AddRow("InventoryUpdated", "Completed"))
	mock.ExpectCommit()

	tr, err := r.CompleteStage(context.Background(), paymentResult(domain.ProcessingStatusCompleted))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Changed {
		t.Errorf("expected no-op, got %+v", tr)
	}

	verify(t, mock)
}

func TestCompleteStage_StatusChangedConcurrently(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT status, payment_status FROM orders").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows([]string{"status", "payment_status"}).AddRow("Pending", "InProgress"))
	mock.ExpectExec("UPDATE orders SET payment_status").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(anyArgs(4)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := r.CompleteStage(context.Background(), paymentResult(domain.ProcessingStatusCompleted))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	verify(t, mock)
}

func TestCompleteStage_NoRuleRollsBack(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT status, inventory_status FROM orders").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows([]string{"status", "inventory_status"}).AddRow("PaymentCompleted", "InProgress"))
	mock.ExpectExec("UPDATE orders SET inventory_status").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	_, err := r.CompleteStage(context.Background(), StageResult{
		OrderID:   uuid.New(),
		MessageID: "msg-2",
		Stage:     domain.StageInventory,
		Outcome:   domain.ProcessingStatusFailed,
	})
	if !errors.Is(err, domain.ErrNoTransition) {
		t.Fatalf("expected ErrNoTransition, got %v", err)
	}

	verify(t, mock)
}

func TestMarkStageInProgress(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		mock := newMock(t)
		r := NewOrderRepo(mock)

		mock.ExpectExec("UPDATE orders SET email_status").
			WithArgs(anyArgs(3)...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		if err := r.MarkStageInProgress(context.Background(), uuid.New(), domain.StageEmail); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		verify(t, mock)
	})

	t.Run("already terminal", func(t *testing.T) {
		mock := newMock(t)
		r := NewOrderRepo(mock)

		mock.ExpectExec("UPDATE orders SET email_status").
			WithArgs(anyArgs(3)...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(anyArgs(1)...).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		err := r.MarkStageInProgress(context.Background(), uuid.New(), domain.StageEmail)
		if !errors.Is(err, ErrStageFinished) {
			t.Fatalf("expected ErrStageFinished, got %v", err)
		}
		verify(t, mock)
	})

	t.Run("order missing", func(t *testing.T) {
		mock := newMock(t)
		r := NewOrderRepo(mock)

		mock.ExpectExec("UPDATE orders SET email_status").
			WithArgs(anyArgs(3)...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(anyArgs(1)...).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		err := r.MarkStageInProgress(context.Background(), uuid.New(), domain.StageEmail)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		verify(t, mock)
	})
}

func TestMarkStageInProgress_GuardsFinishedOrders(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	mock.ExpectExec(`AND status NOT IN \('Completed', 'Failed'\)`).
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := r.MarkStageInProgress(context.Background(), uuid.New(), domain.StageInventory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	verify(t, mock)
}

func TestRecordMessage(t *testing.T) {
	t.Run("recorded", func(t *testing.T) {
		mock := newMock(t)
		r := NewOrderRepo(mock)
		orderID := uuid.New()

		mock.ExpectExec("INSERT INTO processed_messages").
			WithArgs(pgxmock.AnyArg(), "msg-2", orderID, "PaymentWorker", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		if err := r.RecordMessage(context.Background(), orderID, "msg-2", domain.StagePayment); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		verify(t, mock)
	})

	t.Run("duplicate", func(t *testing.T) {
		mock := newMock(t)
		r := NewOrderRepo(mock)

		mock.ExpectExec("INSERT INTO processed_messages").
			WithArgs(anyArgs(5)...).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ux_processed_messages_message_worker"})

		err := r.RecordMessage(context.Background(), uuid.New(), "msg-2", domain.StagePayment)
		if !errors.Is(err, ErrDuplicateMessage) {
			t.Fatalf("expected ErrDuplicateMessage, got %v", err)
		}
		verify(t, mock)
	})
}

func TestListByCustomerEmail_OldestFirst(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	first, second := uuid.New(), uuid.New()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var noKey *string

	orderCols := []string{"order_id", "idempotency_key", "customer_email", "total_amount", "order_date",
		"status", "payment_status", "inventory_status", "email_status", "created_at", "updated_at"}
	mock.ExpectQuery(`WHERE customer_email = \$1\s+ORDER BY created_at, order_id`).
		WithArgs("buyer@example.com").
		WillReturnRows(pgxmock.NewRows(orderCols).
			AddRow(first, noKey, "buyer@example.com", "10.00", created, "Completed", "Completed", "Completed", "Completed", created, created).
			AddRow(second, noKey, "buyer@example.com", "5.50", created.Add(time.Hour), "Pending", "Pending", "Pending", "Pending", created.Add(time.Hour), created.Add(time.Hour)))
	mock.ExpectQuery("FROM order_items").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"order_item_id", "order_id", "product_id", "product_name", "quantity", "unit_price"}).
			AddRow(uuid.New(), second, "p-1", "Mouse", 1, "5.50"))

	orders, err := r.ListByCustomerEmail(context.Background(), "buyer@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != first || orders[1].ID != second {
		t.Fatalf("expected creation order [%s %s], got %+v", first, second, orders)
	}
	if len(orders[0].Items) != 0 || len(orders[1].Items) != 1 {
		t.Errorf("items attached to wrong orders: %d/%d", len(orders[0].Items), len(orders[1].Items))
	}
	if !orders[1].TotalAmount.Equal(mustDecimal("5.50")) {
		t.Errorf("unexpected total %s", orders[1].TotalAmount)
	}
	verify(t, mock)
}

func TestIsMessageProcessed(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("msg-1", "InventoryWorker").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := r.IsMessageProcessed(context.Background(), "msg-1", domain.WorkerTypeInventory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected message to be processed")
	}
	verify(t, mock)
}

func TestCreate_DuplicateIdempotencyKey(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	order := domain.NewOrder("a@example.com", mustDecimal("10"), "key-1", nil)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(anyArgs(11)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_idempotency_key"})
	mock.ExpectRollback()

	if err := r.Create(context.Background(), order); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	verify(t, mock)
}

func TestCreate_WritesOrderItemsAndHistory(t *testing.T) {
	mock := newMock(t)
	r := NewOrderRepo(mock)

	order := domain.NewOrder("a@example.com", mustDecimal("12.00"), "", []domain.OrderItem{
		{ProductID: "p1", ProductName: "One", Quantity: 1, UnitPrice: mustDecimal("2")},
		{ProductID: "p2", ProductName: "Two", Quantity: 2, UnitPrice: mustDecimal("5")},
	})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(anyArgs(11)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_status_history").
		WithArgs(pgxmock.AnyArg(), order.ID, "Pending", "Order created", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := r.Create(context.Background(), order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	verify(t, mock)
}

func TestHealthRepo_Upsert(t *testing.T) {
	mock := newMock(t)
	r := NewHealthRepo(mock)

	mock.ExpectExec("INSERT INTO worker_health_status").
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := r.Upsert(context.Background(), &domain.WorkerHealthStatus{
		WorkerName:    "PaymentWorker",
		Status:        "Healthy",
		LastCheckTime: time.Now(),
		Details:       json.RawMessage(`{"status":"Healthy"}`),
		UpdatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	verify(t, mock)
}

func TestHealthRepo_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		r := NewHealthRepo(mock)

		checked := time.Now().Add(-5 * time.Second)
		mock.ExpectQuery("FROM worker_health_status WHERE worker_name").
			WithArgs("EmailWorker").
			WillReturnRows(pgxmock.NewRows([]string{
				"worker_name", "status", "last_check_time", "total_processed",
				"total_errors", "error_rate", "details", "updated_at",
			}).AddRow("EmailWorker", "Degraded", checked, int64(20), int64(2), 0.1, []byte(`{}`), checked))

		h, err := r.Get(context.Background(), "EmailWorker")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.Status != "Degraded" || h.TotalProcessed != 20 || h.TotalErrors != 2 {
			t.Errorf("unexpected snapshot %+v", h)
		}
		if !h.LastCheckTime.Equal(checked) {
			t.Errorf("expected last check %s, got %s", checked, h.LastCheckTime)
		}
		verify(t, mock)
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMock(t)
		r := NewHealthRepo(mock)

		mock.ExpectQuery("FROM worker_health_status WHERE worker_name").
			WithArgs("EmailWorker").
			WillReturnError(pgx.ErrNoRows)

		if _, err := r.Get(context.Background(), "EmailWorker"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		verify(t, mock)
	})
}

func TestSchema_DeclaresUniqueConstraints(t *testing.T) {
	for _, idx := range []string{
		"ux_orders_idempotency_key",
		"ux_processed_messages_message_worker",
		"ux_worker_health_status_worker_name",
	} {
		if !strings.Contains(Schema, "CREATE UNIQUE INDEX IF NOT EXISTS "+idx) {
			t.Errorf("schema must declare unique index %s", idx)
		}
	}
}

func TestApplySchema(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	if err := ApplySchema(context.Background(), mock); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	verify(t, mock)
}
