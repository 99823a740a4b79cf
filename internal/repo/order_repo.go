package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shaiso/orderflow/internal/domain"
)

// StageResult — исход этапа для фиксации в CompleteStage.
type StageResult struct {
	OrderID   uuid.UUID
	MessageID string
	Stage     domain.Stage
	Outcome   domain.ProcessingStatus // Completed или Failed
}

// OrderRepo — репозиторий заказов, истории статусов и журнала дедупликации.
type OrderRepo struct {
	db  DB
	now func() time.Time
}

// NewOrderRepo создаёт новый OrderRepo.
func NewOrderRepo(db DB) *OrderRepo {
	return &OrderRepo{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// stageColumns — колонка статуса для каждого этапа.
// Имена колонок подставляются в SQL только из этой таблицы.
var stageColumns = map[domain.Stage]string{
	domain.StagePayment:   "payment_status",
	domain.StageInventory: "inventory_status",
	domain.StageEmail:     "email_status",
}

func stageColumn(stage domain.Stage) (string, error) {
	col, ok := stageColumns[stage]
	if !ok {
		return "", fmt.Errorf("unknown stage %q", stage)
	}
	return col, nil
}

const orderColumns = `order_id, idempotency_key, customer_email, total_amount::text, order_date,
		       status, payment_status, inventory_status, email_status, created_at, updated_at`

// Create сохраняет заказ, его позиции и запись истории "Order created"
// в одной транзакции.
//
// Если заказ с таким же ключом идемпотентности уже есть, возвращает
// ErrAlreadyExists: конфликт ловит уникальный индекс, а не код приложения.
func (r *OrderRepo) Create(ctx context.Context, order *domain.Order) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (order_id, idempotency_key, customer_email, total_amount, order_date,
			                    status, payment_status, inventory_status, email_status, created_at, updated_at)
			VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11)
		`,
			order.ID,
			order.IdempotencyKey,
			order.CustomerEmail,
			order.TotalAmount.StringFixed(2),
			order.OrderDate,
			string(order.Status),
			string(order.PaymentStatus),
			string(order.InventoryStatus),
			string(order.EmailStatus),
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range order.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO order_items (order_item_id, order_id, position, product_id, product_name, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)
			`, item.ID, order.ID, i, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice.StringFixed(2))
			if err != nil {
				return fmt.Errorf("insert order item %d: %w", i, err)
			}
		}

		return appendHistory(ctx, tx, order.ID, order.Status, domain.OrderCreatedMessage, order.CreatedAt)
	})
}

// GetByID возвращает заказ с позициями.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// GetByIdempotencyKey возвращает заказ по ключу идемпотентности.
func (r *OrderRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// ListByCustomerEmail возвращает заказы покупателя в порядке создания.
func (r *OrderRepo) ListByCustomerEmail(ctx context.Context, email string) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_email = $1
		ORDER BY created_at, order_id
	`, email)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}

	result := make([]domain.Order, len(orders))
	for i, o := range orders {
		result[i] = *o
	}
	return result, nil
}

// History возвращает историю статусов заказа в хронологическом порядке.
func (r *OrderRepo) History(ctx context.Context, orderID uuid.UUID) ([]domain.StatusHistory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT history_id, order_id, status, message, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at, seq
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		var status string
		if err := rows.Scan(&h.ID, &h.OrderID, &status, &h.Message, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Status = domain.OrderStatus(status)
		history = append(history, h)
	}
	return history, rows.Err()
}

// IsMessageProcessed проверяет журнал дедупликации.
func (r *OrderRepo) IsMessageProcessed(ctx context.Context, messageID string, workerType domain.WorkerType) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id = $1 AND worker_type = $2)
	`, messageID, string(workerType)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed message: %w", err)
	}
	return exists, nil
}

// MarkStageInProgress переводит этап в InProgress.
//
// Если этап уже завершён или заказ в финальном статусе, ничего не меняет
// и возвращает ErrStageFinished. Для неизвестного заказа — ErrNotFound.
func (r *OrderRepo) MarkStageInProgress(ctx context.Context, orderID uuid.UUID, stage domain.Stage) error {
	col, err := stageColumn(stage)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET `+col+` = $2, updated_at = $3
		WHERE order_id = $1
		  AND `+col+` NOT IN ('Completed', 'Failed')
		  AND status NOT IN ('Completed', 'Failed')
	`, orderID, string(domain.ProcessingStatusInProgress), r.now())
	if err != nil {
		return fmt.Errorf("mark %s in progress: %w", stage, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Ни одной строки: либо заказа нет, либо этап или заказ уже завершён
	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStageFinished
}

// RecordMessage заносит сообщение в журнал дедупликации без изменения заказа.
// Повторная запись — ErrDuplicateMessage.
func (r *OrderRepo) RecordMessage(ctx context.Context, orderID uuid.UUID, messageID string, stage domain.Stage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO processed_messages (id, message_id, order_id, worker_type, processed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), messageID, orderID, string(stage.WorkerType()), r.now())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("insert processed message: %w", err)
	}
	return nil
}

// CompleteStage атомарно фиксирует исход этапа.
//
// В одной транзакции:
//  1. Запись в processed_messages (дубликат → ErrDuplicateMessage)
//  2. Статус этапа (повторная установка финального статуса — no-op)
//  3. Решение автомата статусов domain.Decide
//  4. Если статус заказа меняется — обновление orders.status
//     с проверкой прежнего значения (ErrConflict) и одна запись в историю
//
// Явных блокировок строк нет: гонки разрешают уникальные индексы.
func (r *OrderRepo) CompleteStage(ctx context.Context, res StageResult) (domain.Transition, error) {
	col, err := stageColumn(res.Stage)
	if err != nil {
		return domain.Transition{}, err
	}

	var tr domain.Transition
	now := r.now()

	err = inTx(ctx, r.db, func(tx pgx.Tx) error {
		// 1. Журнал дедупликации
		_, err := tx.Exec(ctx, `
			INSERT INTO processed_messages (id, message_id, order_id, worker_type, processed_at)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), res.MessageID, res.OrderID, string(res.Stage.WorkerType()), now)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateMessage
			}
			return fmt.Errorf("insert processed message: %w", err)
		}

		// 2. Текущее состояние
		var status, stageStatus string
		err = tx.QueryRow(ctx, `SELECT status, `+col+` FROM orders WHERE order_id = $1`, res.OrderID).
			Scan(&status, &stageStatus)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("read order: %w", err)
		}
		current := domain.OrderStatus(status)

		if domain.ProcessingStatus(stageStatus).CanTransitionTo(res.Outcome) {
			_, err = tx.Exec(ctx, `UPDATE orders SET `+col+` = $2, updated_at = $3 WHERE order_id = $1`,
				res.OrderID, string(res.Outcome), now)
			if err != nil {
				return fmt.Errorf("update %s: %w", col, err)
			}
		}

		// 3. Автомат статусов
		tr, err = domain.Decide(current, res.Stage, res.Outcome)
		if err != nil {
			return err
		}
		if !tr.Changed {
			return nil
		}

		// 4. Статус заказа и история
		tag, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE order_id = $1 AND status = $4`,
			res.OrderID, string(tr.To), now, string(tr.From))
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}

		return appendHistory(ctx, tx, res.OrderID, tr.To, tr.Message, now)
	})
	if err != nil {
		return domain.Transition{}, err
	}
	return tr, nil
}

// appendHistory добавляет запись в журнал статусов.
func appendHistory(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status domain.OrderStatus, message string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (history_id, order_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), orderID, string(status), message, at)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// loadItems подгружает позиции для набора заказов одним запросом.
func (r *OrderRepo) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []domain.OrderItem{}
	}

	rows, err := r.db.Query(ctx, `
		SELECT order_item_id, order_id, product_id, product_name, quantity, unit_price::text
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		var price string
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("parse unit price %q: %w", price, err)
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var total, status, payment, inventory, email string

	err := row.Scan(
		&o.ID,
		&o.IdempotencyKey,
		&o.CustomerEmail,
		&total,
		&o.OrderDate,
		&status,
		&payment,
		&inventory,
		&email,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total amount %q: %w", total, err)
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.ProcessingStatus(payment)
	o.InventoryStatus = domain.ProcessingStatus(inventory)
	o.EmailStatus = domain.ProcessingStatus(email)

	return &o, nil
}
