package domain

import (
	"errors"
	"fmt"
)

// OrderCreatedMessage — сообщение первой записи истории.
const OrderCreatedMessage = "Order created"

// ErrNoTransition — для пары (этап, исход) нет правила перехода.
var ErrNoTransition = errors.New("no status transition for stage outcome")

// Transition — решение автомата статусов.
//
// Changed=false означает no-op: статус заказа не меняется,
// запись в историю не добавляется.
type Transition struct {
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
	Message string      `json:"message"`
	Changed bool        `json:"changed"`
}

type transitionKey struct {
	stage   Stage
	outcome ProcessingStatus
}

type transitionRule struct {
	status  OrderStatus
	message string
}

// transitions — таблица переходов (этап, исход этапа) → (статус заказа, сообщение).
var transitions = map[transitionKey]transitionRule{
	{StagePayment, ProcessingStatusCompleted}:   {OrderStatusPaymentCompleted, "Payment processed successfully"},
	{StagePayment, ProcessingStatusFailed}:      {OrderStatusFailed, "Payment processing failed"},
	{StageInventory, ProcessingStatusCompleted}: {OrderStatusInventoryUpdated, "Inventory updated successfully"},
	{StageEmail, ProcessingStatusCompleted}:     {OrderStatusCompleted, "Order completed - Email sent successfully"},
}

// Decide вычисляет новый статус заказа по исходу этапа.
//
// Автомат никогда не откатывает заказ назад: если текущий статус финальный
// или целевой статус не стоит строго дальше текущего, возвращается no-op.
func Decide(current OrderStatus, stage Stage, outcome ProcessingStatus) (Transition, error) {
	rule, ok := transitions[transitionKey{stage, outcome}]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s/%s", ErrNoTransition, stage, outcome)
	}

	t := Transition{
		From:    current,
		To:      current,
		Message: rule.message,
	}

	if current.IsTerminal() || rule.status.rank() <= current.rank() {
		return t, nil
	}

	t.To = rule.status
	t.Changed = true
	return t, nil
}
