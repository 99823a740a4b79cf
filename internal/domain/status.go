package domain

import "fmt"

// OrderStatus — статус заказа.
//
// Жизненный цикл:
//
//	Pending → PaymentCompleted → InventoryUpdated → Completed
//	        ↘ Failed (отказ в оплате)
//
// Processing и EmailSent зарезервированы: пайплайн их не выставляет,
// но они допустимы в хранилище и участвуют в сравнении по рангу.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, ожидает оплаты.
	OrderStatusPending OrderStatus = "Pending"

	// OrderStatusProcessing — заказ в обработке.
	OrderStatusProcessing OrderStatus = "Processing"

	// OrderStatusPaymentCompleted — оплата прошла.
	OrderStatusPaymentCompleted OrderStatus = "PaymentCompleted"

	// OrderStatusInventoryUpdated — товар зарезервирован на складе.
	OrderStatusInventoryUpdated OrderStatus = "InventoryUpdated"

	// OrderStatusEmailSent — подтверждение отправлено.
	OrderStatusEmailSent OrderStatus = "EmailSent"

	// OrderStatusCompleted — заказ полностью обработан.
	OrderStatusCompleted OrderStatus = "Completed"

	// OrderStatusFailed — заказ завершился неудачей.
	OrderStatusFailed OrderStatus = "Failed"
)

// orderStatusRank задаёт порядок продвижения заказа по пайплайну.
// Failed ранжируется выше всех: из него нет выхода.
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:          0,
	OrderStatusProcessing:       1,
	OrderStatusPaymentCompleted: 2,
	OrderStatusInventoryUpdated: 3,
	OrderStatusEmailSent:        4,
	OrderStatusCompleted:        5,
	OrderStatusFailed:           6,
}

// IsTerminal возвращает true, если статус финальный.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// IsValid проверяет, что статус известен.
func (s OrderStatus) IsValid() bool {
	_, ok := orderStatusRank[s]
	return ok
}

func (s OrderStatus) rank() int {
	if r, ok := orderStatusRank[s]; ok {
		return r
	}
	return -1
}

// ParseOrderStatus разбирает строковое значение статуса заказа.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

// ProcessingStatus — статус отдельного этапа (оплата, склад, email).
//
// Жизненный цикл:
//
//	Pending → InProgress → Completed
//	                     ↘ Failed
type ProcessingStatus string

const (
	// ProcessingStatusPending — этап ещё не начинался.
	ProcessingStatusPending ProcessingStatus = "Pending"

	// ProcessingStatusInProgress — этап выполняется воркером.
	ProcessingStatusInProgress ProcessingStatus = "InProgress"

	// ProcessingStatusCompleted — этап успешно завершён.
	ProcessingStatusCompleted ProcessingStatus = "Completed"

	// ProcessingStatusFailed — этап завершился отказом.
	ProcessingStatusFailed ProcessingStatus = "Failed"
)

// IsTerminal возвращает true, если статус этапа финальный.
func (s ProcessingStatus) IsTerminal() bool {
	return s == ProcessingStatusCompleted || s == ProcessingStatusFailed
}

// CanTransitionTo проверяет, можно ли перевести этап в статус next.
// Финальные статусы не меняются; повторный InProgress допустим (retry).
func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case ProcessingStatusInProgress, ProcessingStatusCompleted, ProcessingStatusFailed:
		return true
	default:
		return false
	}
}

// ParseProcessingStatus разбирает строковое значение статуса этапа.
func ParseProcessingStatus(s string) (ProcessingStatus, error) {
	switch ProcessingStatus(s) {
	case ProcessingStatusPending, ProcessingStatusInProgress, ProcessingStatusCompleted, ProcessingStatusFailed:
		return ProcessingStatus(s), nil
	default:
		return "", fmt.Errorf("unknown processing status %q", s)
	}
}

// Stage — этап пайплайна обработки заказа.
type Stage string

const (
	StagePayment   Stage = "payment"
	StageInventory Stage = "inventory"
	StageEmail     Stage = "email"
)

// Stages — все этапы в порядке выполнения.
var Stages = []Stage{StagePayment, StageInventory, StageEmail}

// WorkerType — тег воркера в журнале обработанных сообщений.
type WorkerType string

const (
	WorkerTypePayment   WorkerType = "PaymentWorker"
	WorkerTypeInventory WorkerType = "InventoryWorker"
	WorkerTypeEmail     WorkerType = "EmailWorker"
)

// WorkerType возвращает тег воркера, владеющего этапом.
func (s Stage) WorkerType() WorkerType {
	switch s {
	case StagePayment:
		return WorkerTypePayment
	case StageInventory:
		return WorkerTypeInventory
	case StageEmail:
		return WorkerTypeEmail
	default:
		return ""
	}
}

// IsValid проверяет, что этап известен.
func (s Stage) IsValid() bool {
	return s.WorkerType() != ""
}

// ParseStage разбирает имя этапа.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if !stage.IsValid() {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return stage, nil
}
