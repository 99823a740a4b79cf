package worker

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/telemetry"
)

// Work — единица работы этапа.
//
// Возвращает исход этапа: Completed или Failed. Ошибка означает
// инфраструктурный сбой, сообщение вернётся в очередь.
type Work interface {
	Perform(ctx context.Context, msg *domain.OrderPlacedMessage) (domain.ProcessingStatus, error)
}

// PaymentAuthorizer — внешняя авторизация платежа.
// false — отказ (бизнес-исход, не ошибка).
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, msg *domain.OrderPlacedMessage) (bool, error)
}

// InventoryReserver — списание остатков по позициям заказа.
type InventoryReserver interface {
	Reserve(ctx context.Context, msg *domain.OrderPlacedMessage) error
}

// Notifier — отправка подтверждения покупателю.
type Notifier interface {
	SendConfirmation(ctx context.Context, msg *domain.OrderPlacedMessage) error
}

// PaymentWork — этап оплаты.
type PaymentWork struct {
	Authorizer PaymentAuthorizer
}

func (w PaymentWork) Perform(ctx context.Context, msg *domain.OrderPlacedMessage) (domain.ProcessingStatus, error) {
	ok, err := w.Authorizer.Authorize(ctx, msg)
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.ProcessingStatusFailed, nil
	}
	return domain.ProcessingStatusCompleted, nil
}

// InventoryWork — этап склада.
type InventoryWork struct {
	Reserver InventoryReserver
}

func (w InventoryWork) Perform(ctx context.Context, msg *domain.OrderPlacedMessage) (domain.ProcessingStatus, error) {
	if err := w.Reserver.Reserve(ctx, msg); err != nil {
		return "", err
	}
	return domain.ProcessingStatusCompleted, nil
}

// EmailWork — этап уведомления.
type EmailWork struct {
	Notifier Notifier
}

func (w EmailWork) Perform(ctx context.Context, msg *domain.OrderPlacedMessage) (domain.ProcessingStatus, error) {
	if err := w.Notifier.SendConfirmation(ctx, msg); err != nil {
		return "", err
	}
	return domain.ProcessingStatusCompleted, nil
}

// RandomAuthorizer имитирует платёжный шлюз: после Delay одобряет
// платёж с вероятностью SuccessRate.
type RandomAuthorizer struct {
	SuccessRate float64
	Delay       time.Duration

	// Rand — источник случайных чисел в [0, 1). nil — math/rand/v2.
	Rand func() float64
}

func (a RandomAuthorizer) Authorize(ctx context.Context, msg *domain.OrderPlacedMessage) (bool, error) {
	if err := sleep(ctx, a.Delay); err != nil {
		return false, err
	}

	draw := rand.Float64
	if a.Rand != nil {
		draw = a.Rand
	}
	approved := draw() < a.SuccessRate

	telemetry.FromContext(ctx).Info("payment authorization finished",
		"amount", msg.TotalAmount.StringFixed(2),
		"approved", approved,
	)
	return approved, nil
}

// SimulatedInventory логирует списание каждой позиции.
type SimulatedInventory struct {
	Delay time.Duration
}

func (s SimulatedInventory) Reserve(ctx context.Context, msg *domain.OrderPlacedMessage) error {
	if err := sleep(ctx, s.Delay); err != nil {
		return err
	}
	logger := telemetry.FromContext(ctx)
	for _, item := range msg.Items {
		logger.Info("updated inventory",
			"product_id", item.ProductID,
			"quantity", -item.Quantity,
		)
	}
	return nil
}

// SimulatedNotifier логирует письмо-подтверждение.
type SimulatedNotifier struct {
	Delay time.Duration
}

func (n SimulatedNotifier) SendConfirmation(ctx context.Context, msg *domain.OrderPlacedMessage) error {
	if err := sleep(ctx, n.Delay); err != nil {
		return err
	}
	telemetry.FromContext(ctx).Info("email sent",
		"email", msg.CustomerEmail,
		"total_amount", msg.TotalAmount.StringFixed(2),
	)
	return nil
}

// sleep ждёт d с учётом отмены ctx.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
