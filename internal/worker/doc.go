// Package worker реализует идемпотентные обработчики этапов заказа.
//
// # Обзор
//
// Каждый этап (payment, inventory, email) — отдельный процесс, который
// читает свою очередь и передаёт то же сообщение следующему этапу:
//
//	order-placed-queue → payment → inventory-queue → inventory → email-queue → email
//
// # Протокол обработки сообщения
//
//  1. Разбор OrderPlacedMessage; битое сообщение отклоняется без requeue
//  2. Проверка журнала processed_messages; повтор подтверждается сразу
//  3. Статус этапа InProgress; несуществующий заказ отклоняется без requeue
//  4. Работа этапа (Work)
//  5. CompleteStage: статус этапа, статус заказа, история и запись
//     в журнал одной транзакцией
//  6. Публикация в следующую очередь после коммита, только при успехе
//  7. Ack
//
// Сбой на шагах 2–6 возвращает сообщение в очередь. Гонку двух
// экземпляров на шаге 5 разрешает уникальный индекс журнала:
// проигравший подтверждает сообщение как уже обработанное.
//
// Отказ в оплате — бизнес-исход: заказ переходит в Failed, сообщение
// подтверждается и дальше не передаётся.
//
// # Ключевые компоненты
//
//   - Processor — протокол выше, метрики и счётчики здоровья
//   - Work — работа этапа; PaymentWork, InventoryWork, EmailWork
//   - Worker — жизненный цикл: consumer и публикатор здоровья
//
// Публикация в следующую очередь повторяется в процессе (3 попытки
// с экспоненциальной задержкой), затем сообщение возвращается в очередь.
package worker
