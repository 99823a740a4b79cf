// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — одна пара соединение/канал на процесс (reconnect, Close)
//   - topology.go   — объявление очередей этапов и dead-letter очереди
//   - publisher.go  — публикация persistent JSON сообщений
//   - consumer.go   — потребление с ручным ack и prefetch
//
// Очереди (имена настраиваются):
//   - order-placed-queue — новые заказы, потребитель PaymentWorker
//   - inventory-queue    — оплаченные заказы, потребитель InventoryWorker
//   - email-queue        — зарезервированные заказы, потребитель EmailWorker
//
// Все сообщения идут через default exchange, routing key = имя очереди.
// Отклонённые без requeue сообщения попадают в orderflow-dead-letter-queue
// через обменник orderflow.dlx.
package mq
