// Package api содержит HTTP шлюз приёма заказов на gin.
//
// Структура:
//   - handler.go        — Handler с DI (хранилище заказов, publisher, health)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (recovery, tracing, metrics, logging)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - validation.go     — валидация запросов (validator/v10)
//   - dto.go            — Data Transfer Objects (request/response)
//   - order_handler.go  — обработчики для /api/v1/orders и /customers
//   - health_handler.go — обработчики для /health и /api/v1/workers
//
// POST /api/v1/orders идемпотентен по ключу из заголовка Idempotency-Key
// (или поля idempotency_key): повтор возвращает уже созданный заказ.
// Новый заказ сохраняется и публикуется в очередь оплаты.
package api
