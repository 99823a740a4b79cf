// Package cli реализует инструмент командной строки Orderflow.
//
// # Обзор
//
// CLI — клиентская утилита для работы с Orderflow API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Orderflow API. Инкапсулирует запросы, разбор
// конвертов (data, data+total, error) и ошибок. Отчёты /health
// приходят без конверта, ответ 503 для них не ошибка.
//
//	client := cli.NewClient("http://localhost:8080")
//	order, err := client.GetOrder(ctx, id)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: orderflow order list --email a@b.io --json | jq .
//
// ## Commands
//
//   - order: place, show, history, list
//   - health [--ready|--live] [--worker NAME], health workers
//
// Каждая группа создаётся через фабричную функцию (NewOrderCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
