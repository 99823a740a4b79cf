package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrDuplicateMessage — сообщение уже обработано этим этапом
	// (конфликт уникальности в processed_messages).
	ErrDuplicateMessage = errors.New("message already processed")

	// ErrStageFinished — этап или весь заказ уже в финальном статусе,
	// повторно этап не выполняется.
	ErrStageFinished = errors.New("stage already finished")

	// ErrConflict — статус заказа изменился между чтением и записью.
	ErrConflict = errors.New("concurrent status change")
)
