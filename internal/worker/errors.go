package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownStage — для этапа нет конфигурации.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrPublishExhausted — все попытки публикации в следующую очередь исчерпаны.
	ErrPublishExhausted = errors.New("publish attempts exhausted")

	// ErrOrderMissing — сообщение ссылается на заказ, которого нет в БД.
	ErrOrderMissing = errors.New("order referenced by message does not exist")
)
