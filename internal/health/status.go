package health

// Status — итоговое состояние проверки.
type Status string

const (
	StatusHealthy   Status = "Healthy"
	StatusDegraded  Status = "Degraded"
	StatusUnhealthy Status = "Unhealthy"
)

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Worst возвращает более тяжёлый из двух статусов.
func Worst(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// ParseStatus разбирает сохранённый статус.
// Неизвестное значение трактуется как Unhealthy.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusHealthy, StatusDegraded:
		return Status(s)
	default:
		return StatusUnhealthy
	}
}
