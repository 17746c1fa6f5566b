package domain

import "time"

// IdempotencyStatus описывает жизненный цикл ключа оформления заказа.
type IdempotencyStatus string

const (
	// Оформление по ключу ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// Заказ создан, ответ сохранён вместе с ID заказа.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// Оформление завершилось ошибкой; повтор вернёт ту же ошибку.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyClaim захватывает ключ под конкретный запрос оформления.
type IdempotencyClaim struct {
	Key         string
	RequestHash string
	// UserID покупателя из тела запроса; 0, если тело не разобрано.
	UserID int64
	TTLAt  time.Time
}

// CheckoutOutcome — итог оформления, который сохраняется под ключом.
type CheckoutOutcome struct {
	OrderID    string
	HTTPStatus int
	Body       []byte
}

// Status возвращает done только для созданного заказа.
func (o CheckoutOutcome) Status() IdempotencyStatus {
	if o.OrderID != "" && o.HTTPStatus >= 200 && o.HTTPStatus < 300 {
		return IdempotencyStatusDone
	}
	return IdempotencyStatusFailed
}

// IdempotencyRecord — состояние ключа оформления заказа.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	UserID       int64
	OrderID      string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Finished сообщает, что ответ сохранён и его можно повторить клиенту.
func (r IdempotencyRecord) Finished() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// IdempotencyPurge считает удалённые просроченные ключи по статусам.
// Processing > 0 значит, что оформление по ключу так и не завершилось.
type IdempotencyPurge struct {
	Done       int
	Failed     int
	Processing int
}

// Total — общее число удалённых ключей.
func (p IdempotencyPurge) Total() int {
	return p.Done + p.Failed + p.Processing
}

// Count учитывает удалённый ключ с данным статусом.
func (p *IdempotencyPurge) Count(status IdempotencyStatus) {
	switch status {
	case IdempotencyStatusDone:
		p.Done++
	case IdempotencyStatusFailed:
		p.Failed++
	default:
		p.Processing++
	}
}

// Add суммирует итоги нескольких порций удаления.
func (p *IdempotencyPurge) Add(other IdempotencyPurge) {
	p.Done += other.Done
	p.Failed += other.Failed
	p.Processing += other.Processing
}
