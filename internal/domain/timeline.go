package domain

import (
	"fmt"
	"time"
)

// Типы событий заказа в timeline и outbox.
const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// AggregateOrder — тип агрегата для outbox-сообщений по заказам.
const AggregateOrder = "order"

// TimelineEvent описывает событие в жизненном цикле заказа.
// Status — статус заказа сразу после события.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Status   OrderStatus
	Reason   string
	Occurred time.Time
}

// Validate проверяет, что событие привязано к заказу и несёт известный статус.
func (e TimelineEvent) Validate() error {
	if e.OrderID == "" {
		return fmt.Errorf("%w: timeline event without order id", ErrInvalidArgument)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("timeline event %s: %w", e.Type, ErrInvalidStatus)
	}
	return nil
}
