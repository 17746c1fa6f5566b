package domain

import "time"

// OrderPlacedLine описывает позицию в событии OrderPlaced.
type OrderPlacedLine struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       string `json:"price"`
	Quantity    int64  `json:"quantity"`
}

// OrderPlacedEvent — полезная нагрузка outbox-сообщения OrderPlaced.
type OrderPlacedEvent struct {
	OrderID     string            `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserID      int64             `json:"user_id"`
	Total       string            `json:"total"`
	Lines       []OrderPlacedLine `json:"lines"`
	PlacedAt    time.Time         `json:"placed_at"`
}

// NewOrderPlacedEvent собирает событие по оформленному заказу. Суммы передаются строками с двумя знаками.
func NewOrderPlacedEvent(order Order) OrderPlacedEvent {
	lines := make([]OrderPlacedLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderPlacedLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Price:       line.Price.StringFixed(2),
			Quantity:    line.Quantity,
		})
	}
	return OrderPlacedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total.StringFixed(2),
		Lines:       lines,
		PlacedAt:    order.CreatedAt,
	}
}

// OrderStatusChangedEvent — полезная нагрузка outbox-сообщения OrderStatusChanged.
type OrderStatusChangedEvent struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	From        OrderStatus `json:"from"`
	To          OrderStatus `json:"to"`
	Restocked   bool        `json:"restocked"`
	ChangedAt   time.Time   `json:"changed_at"`
}
