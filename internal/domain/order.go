package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// Заказ создан и ждёт обработки.
	OrderStatusPending OrderStatus = "pending"
	// Заказ собирается.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted — заказ оформлен и оплачен. Оформление корзины создаёт заказ сразу в этом статусе.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён, остатки возвращены на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions — допустимые переходы статусов.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {OrderStatusCancelled},
}

// ParseOrderStatus разбирает строку статуса.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition сообщает, разрешён ли переход from -> to.
// Переход в тот же статус не считается переходом и обрабатывается вызывающим кодом.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderLine — неизменяемый снимок товара на момент оформления.
type OrderLine struct {
	ID          string
	OrderID     string
	ProductID   int64
	ProductName string
	Price       decimal.Decimal
	Quantity    int64
}

// Total возвращает стоимость позиции.
func (l OrderLine) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(l.Quantity))
}

// Order — оформленный заказ.
type Order struct {
	ID            string
	OrderNumber   string
	UserID        int64
	CustomerName  string
	CustomerEmail string
	Total         decimal.Decimal
	Status        OrderStatus
	Lines         []OrderLine
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LinesTotal считает сумму позиций заказа.
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Total())
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID <= 0 {
		errs = append(errs, ErrUserIDRequired)
	}
	if strings.TrimSpace(o.CustomerName) == "" || strings.TrimSpace(o.CustomerEmail) == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrEmptyCart)
	}
	for _, line := range o.Lines {
		if line.Quantity < 1 {
			errs = append(errs, ErrInvalidQuantity)
		}
		if line.Price.IsNegative() {
			errs = append(errs, ErrPriceNegative)
		}
	}
	if !o.LinesTotal().Equal(o.Total) {
		errs = append(errs, fmt.Errorf("%w: order total %s does not match lines sum %s",
			ErrInvalidArgument, o.Total.StringFixed(2), o.LinesTotal().StringFixed(2)))
	}

	return errs
}

// FormatOrderNumber собирает номер заказа вида ORD-YYYYMMDD-NNN по дате (UTC) и порядковому номеру за день.
func FormatOrderNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%03d", day.UTC().Format("20060102"), seq)
}

// OrderDay обрезает момент времени до начала суток в UTC.
func OrderDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
