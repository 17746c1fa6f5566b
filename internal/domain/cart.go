package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine — строка корзины пользователя, уникальна по паре (UserID, ProductID).
type CartLine struct {
	ID        int64
	UserID    int64
	ProductID int64
	Quantity  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem — строка корзины вместе с актуальными данными товара.
type CartItem struct {
	CartLine
	Product Product
}

// LineTotal считает стоимость строки по текущей цене товара.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// CartSubtotal считает сумму корзины по текущим ценам (только для отображения).
func CartSubtotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
