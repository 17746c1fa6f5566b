package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LowStockThreshold — остаток, ниже которого товар считается заканчивающимся.
const LowStockThreshold int64 = 10

// Product — позиция каталога.
type Product struct {
	ID          int64
	Name        string
	Description string
	// Цена за единицу, два знака после запятой.
	Price     decimal.Decimal
	Stock     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CatalogStats — агрегированные показатели каталога.
type CatalogStats struct {
	TotalProducts int64
	TotalStock    int64
	LowStockItems int64
}

// Normalize приводит поля товара к каноничному виду.
func (p *Product) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Price = p.Price.Round(2)
}

// Validate проверяет инварианты товара.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrProductNameRequired
	}
	if p.Price.IsNegative() {
		return ErrPriceNegative
	}
	if p.Stock < 0 {
		return ErrStockNegative
	}
	return nil
}
