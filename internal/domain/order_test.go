package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		OrderNumber:   "ORD-20250101-001",
		UserID:        1,
		CustomerName:  "Ann",
		CustomerEmail: "ann@example.com",
		Total:         decimal.RequireFromString("20.00"),
		Status:        domain.OrderStatusCompleted,
		Lines: []domain.OrderLine{
			{
				ID:          "line-1",
				OrderID:     "order-1",
				ProductID:   1,
				ProductName: "Widget",
				Price:       decimal.RequireFromString("10.00"),
				Quantity:    2,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no user",
			mut: func(o *domain.Order) {
				o.UserID = 0
			},
		},
		{
			name: "no customer email",
			mut: func(o *domain.Order) {
				o.CustomerEmail = "  "
			},
		},
		{
			name: "no lines",
			mut: func(o *domain.Order) {
				o.Lines = nil
				o.Total = decimal.Zero
			},
		},
		{
			name: "zero qty",
			mut: func(o *domain.Order) {
				o.Lines[0].Quantity = 0
			},
		},
		{
			name: "total mismatch",
			mut: func(o *domain.Order) {
				o.Total = decimal.RequireFromString("19.99")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			if errs := order.ValidateInvariants(); len(errs) == 0 {
				t.Fatalf("expected validation errors")
			}
		})
	}
}

func TestOrderLinesTotalIsExact(t *testing.T) {
	order := makeOrder()
	order.Lines = []domain.OrderLine{
		{Price: decimal.RequireFromString("0.10"), Quantity: 3},
		{Price: decimal.RequireFromString("0.20"), Quantity: 1},
	}
	if got := order.LinesTotal().StringFixed(2); got != "0.50" {
		t.Fatalf("expected 0.50, got %s", got)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusProcessing, true},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusProcessing, domain.OrderStatusCompleted, true},
		{domain.OrderStatusCompleted, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPending, domain.OrderStatusCompleted, false},
		{domain.OrderStatusCompleted, domain.OrderStatusPending, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPending, false},
		{domain.OrderStatusCancelled, domain.OrderStatusCompleted, false},
	}

	for _, tc := range cases {
		if got := domain.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := domain.ParseOrderStatus(" Processing ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", status)
	}

	if _, err := domain.ParseOrderStatus("shipped"); err != domain.ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestFormatOrderNumber(t *testing.T) {
	day := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)

	if got := domain.FormatOrderNumber(day, 7); got != "ORD-20250309-007" {
		t.Fatalf("unexpected number %q", got)
	}
	if got := domain.FormatOrderNumber(day, 1234); got != "ORD-20250309-1234" {
		t.Fatalf("unexpected wide number %q", got)
	}

	local := time.Date(2025, 3, 10, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	if got := domain.OrderDay(local); !got.Equal(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected UTC day 2025-03-09, got %s", got)
	}
}

func TestProductValidate(t *testing.T) {
	p := domain.Product{Name: " Widget ", Price: decimal.RequireFromString("10.005"), Stock: 5}
	p.Normalize()
	if p.Name != "Widget" {
		t.Fatalf("expected trimmed name, got %q", p.Name)
	}
	if p.Price.StringFixed(2) != "10.01" {
		t.Fatalf("expected rounded price, got %s", p.Price)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p.Stock = -1
	if err := p.Validate(); err != domain.ErrStockNegative {
		t.Fatalf("expected ErrStockNegative, got %v", err)
	}
}
