package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/cart"
)

// Деньги отдаются строкой с двумя знаками, чтобы не терять точность на клиенте.

type registerRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

// productRequest принимает цену и числом, и строкой.
type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock"`
}

func (r productRequest) toDomain(id int64) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
	}
}

type productResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Stock       int64     `json:"stock"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type statsResponse struct {
	TotalProducts int64 `json:"totalProducts"`
	TotalStock    int64 `json:"totalStock"`
	LowStockItems int64 `json:"lowStockItems"`
}

type addCartItemRequest struct {
	UserID    int64 `json:"userId"`
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

type updateCartItemRequest struct {
	UserID   int64 `json:"userId"`
	Quantity int64 `json:"quantity"`
}

type cartItemResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Price       string `json:"price"`
	Stock       int64  `json:"stock"`
	Quantity    int64  `json:"quantity"`
	LineTotal   string `json:"lineTotal"`
}

func toCartItemResponse(item domain.CartItem) cartItemResponse {
	return cartItemResponse{
		ID:          item.ID,
		ProductID:   item.ProductID,
		ProductName: item.Product.Name,
		Price:       item.Product.Price.StringFixed(2),
		Stock:       item.Product.Stock,
		Quantity:    item.Quantity,
		LineTotal:   item.LineTotal().StringFixed(2),
	}
}

type cartResponse struct {
	UserID   int64              `json:"userId"`
	Items    []cartItemResponse `json:"items"`
	Subtotal string             `json:"subtotal"`
}

func toCartResponse(c cart.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, toCartItemResponse(item))
	}
	return cartResponse{UserID: c.UserID, Items: items, Subtotal: c.Subtotal.StringFixed(2)}
}

type checkoutRequest struct {
	UserID        int64  `json:"userId"`
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderLineResponse struct {
	ID          string `json:"id"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Price       string `json:"price"`
	Quantity    int64  `json:"quantity"`
	LineTotal   string `json:"lineTotal"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	OrderNumber   string              `json:"orderNumber"`
	UserID        int64               `json:"userId"`
	CustomerName  string              `json:"customerName"`
	CustomerEmail string              `json:"customerEmail"`
	Total         string              `json:"total"`
	Status        string              `json:"status"`
	Lines         []orderLineResponse `json:"lines"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func toOrderResponse(o domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, orderLineResponse{
			ID:          line.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Price:       line.Price.StringFixed(2),
			Quantity:    line.Quantity,
			LineTotal:   line.Total().StringFixed(2),
		})
	}
	return orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Total:         o.Total.StringFixed(2),
		Status:        string(o.Status),
		Lines:         lines,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
