package httpapi

import (
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Виды ошибок в теле ответа.
const (
	KindNotFound          = "not_found"
	KindInsufficientStock = "insufficient_stock"
	KindEmptyCart         = "empty_cart"
	KindInvalidArgument   = "invalid_argument"
	KindConflict          = "conflict"
	KindUnauthorized      = "unauthorized"
	KindInternal          = "internal"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// errorFromDomain сопоставляет доменную ошибку HTTP-статусу и телу ответа.
// Текст внутренних ошибок наружу не попадает.
func errorFromDomain(err error) (int, ErrorResponse) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return http.StatusConflict, ErrorResponse{
			Kind:    KindInsufficientStock,
			Message: stockErr.Error(),
			Details: map[string]any{
				"productId": stockErr.ProductID,
				"available": stockErr.Available,
				"requested": stockErr.Requested,
			},
		}
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, ErrorResponse{Kind: KindInsufficientStock, Message: err.Error()}
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusUnprocessableEntity, ErrorResponse{Kind: KindEmptyCart, Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Kind: KindNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, ErrorResponse{Kind: KindInvalidArgument, Message: err.Error()}
	case errors.Is(err, domain.ErrTxAborted):
		// Текст ошибки драйвера наружу не отдаём.
		return http.StatusConflict, ErrorResponse{Kind: KindConflict, Message: domain.ErrTxAborted.Error()}
	case errors.Is(err, domain.ErrConflict), domain.IsIdempotencyConflict(err):
		return http.StatusConflict, ErrorResponse{Kind: KindConflict, Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Kind: KindUnauthorized, Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Kind: KindInternal, Message: "internal server error"}
	}
}

func badRequest(message string) ErrorResponse {
	return ErrorResponse{Kind: KindInvalidArgument, Message: message}
}
