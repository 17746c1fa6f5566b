package domain

import (
	"errors"
	"fmt"
)

var (
	// Общая ошибка валидации входных данных.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidQuantity возвращается, если количество в корзине меньше единицы.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be at least 1", ErrInvalidArgument)
	// Ошибка отсутствующего названия товара.
	ErrProductNameRequired = fmt.Errorf("%w: product name is required", ErrInvalidArgument)
	// Ошибка отрицательной цены товара.
	ErrPriceNegative = fmt.Errorf("%w: price must be non-negative", ErrInvalidArgument)
	// Ошибка отрицательного остатка товара.
	ErrStockNegative = fmt.Errorf("%w: stock must be non-negative", ErrInvalidArgument)
	// ErrCustomerRequired — при оформлении не указаны имя или email покупателя.
	ErrCustomerRequired = fmt.Errorf("%w: customer name and email are required", ErrInvalidArgument)
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserIDRequired = fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	// ErrInvalidStatus возвращается для неизвестного статуса заказа.
	ErrInvalidStatus = fmt.Errorf("%w: unknown order status", ErrInvalidArgument)

	// ErrNotFound — общая ошибка отсутствующей сущности.
	ErrNotFound = errors.New("not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrCartItemNotFound — позиция корзины не найдена или принадлежит другому пользователю.
	ErrCartItemNotFound = fmt.Errorf("cart item %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// Ошибка оформления заказа по пустой корзине.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientStock — базовая ошибка нехватки остатка, см. InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConflict — общая ошибка конфликта состояния.
	ErrConflict = errors.New("conflict")
	// ErrOrderNumberConflict — номер заказа уже занят; транзакцию оформления можно повторить.
	ErrOrderNumberConflict = fmt.Errorf("%w: order number already taken", ErrConflict)
	// ErrInvalidStatusTransition сигнализирует о недопустимом переходе статуса заказа.
	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid order status transition", ErrConflict)
	// ErrProductInUse — товар нельзя удалить, пока на него ссылаются заказы.
	ErrProductInUse = fmt.Errorf("%w: product is referenced by orders", ErrConflict)
	// Ошибка повторной регистрации email.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", ErrConflict)
	// ErrTxAborted — транзакция прервана из-за взаимной блокировки; запрос можно повторить.
	ErrTxAborted = fmt.Errorf("%w: transaction aborted by concurrent update", ErrConflict)

	// Ошибка входа с неверным email или паролем.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибка пустого ключа идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Ошибка пустого хэша запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound возвращается, если ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists сигнализирует, что запрос с этим ключом уже принят.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyInProgress возвращается, пока запрос с этим ключом выполняется.
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is still processing")
)

// InsufficientStockError описывает нехватку остатка по конкретному товару.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int64
	Requested   int64
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("#%d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", name, e.Available, e.Requested)
}

// Is позволяет сравнивать через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// NewInsufficientStock собирает ошибку нехватки остатка.
func NewInsufficientStock(p Product, requested int64) error {
	return &InsufficientStockError{
		ProductID:   p.ID,
		ProductName: p.Name,
		Available:   p.Stock,
		Requested:   requested,
	}
}

// IsNotFound проверяет, что ошибка означает отсутствие сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict проверяет, что ошибка — конфликт состояния.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже использован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) ||
		errors.Is(err, ErrIdempotencyHashMismatch) ||
		errors.Is(err, ErrIdempotencyInProgress)
}
