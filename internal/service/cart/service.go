package cart

import (
	"context"
	"math"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Cart — содержимое корзины с промежуточной суммой по текущим ценам.
type Cart struct {
	UserID   int64
	Items    []domain.CartItem
	Subtotal decimal.Decimal
}

// Service управляет корзинами пользователей.
//
// Изменяющие операции выполняются в транзакции, но читают товар без блокировки строки:
// оформление заказа блокирует сначала корзину, затем товары, и обратный порядок привёл бы к взаимоблокировке.
// Остаток окончательно проверяется при оформлении.
type Service struct {
	store  domain.Store
	logger *log.Entry
}

// NewService создаёт сервис корзины.
func NewService(store domain.Store, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	return &Service{store: store, logger: logger}
}

// AddItem добавляет товар в корзину. Количество <= 0 считается равным 1.
// Повторное добавление того же товара увеличивает количество в существующей строке.
func (s *Service) AddItem(ctx context.Context, userID, productID, qty int64) (domain.CartItem, error) {
	if userID <= 0 {
		return domain.CartItem{}, domain.ErrUserIDRequired
	}
	if qty <= 0 {
		qty = 1
	}

	var item domain.CartItem
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		product, err := tx.Products().Get(ctx, productID)
		if err != nil {
			return err
		}

		existing, found, err := tx.Carts().FindLine(ctx, userID, productID)
		if err != nil {
			return err
		}

		if qty > product.Stock {
			return domain.NewInsufficientStock(product, qty)
		}
		total := qty
		if found {
			// Сравнение через разность: сумма может переполнить int64.
			if existing.Quantity > product.Stock-qty {
				return domain.NewInsufficientStock(product, requestedTotal(existing.Quantity, qty))
			}
			total += existing.Quantity
		}

		var line domain.CartLine
		if found {
			line, err = tx.Carts().UpdateQuantity(ctx, existing.ID, total)
		} else {
			line, err = tx.Carts().Insert(ctx, domain.CartLine{UserID: userID, ProductID: productID, Quantity: qty})
		}
		if err != nil {
			return err
		}

		item = domain.CartItem{CartLine: line, Product: product}
		return nil
	})
	if err != nil {
		return domain.CartItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"user_id":    userID,
		"product_id": productID,
		"quantity":   item.Quantity,
	}).Debug("cart item added")
	return item, nil
}

// GetCart возвращает корзину с актуальными данными товаров. Остатки не проверяются.
func (s *Service) GetCart(ctx context.Context, userID int64) (Cart, error) {
	if userID <= 0 {
		return Cart{}, domain.ErrUserIDRequired
	}
	items, err := s.store.Carts().ListItems(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	return Cart{
		UserID:   userID,
		Items:    items,
		Subtotal: domain.CartSubtotal(items),
	}, nil
}

// UpdateQuantity задаёт новое количество в строке корзины пользователя.
func (s *Service) UpdateQuantity(ctx context.Context, userID, lineID, qty int64) (domain.CartItem, error) {
	if userID <= 0 {
		return domain.CartItem{}, domain.ErrUserIDRequired
	}
	if qty < 1 {
		return domain.CartItem{}, domain.ErrInvalidQuantity
	}

	var item domain.CartItem
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		line, err := tx.Carts().GetLine(ctx, userID, lineID)
		if err != nil {
			return err
		}
		product, err := tx.Products().Get(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if product.Stock < qty {
			return domain.NewInsufficientStock(product, qty)
		}

		updated, err := tx.Carts().UpdateQuantity(ctx, line.ID, qty)
		if err != nil {
			return err
		}
		item = domain.CartItem{CartLine: updated, Product: product}
		return nil
	})
	if err != nil {
		return domain.CartItem{}, err
	}
	return item, nil
}

// RemoveItem удаляет строку корзины пользователя.
func (s *Service) RemoveItem(ctx context.Context, userID, lineID int64) error {
	if userID <= 0 {
		return domain.ErrUserIDRequired
	}
	return s.store.Carts().Delete(ctx, userID, lineID)
}

// ClearCart очищает корзину. Очистка пустой корзины не ошибка.
func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return domain.ErrUserIDRequired
	}
	removed, err := s.store.Carts().Clear(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{
		"user_id": userID,
		"removed": removed,
	}).Debug("cart cleared")
	return nil
}

// requestedTotal складывает количества с насыщением на math.MaxInt64.
func requestedTotal(existing, added int64) int64 {
	if existing > math.MaxInt64-added {
		return math.MaxInt64
	}
	return existing + added
}
