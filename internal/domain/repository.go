package domain

import (
	"context"
	"time"
)

// ProductRepository описывает требования к хранилищу каталога.
type ProductRepository interface {
	Create(ctx context.Context, product Product) (Product, error)
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id int64) (Product, error)
	// GetForUpdate читает товар с блокировкой строки до конца транзакции.
	GetForUpdate(ctx context.Context, id int64) (Product, error)
	// List возвращает все товары по возрастанию ID.
	List(ctx context.Context) ([]Product, error)
	Update(ctx context.Context, product Product) (Product, error)
	// Delete удаляет товар вместе со строками корзин, ссылающимися на него.
	Delete(ctx context.Context, id int64) error
	// IsReferenced сообщает, есть ли позиции заказов с этим товаром.
	IsReferenced(ctx context.Context, id int64) (bool, error)
	// DecrementStock атомарно уменьшает остаток, только если его хватает.
	DecrementStock(ctx context.Context, id, qty int64) error
	// IncrementStock возвращает остаток на склад.
	IncrementStock(ctx context.Context, id, qty int64) error
	Stats(ctx context.Context, lowStockThreshold int64) (CatalogStats, error)
}

// CartRepository описывает хранилище корзин.
type CartRepository interface {
	// ListItems возвращает строки корзины с данными товаров по возрастанию ID строки.
	ListItems(ctx context.Context, userID int64) ([]CartItem, error)
	// ListItemsForUpdate — то же, что ListItems, но с блокировкой строк корзины.
	ListItemsForUpdate(ctx context.Context, userID int64) ([]CartItem, error)
	// LockProductLines блокирует строки всех корзин с товаром и возвращает их количество.
	LockProductLines(ctx context.Context, productID int64) (int, error)
	// GetLine возвращает строку пользователя или ErrCartItemNotFound.
	GetLine(ctx context.Context, userID, lineID int64) (CartLine, error)
	// FindLine ищет строку по паре (пользователь, товар).
	FindLine(ctx context.Context, userID, productID int64) (CartLine, bool, error)
	Insert(ctx context.Context, line CartLine) (CartLine, error)
	UpdateQuantity(ctx context.Context, lineID, qty int64) (CartLine, error)
	// Delete удаляет строку пользователя; ErrCartItemNotFound, если удалять нечего.
	Delete(ctx context.Context, userID, lineID int64) error
	// Clear удаляет все строки пользователя и возвращает их количество.
	Clear(ctx context.Context, userID int64) (int, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет заказ вместе с позициями. ErrOrderNumberConflict при занятом номере.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// GetForUpdate читает заказ с блокировкой строки.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status OrderStatus, updatedAt time.Time) error
}

// OrderSequence выдаёт порядковые номера заказов в пределах суток.
type OrderSequence interface {
	// Next атомарно возвращает следующий номер для дня day (начиная с 1).
	Next(ctx context.Context, day time.Time) (int64, error)
}

// UserRepository хранит пользователей.
type UserRepository interface {
	// Create сохраняет пользователя; ErrEmailTaken при занятом email.
	Create(ctx context.Context, user User) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
}
