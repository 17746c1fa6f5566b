package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const cartLineColumns = `id, user_id, product_id, quantity, created_at, updated_at`

type cartRepository struct {
	q queryer
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository вне транзакции.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{q: store.DB()}
}

func scanCartLine(row interface{ Scan(...any) error }) (domain.CartLine, error) {
	var l domain.CartLine
	err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (r *cartRepository) ListItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	return r.listItems(ctx, userID, "")
}

// ListItemsForUpdate блокирует строки корзины, чтобы параллельные изменения дождались конца транзакции.
func (r *cartRepository) ListItemsForUpdate(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	return r.listItems(ctx, userID, " FOR UPDATE OF c")
}

// LockProductLines берёт блокировки строк корзин раньше строки товара,
// в том же порядке, что и оформление заказа.
func (r *cartRepository) LockProductLines(ctx context.Context, productID int64) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx,
		`SELECT id FROM cart_items WHERE product_id = $1 ORDER BY id ASC FOR UPDATE`, productID)
	if err != nil {
		return 0, fmt.Errorf("lock cart lines: %w", err)
	}
	defer rows.Close()

	var n int
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan cart line: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("lock cart lines: %w", err)
	}
	return n, nil
}

func (r *cartRepository) listItems(ctx context.Context, userID int64, lock string) ([]domain.CartItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at,
		       p.id, p.name, p.description, p.price, p.stock, p.created_at, p.updated_at
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.id ASC`+lock, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var (
			item domain.CartItem
			p    = &item.Product
		)
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt,
			&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}

	return items, nil
}

func (r *cartRepository) GetLine(ctx context.Context, userID, lineID int64) (domain.CartLine, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	line, err := scanCartLine(r.q.QueryRowContext(ctx,
		`SELECT `+cartLineColumns+` FROM cart_items WHERE id = $1 AND user_id = $2`, lineID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartLine{}, domain.ErrCartItemNotFound
		}
		return domain.CartLine{}, fmt.Errorf("select cart line: %w", err)
	}
	return line, nil
}

func (r *cartRepository) FindLine(ctx context.Context, userID, productID int64) (domain.CartLine, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	line, err := scanCartLine(r.q.QueryRowContext(ctx,
		`SELECT `+cartLineColumns+` FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartLine{}, false, nil
		}
		return domain.CartLine{}, false, fmt.Errorf("find cart line: %w", err)
	}
	return line, true, nil
}

func (r *cartRepository) Insert(ctx context.Context, line domain.CartLine) (domain.CartLine, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	created, err := scanCartLine(r.q.QueryRowContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$4)
		RETURNING `+cartLineColumns,
		line.UserID, line.ProductID, line.Quantity, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CartLine{}, fmt.Errorf("%w: cart line for product %d already exists", domain.ErrConflict, line.ProductID)
		}
		if isForeignKeyViolation(err) {
			return domain.CartLine{}, domain.ErrProductNotFound
		}
		return domain.CartLine{}, fmt.Errorf("insert cart line: %w", err)
	}
	return created, nil
}

func (r *cartRepository) UpdateQuantity(ctx context.Context, lineID, qty int64) (domain.CartLine, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	line, err := scanCartLine(r.q.QueryRowContext(ctx, `
		UPDATE cart_items
		SET quantity = $2,
		    updated_at = $3
		WHERE id = $1
		RETURNING `+cartLineColumns,
		lineID, qty, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartLine{}, domain.ErrCartItemNotFound
		}
		return domain.CartLine{}, fmt.Errorf("update cart line: %w", err)
	}
	return line, nil
}

func (r *cartRepository) Delete(ctx context.Context, userID, lineID int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, lineID, userID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (r *cartRepository) Clear(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
