package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const productColumns = `id, name, description, price, stock, created_at, updated_at`

type productRepository struct {
	q queryer
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository вне транзакции.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{q: store.DB()}
}

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	created, err := scanProduct(r.q.QueryRowContext(ctx, `
		INSERT INTO products (name, description, price, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
		RETURNING `+productColumns,
		product.Name, product.Description, product.Price, product.Stock, now,
	))
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return created, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	return r.get(ctx, id, "")
}

func (r *productRepository) GetForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *productRepository) get(ctx context.Context, id int64, lock string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	p, err := scanProduct(r.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`+lock, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	updated, err := scanProduct(r.q.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2,
		    description = $3,
		    price = $4,
		    stock = $5,
		    updated_at = $6
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Description, product.Price, product.Stock, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return updated, nil
}

// Delete удаляет товар; строки корзин удаляются каскадно (ON DELETE CASCADE).
func (r *productRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrProductInUse
		}
		return fmt.Errorf("delete product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *productRepository) IsReferenced(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var referenced bool
	if err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM order_items WHERE product_id = $1)`, id,
	).Scan(&referenced); err != nil {
		return false, fmt.Errorf("check product references: %w", err)
	}
	return referenced, nil
}

// DecrementStock — условная запись: остаток уменьшается, только если его хватает.
func (r *productRepository) DecrementStock(ctx context.Context, id, qty int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2,
		    updated_at = $3
		WHERE id = $1
		  AND stock >= $2
	`, id, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, err := r.get(ctx, id, "")
		if err != nil {
			return err
		}
		return domain.NewInsufficientStock(current, qty)
	}
	return nil
}

func (r *productRepository) IncrementStock(ctx context.Context, id, qty int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    updated_at = $3
		WHERE id = $1
	`, id, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *productRepository) Stats(ctx context.Context, lowStockThreshold int64) (domain.CatalogStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var stats domain.CatalogStats
	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(stock), 0),
		       COUNT(*) FILTER (WHERE stock < $1)
		FROM products
	`, lowStockThreshold).Scan(&stats.TotalProducts, &stats.TotalStock, &stats.LowStockItems); err != nil {
		return domain.CatalogStats{}, fmt.Errorf("catalog stats query failed: %w", err)
	}
	return stats, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
