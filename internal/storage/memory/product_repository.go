package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type productRepository struct {
	s  *Store
	tx *state
}

func (r *productRepository) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	err := r.s.write(r.tx, func(st *state) error {
		st.nextProductID++
		now := time.Now().UTC()
		product.ID = st.nextProductID
		product.CreatedAt = now
		product.UpdatedAt = now
		st.products[product.ID] = product
		return nil
	})
	return product, err
}

func (r *productRepository) Get(_ context.Context, id int64) (domain.Product, error) {
	var product domain.Product
	err := r.s.read(r.tx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product = p
		return nil
	})
	return product, err
}

// GetForUpdate в памяти не отличается от Get: транзакция и так держит эксклюзивную блокировку.
func (r *productRepository) GetForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return r.Get(ctx, id)
}

func (r *productRepository) List(_ context.Context) ([]domain.Product, error) {
	var result []domain.Product
	err := r.s.read(r.tx, func(st *state) error {
		result = make([]domain.Product, 0, len(st.products))
		for _, p := range st.products {
			result = append(result, p)
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

func (r *productRepository) Update(_ context.Context, product domain.Product) (domain.Product, error) {
	err := r.s.write(r.tx, func(st *state) error {
		current, ok := st.products[product.ID]
		if !ok {
			return domain.ErrProductNotFound
		}
		product.CreatedAt = current.CreatedAt
		product.UpdatedAt = time.Now().UTC()
		st.products[product.ID] = product
		return nil
	})
	return product, err
}

func (r *productRepository) Delete(_ context.Context, id int64) error {
	return r.s.write(r.tx, func(st *state) error {
		if _, ok := st.products[id]; !ok {
			return domain.ErrProductNotFound
		}
		delete(st.products, id)
		for lineID, line := range st.cart {
			if line.ProductID == id {
				delete(st.cart, lineID)
			}
		}
		return nil
	})
}

func (r *productRepository) IsReferenced(_ context.Context, id int64) (bool, error) {
	referenced := false
	err := r.s.read(r.tx, func(st *state) error {
		for _, order := range st.orders {
			for _, line := range order.Lines {
				if line.ProductID == id {
					referenced = true
					return nil
				}
			}
		}
		return nil
	})
	return referenced, err
}

func (r *productRepository) DecrementStock(_ context.Context, id, qty int64) error {
	return r.s.write(r.tx, func(st *state) error {
		product, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		if product.Stock < qty {
			return domain.NewInsufficientStock(product, qty)
		}
		product.Stock -= qty
		product.UpdatedAt = time.Now().UTC()
		st.products[id] = product
		return nil
	})
}

func (r *productRepository) IncrementStock(_ context.Context, id, qty int64) error {
	return r.s.write(r.tx, func(st *state) error {
		product, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product.Stock += qty
		product.UpdatedAt = time.Now().UTC()
		st.products[id] = product
		return nil
	})
}

func (r *productRepository) Stats(_ context.Context, lowStockThreshold int64) (domain.CatalogStats, error) {
	var stats domain.CatalogStats
	err := r.s.read(r.tx, func(st *state) error {
		for _, p := range st.products {
			stats.TotalProducts++
			stats.TotalStock += p.Stock
			if p.Stock < lowStockThreshold {
				stats.LowStockItems++
			}
		}
		return nil
	})
	return stats, err
}

var _ domain.ProductRepository = (*productRepository)(nil)
