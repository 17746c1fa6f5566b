package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type cartRepository struct {
	s  *Store
	tx *state
}

func (r *cartRepository) ListItems(_ context.Context, userID int64) ([]domain.CartItem, error) {
	var items []domain.CartItem
	err := r.s.read(r.tx, func(st *state) error {
		items = make([]domain.CartItem, 0)
		for _, line := range st.cart {
			if line.UserID != userID {
				continue
			}
			product, ok := st.products[line.ProductID]
			if !ok {
				continue
			}
			items = append(items, domain.CartItem{CartLine: line, Product: product})
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, err
}

func (r *cartRepository) ListItemsForUpdate(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	return r.ListItems(ctx, userID)
}

// LockProductLines только считает строки: транзакции in-memory хранилища уже сериализованы.
func (r *cartRepository) LockProductLines(_ context.Context, productID int64) (int, error) {
	var n int
	err := r.s.read(r.tx, func(st *state) error {
		for _, line := range st.cart {
			if line.ProductID == productID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *cartRepository) GetLine(_ context.Context, userID, lineID int64) (domain.CartLine, error) {
	var line domain.CartLine
	err := r.s.read(r.tx, func(st *state) error {
		l, ok := st.cart[lineID]
		if !ok || l.UserID != userID {
			return domain.ErrCartItemNotFound
		}
		line = l
		return nil
	})
	return line, err
}

func (r *cartRepository) FindLine(_ context.Context, userID, productID int64) (domain.CartLine, bool, error) {
	var (
		line  domain.CartLine
		found bool
	)
	err := r.s.read(r.tx, func(st *state) error {
		for _, l := range st.cart {
			if l.UserID == userID && l.ProductID == productID {
				line, found = l, true
				return nil
			}
		}
		return nil
	})
	return line, found, err
}

func (r *cartRepository) Insert(_ context.Context, line domain.CartLine) (domain.CartLine, error) {
	err := r.s.write(r.tx, func(st *state) error {
		if _, ok := st.products[line.ProductID]; !ok {
			return domain.ErrProductNotFound
		}
		for _, l := range st.cart {
			if l.UserID == line.UserID && l.ProductID == line.ProductID {
				return domain.ErrConflict
			}
		}
		st.nextCartID++
		now := time.Now().UTC()
		line.ID = st.nextCartID
		line.CreatedAt = now
		line.UpdatedAt = now
		st.cart[line.ID] = line
		return nil
	})
	return line, err
}

func (r *cartRepository) UpdateQuantity(_ context.Context, lineID, qty int64) (domain.CartLine, error) {
	var line domain.CartLine
	err := r.s.write(r.tx, func(st *state) error {
		l, ok := st.cart[lineID]
		if !ok {
			return domain.ErrCartItemNotFound
		}
		l.Quantity = qty
		l.UpdatedAt = time.Now().UTC()
		st.cart[lineID] = l
		line = l
		return nil
	})
	return line, err
}

func (r *cartRepository) Delete(_ context.Context, userID, lineID int64) error {
	return r.s.write(r.tx, func(st *state) error {
		l, ok := st.cart[lineID]
		if !ok || l.UserID != userID {
			return domain.ErrCartItemNotFound
		}
		delete(st.cart, lineID)
		return nil
	})
}

func (r *cartRepository) Clear(_ context.Context, userID int64) (int, error) {
	removed := 0
	err := r.s.write(r.tx, func(st *state) error {
		for id, l := range st.cart {
			if l.UserID == userID {
				delete(st.cart, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

var _ domain.CartRepository = (*cartRepository)(nil)
