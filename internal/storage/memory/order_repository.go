package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// orderRepository хранит заказы в памяти.
type orderRepository struct {
	s  *Store
	tx *state
}

// Create сохраняет новый заказ, если ID и номер ещё не заняты.
func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	return r.s.write(r.tx, func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return fmt.Errorf("%w: order %s already exists", domain.ErrConflict, order.ID)
		}
		for _, existing := range st.orders {
			if existing.OrderNumber == order.OrderNumber {
				return domain.ErrOrderNumberConflict
			}
		}
		// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
		order.Lines = slices.Clone(order.Lines)
		st.orders[order.ID] = order
		return nil
	})
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := r.s.read(r.tx, func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order = copyOrder(o)
		return nil
	})
	return order, err
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.Get(ctx, id)
}

// ListByUser возвращает заказы пользователя: сначала новые.
func (r *orderRepository) ListByUser(_ context.Context, userID int64) ([]domain.Order, error) {
	var result []domain.Order
	err := r.s.read(r.tx, func(st *state) error {
		result = make([]domain.Order, 0)
		for _, order := range st.orders {
			if order.UserID != userID {
				continue
			}
			result = append(result, copyOrder(order))
		}
		return nil
	})

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, err
}

func (r *orderRepository) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	return r.s.write(r.tx, func(st *state) error {
		order, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order.Status = status
		order.UpdatedAt = updatedAt
		st.orders[id] = order
		return nil
	})
}

func copyOrder(o domain.Order) domain.Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}

// orderSequence считает номера заказов по дням.
type orderSequence struct {
	s  *Store
	tx *state
}

func (q *orderSequence) Next(_ context.Context, day time.Time) (int64, error) {
	var next int64
	err := q.s.write(q.tx, func(st *state) error {
		key := domain.OrderDay(day).Format("2006-01-02")
		st.sequences[key]++
		next = st.sequences[key]
		return nil
	})
	return next, err
}

var (
	_ domain.OrderRepository = (*orderRepository)(nil)
	_ domain.OrderSequence   = (*orderSequence)(nil)
)
