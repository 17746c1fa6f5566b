package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	orderColumns            = `id, order_number, user_id, customer_name, customer_email, total, status, created_at, updated_at`
	orderNumberConstraint   = "orders_order_number_key"
	orderSequenceUpsertStmt = `
		INSERT INTO order_sequences (day, last_value)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE
		SET last_value = order_sequences.last_value + 1
		RETURNING last_value
	`
)

type orderRepository struct {
	q queryer
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository вне транзакции.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{q: store.DB()}
}

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.CustomerName, &order.CustomerEmail,
		&order.Total, &status, &order.CreatedAt, &order.UpdatedAt,
	)
	order.Status = domain.OrderStatus(status)
	return order, err
}

// Create сохраняет заказ и его позиции. Вызывается внутри транзакции оформления,
// поэтому собственную транзакцию не открывает.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		order.ID, order.OrderNumber, order.UserID, order.CustomerName, order.CustomerEmail,
		order.Total, string(order.Status), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if constraintName(err) == orderNumberConstraint {
				return domain.ErrOrderNumberConflict
			}
			return fmt.Errorf("%w: order %s already exists", domain.ErrConflict, order.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, line_no, product_id, product_name, price, quantity
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			line.ID, order.ID, i+1, line.ProductID, line.ProductName, line.Price, line.Quantity,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, id, "")
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *orderRepository) get(ctx context.Context, id, lock string) (domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`+lock, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

// ListByUser возвращает заказы пользователя: сначала новые.
func (r *orderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	// Внутри транзакции нельзя держать открытый курсор во время следующего запроса.
	rows.Close()

	for i := range orders {
		lines, err := r.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrOrderNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, string(status), updatedAt)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.ProductName, &line.Price, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return lines, nil
}

// orderSequence выдаёт номера заказов из таблицы order_sequences.
// Внутри транзакции строка дня остаётся заблокированной до фиксации,
// поэтому номера выдаются без пропусков и повторов.
type orderSequence struct {
	q queryer
}

func (s *orderSequence) Next(ctx context.Context, day time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var next int64
	if err := s.q.QueryRowContext(ctx, orderSequenceUpsertStmt, domain.OrderDay(day)).Scan(&next); err != nil {
		return 0, fmt.Errorf("next order sequence: %w", err)
	}
	return next, nil
}

var (
	_ domain.OrderRepository = (*orderRepository)(nil)
	_ domain.OrderSequence   = (*orderSequence)(nil)
)
