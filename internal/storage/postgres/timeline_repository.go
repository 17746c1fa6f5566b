package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type timelineRepository struct {
	q queryer
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{q: store.DB()}
}

// Append пишет событие в той же транзакции, что и изменение заказа.
func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, status, reason, occurred)
		VALUES ($1, $2, $3, $4, $5)
	`, event.OrderID, event.Type, string(event.Status), event.Reason, event.Occurred.UTC())
	if err != nil {
		return fmt.Errorf("append %s event for order %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

// List возвращает историю заказа от оформления к последнему статусу.
func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT type, status, reason, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline of order %s: %w", orderID, err)
	}
	defer rows.Close()

	history := []domain.TimelineEvent{}
	for rows.Next() {
		event := domain.TimelineEvent{OrderID: orderID}
		var status string
		if err := rows.Scan(&event.Type, &status, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.Status = domain.OrderStatus(status)
		event.Occurred = event.Occurred.UTC()
		history = append(history, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline of order %s: %w", orderID, err)
	}
	return history, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
