package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// Service — журнал заказов: чтение, смена статуса и история событий.
type Service struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис заказов.
func NewService(store domain.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.New().WithField("component", "orders"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListForUser возвращает заказы пользователя вместе с позициями, новые первыми.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	if userID <= 0 {
		return nil, domain.ErrUserIDRequired
	}
	return s.store.Orders().ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return s.store.Orders().Get(ctx, orderID)
}

// UpdateStatus переводит заказ в новый статус по графу переходов.
// Тот же статус — no-op. При отмене остатки возвращаются на склад в той же транзакции.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus) (domain.Order, error) {
	if !next.Valid() {
		return domain.Order{}, domain.ErrInvalidStatus
	}

	var (
		updated domain.Order
		changed bool
		from    domain.OrderStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		order, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if order.Status == next {
			updated = order
			return nil
		}
		if !domain.CanTransition(order.Status, next) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, order.Status, next)
		}

		now := s.now()
		restock := next == domain.OrderStatusCancelled
		if restock {
			for _, line := range order.Lines {
				if err := tx.Products().IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
					return fmt.Errorf("restock product %d: %w", line.ProductID, err)
				}
			}
		}

		if err := tx.Orders().UpdateStatus(ctx, order.ID, next, now); err != nil {
			return err
		}
		order.Status = next
		order.UpdatedAt = now

		payload, err := json.Marshal(domain.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			From:        from,
			To:          next,
			Restocked:   restock,
			ChangedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("marshal status changed event: %w", err)
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateOrder,
			AggregateID:   order.ID,
			EventType:     domain.EventOrderStatusChanged,
			Payload:       payload,
		}); err != nil {
			return err
		}
		if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.EventOrderStatusChanged,
			Status:   next,
			Reason:   fmt.Sprintf("%s -> %s", from, next),
			Occurred: now,
		}); err != nil {
			return err
		}

		updated = order
		changed = true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if changed {
		if s.metrics != nil {
			s.metrics.StatusChanged(string(next))
			s.metrics.OutboxEvent()
			s.metrics.TimelineEvent()
		}
		s.logger.WithFields(log.Fields{
			"order_id": updated.ID,
			"from":     from,
			"to":       next,
		}).Info("order status changed")
	}
	return updated, nil
}

// Timeline возвращает историю событий заказа.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.store.Orders().Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.Timeline().List(ctx, orderID)
}
