package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// DefaultMaxAttempts — число попыток транзакции при конфликте номера заказа.
const DefaultMaxAttempts = 3

// Request — данные покупателя для оформления корзины.
type Request struct {
	UserID        int64
	CustomerName  string
	CustomerEmail string
}

// Service превращает корзину пользователя в заказ за одну транзакцию.
type Service struct {
	store       domain.Store
	sequence    domain.OrderSequence
	logger      *log.Entry
	metrics     *metrics.CheckoutMetrics
	now         func() time.Time
	maxAttempts int
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает метрики оформления.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSequence подменяет счётчик номеров заказов (например, Redis).
// Без опции используется счётчик хранилища внутри транзакции.
func WithSequence(seq domain.OrderSequence) Option {
	return func(s *Service) {
		s.sequence = seq
	}
}

// WithClock задаёт источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxAttempts ограничивает число повторов транзакции.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewService создаёт сервис оформления заказов.
func NewService(store domain.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		logger:      log.New().WithField("component", "checkout"),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout оформляет корзину пользователя. При любой ошибке ничего не сохраняется и корзина не меняется.
func (s *Service) Checkout(ctx context.Context, req Request) (domain.Order, error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.CheckoutStarted()
		defer func() {
			s.metrics.CheckoutFinished(time.Since(start))
		}()
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if err := validate(req); err != nil {
		s.recordFailure(err)
		return domain.Order{}, err
	}

	logger := s.logger.WithField("user_id", req.UserID)

	var (
		order domain.Order
		err   error
	)
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		order, err = s.attempt(ctx, req)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrOrderNumberConflict) || attempt == s.maxAttempts {
			break
		}
		logger.WithField("attempt", attempt).Warn("order number conflict, retrying checkout")
		if s.metrics != nil {
			s.metrics.CheckoutRetried()
		}
	}
	if err != nil {
		s.recordFailure(err)
		logger.WithError(err).Warn("checkout failed")
		return domain.Order{}, err
	}

	if s.metrics != nil {
		items := int64(0)
		for _, line := range order.Lines {
			items += line.Quantity
		}
		s.metrics.CheckoutCompleted(items, order.Total.InexactFloat64())
		s.metrics.OutboxEvent()
		s.metrics.TimelineEvent()
	}
	logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.Total.StringFixed(2),
	}).Info("order placed")

	return order, nil
}

func validate(req Request) error {
	if req.UserID <= 0 {
		return domain.ErrUserIDRequired
	}
	if req.CustomerName == "" || req.CustomerEmail == "" {
		return domain.ErrCustomerRequired
	}
	return nil
}

// attempt выполняет одну транзакцию оформления.
func (s *Service) attempt(ctx context.Context, req Request) (domain.Order, error) {
	var placed domain.Order

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		items, err := tx.Carts().ListItemsForUpdate(ctx, req.UserID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrEmptyCart
		}

		// Единый порядок блокировок товаров исключает взаимоблокировки параллельных оформлений.
		sort.Slice(items, func(i, j int) bool {
			return items[i].ProductID < items[j].ProductID
		})

		now := s.now()
		order := domain.Order{
			ID:            uuid.NewString(),
			UserID:        req.UserID,
			CustomerName:  req.CustomerName,
			CustomerEmail: req.CustomerEmail,
			Total:         decimal.Zero,
			Status:        domain.OrderStatusCompleted,
			Lines:         make([]domain.OrderLine, 0, len(items)),
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		for _, item := range items {
			product, err := tx.Products().GetForUpdate(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if product.Stock < item.Quantity {
				return domain.NewInsufficientStock(product, item.Quantity)
			}
			line := domain.OrderLine{
				ID:          uuid.NewString(),
				OrderID:     order.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				Price:       product.Price,
				Quantity:    item.Quantity,
			}
			order.Lines = append(order.Lines, line)
			order.Total = order.Total.Add(line.Total())
		}

		seq, err := s.nextSequence(ctx, tx, now)
		if err != nil {
			return err
		}
		order.OrderNumber = domain.FormatOrderNumber(now, seq)

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		for _, line := range order.Lines {
			if err := tx.Products().DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		if _, err := tx.Carts().Clear(ctx, req.UserID); err != nil {
			return err
		}

		payload, err := json.Marshal(domain.NewOrderPlacedEvent(order))
		if err != nil {
			return fmt.Errorf("marshal order placed event: %w", err)
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateOrder,
			AggregateID:   order.ID,
			EventType:     domain.EventOrderPlaced,
			Payload:       payload,
		}); err != nil {
			return err
		}
		if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.EventOrderPlaced,
			Status:   order.Status,
			Reason:   order.OrderNumber,
			Occurred: now,
		}); err != nil {
			return err
		}

		placed = order
		return nil
	})

	return placed, err
}

func (s *Service) nextSequence(ctx context.Context, tx domain.Repositories, now time.Time) (int64, error) {
	if s.sequence != nil {
		return s.sequence.Next(ctx, now)
	}
	return tx.Sequence().Next(ctx, now)
}

func (s *Service) recordFailure(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.CheckoutFailed(FailureReason(err))
}

// FailureReason сопоставляет ошибку оформления метке метрики.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return metrics.ReasonEmptyCart
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.ReasonInsufficientStock
	case errors.Is(err, domain.ErrInvalidArgument):
		return metrics.ReasonInvalidArgument
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
		return metrics.ReasonConflict
	default:
		return metrics.ReasonInternal
	}
}
