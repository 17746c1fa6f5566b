package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

type OrdersServiceSuite struct {
	suite.Suite

	ctx     context.Context
	store   *memory.Store
	svc     *Service
	product domain.Product
	seq     int64
}

func TestOrdersServiceSuite(t *testing.T) {
	suite.Run(t, new(OrdersServiceSuite))
}

func (s *OrdersServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()

	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	s.svc = NewService(s.store,
		WithLogger(logger.WithField("component", "orders-test")),
		WithMetrics(metrics.NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())),
	)

	p, err := s.store.Products().Create(s.ctx, domain.Product{Name: "Widget", Price: decimal.RequireFromString("3.00"), Stock: 10})
	s.Require().NoError(err)
	s.product = p
	s.seq = 0
}

func (s *OrdersServiceSuite) placeOrder(userID int64, status domain.OrderStatus, qty int64, createdAt time.Time) domain.Order {
	s.seq++
	id := uuid.NewString()
	order := domain.Order{
		ID:            id,
		OrderNumber:   domain.FormatOrderNumber(createdAt, s.seq),
		UserID:        userID,
		CustomerName:  "Ann",
		CustomerEmail: "ann@example.com",
		Total:         s.product.Price.Mul(decimal.NewFromInt(qty)),
		Status:        status,
		Lines: []domain.OrderLine{{
			ID:          uuid.NewString(),
			OrderID:     id,
			ProductID:   s.product.ID,
			ProductName: s.product.Name,
			Price:       s.product.Price,
			Quantity:    qty,
		}},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	s.Require().NoError(s.store.Orders().Create(s.ctx, order))
	return order
}

func (s *OrdersServiceSuite) stock() int64 {
	p, err := s.store.Products().Get(s.ctx, s.product.ID)
	s.Require().NoError(err)
	return p.Stock
}

func (s *OrdersServiceSuite) TestListForUserNewestFirst() {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	older := s.placeOrder(1, domain.OrderStatusCompleted, 1, base)
	newer := s.placeOrder(1, domain.OrderStatusCompleted, 1, base.Add(time.Hour))
	s.placeOrder(2, domain.OrderStatusCompleted, 1, base.Add(2*time.Hour))

	list, err := s.svc.ListForUser(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(newer.ID, list[0].ID)
	s.Equal(older.ID, list[1].ID)
	s.Len(list[0].Lines, 1)

	empty, err := s.svc.ListForUser(s.ctx, 3)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *OrdersServiceSuite) TestGetNotFound() {
	_, err := s.svc.Get(s.ctx, uuid.NewString())
	s.ErrorIs(err, domain.ErrOrderNotFound)
	s.True(domain.IsNotFound(err))
}

func (s *OrdersServiceSuite) TestAllowedTransitions() {
	order := s.placeOrder(1, domain.OrderStatusPending, 2, time.Now().UTC())

	updated, err := s.svc.UpdateStatus(s.ctx, order.ID, domain.OrderStatusProcessing)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusProcessing, updated.Status)

	updated, err = s.svc.UpdateStatus(s.ctx, order.ID, domain.OrderStatusCompleted)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCompleted, updated.Status)
	s.Equal(int64(10), s.stock())

	stored, err := s.svc.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCompleted, stored.Status)

	events, err := s.svc.Timeline(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Len(events, 2)
	s.Equal("pending -> processing", events[0].Reason)
	s.Equal(domain.OrderStatusProcessing, events[0].Status)
	s.Equal(domain.OrderStatusCompleted, events[1].Status)
}

func (s *OrdersServiceSuite) TestSameStatusIsNoop() {
	order := s.placeOrder(1, domain.OrderStatusCompleted, 1, time.Now().UTC())

	updated, err := s.svc.UpdateStatus(s.ctx, order.ID, domain.OrderStatusCompleted)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCompleted, updated.Status)

	pending, err := s.store.Outbox().PullPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *OrdersServiceSuite) TestInvalidTransitions() {
	completed := s.placeOrder(1, domain.OrderStatusCompleted, 1, time.Now().UTC())
	_, err := s.svc.UpdateStatus(s.ctx, completed.ID, domain.OrderStatusPending)
	s.ErrorIs(err, domain.ErrInvalidStatusTransition)
	s.True(domain.IsConflict(err))

	cancelled := s.placeOrder(1, domain.OrderStatusCancelled, 1, time.Now().UTC())
	_, err = s.svc.UpdateStatus(s.ctx, cancelled.ID, domain.OrderStatusProcessing)
	s.ErrorIs(err, domain.ErrInvalidStatusTransition)

	_, err = s.svc.UpdateStatus(s.ctx, completed.ID, domain.OrderStatus("shipped"))
	s.ErrorIs(err, domain.ErrInvalidStatus)

	_, err = s.svc.UpdateStatus(s.ctx, uuid.NewString(), domain.OrderStatusCancelled)
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *OrdersServiceSuite) TestCancelRestocksAndEmitsEvent() {
	order := s.placeOrder(1, domain.OrderStatusCompleted, 4, time.Now().UTC())

	updated, err := s.svc.UpdateStatus(s.ctx, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCancelled, updated.Status)
	s.Equal(int64(14), s.stock())

	pending, err := s.store.Outbox().PullPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(domain.EventOrderStatusChanged, pending[0].EventType)

	var event domain.OrderStatusChangedEvent
	s.Require().NoError(json.Unmarshal(pending[0].Payload, &event))
	s.Equal(domain.OrderStatusCompleted, event.From)
	s.Equal(domain.OrderStatusCancelled, event.To)
	s.True(event.Restocked)

	// Повторная отмена не меняет остаток.
	_, err = s.svc.UpdateStatus(s.ctx, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)
	s.Equal(int64(14), s.stock())
}

func (s *OrdersServiceSuite) TestTimelineUnknownOrder() {
	_, err := s.svc.Timeline(s.ctx, uuid.NewString())
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func TestListForUser_RequiresUser(t *testing.T) {
	svc := NewService(memory.NewStore())
	_, err := svc.ListForUser(context.Background(), 0)
	require.ErrorIs(t, err, domain.ErrUserIDRequired)
}
