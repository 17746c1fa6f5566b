package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func sampleOrder(userID int64, number string, product domain.Product, createdAt time.Time) domain.Order {
	id := uuid.NewString()
	return domain.Order{
		ID:            id,
		OrderNumber:   number,
		UserID:        userID,
		CustomerName:  "Ann",
		CustomerEmail: "ann@example.com",
		Total:         product.Price.Mul(decimal.NewFromInt(2)),
		Status:        domain.OrderStatusCompleted,
		Lines: []domain.OrderLine{
			{
				ID:          uuid.NewString(),
				OrderID:     id,
				ProductID:   product.ID,
				ProductName: product.Name,
				Price:       product.Price,
				Quantity:    2,
			},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestOrderRepository_PostgresCreateGetList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	p := seedProductForIntegrationTest(t, store, "Widget", "10.00", 5)
	now := time.Now().UTC().Round(time.Microsecond)
	older := sampleOrder(1, "ORD-20250101-001", p, now.Add(-time.Minute))
	newer := sampleOrder(1, "ORD-20250101-002", p, now)

	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	got, err := repo.Get(ctx, older.ID)
	require.NoError(t, err)
	require.Equal(t, older.OrderNumber, got.OrderNumber)
	require.Equal(t, "20.00", got.Total.StringFixed(2))
	require.Len(t, got.Lines, 1)
	require.Equal(t, "Widget", got.Lines[0].ProductName)

	list, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, newer.ID, list[0].ID)

	require.NoError(t, repo.UpdateStatus(ctx, older.ID, domain.OrderStatusCancelled, now))
	got, err = repo.Get(ctx, older.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, got.Status)

	referenced, err := NewProductRepository(store).IsReferenced(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, referenced)
	require.ErrorIs(t, NewProductRepository(store).Delete(ctx, p.ID), domain.ErrProductInUse)
}

func TestOrderRepository_PostgresLinesKeepSnapshot(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	p := seedProductForIntegrationTest(t, store, "Widget", "10.00", 5)
	order := sampleOrder(1, "ORD-20250101-001", p, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, order))

	changed := p
	changed.Name = "Widget Pro"
	changed.Price = decimal.RequireFromString("99.00")
	_, err := NewProductRepository(store).Update(ctx, changed)
	require.NoError(t, err)

	got, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, "Widget", got.Lines[0].ProductName)
	require.Equal(t, "10.00", got.Lines[0].Price.StringFixed(2))
	require.Equal(t, "20.00", got.Total.StringFixed(2))

	list, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Widget", list[0].Lines[0].ProductName)
	require.Equal(t, "10.00", list[0].Lines[0].Price.StringFixed(2))
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	p := seedProductForIntegrationTest(t, store, "Widget", "10.00", 5)
	now := time.Now().UTC()

	_, err := repo.Get(ctx, "missing-order")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = repo.Get(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.ErrorIs(t, repo.UpdateStatus(ctx, uuid.NewString(), domain.OrderStatusCancelled, now), domain.ErrOrderNotFound)

	require.NoError(t, repo.Create(ctx, sampleOrder(1, "ORD-20250101-001", p, now)))
	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		return tx.Orders().Create(ctx, sampleOrder(2, "ORD-20250101-001", p, now))
	})
	require.ErrorIs(t, err, domain.ErrOrderNumberConflict)
}

func TestOrderSequence_PostgresRollbackDoesNotConsume(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	day := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	first, err := store.Sequence().Next(ctx, day)
	require.NoError(t, err)
	require.Equal(t, int64(1), first)

	boom := errors.New("boom")
	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		next, err := tx.Sequence().Next(ctx, day)
		require.NoError(t, err)
		require.Equal(t, int64(2), next)
		return boom
	})
	require.ErrorIs(t, err, boom)

	next, err := store.Sequence().Next(ctx, day)
	require.NoError(t, err)
	require.Equal(t, int64(2), next)

	other, err := store.Sequence().Next(ctx, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), other)
}

func TestStore_PostgresConcurrentLockedDecrement(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	p := seedProductForIntegrationTest(t, store, "Limited", "5.00", 3)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
				product, err := tx.Products().GetForUpdate(ctx, p.ID)
				if err != nil {
					return err
				}
				if product.Stock < 1 {
					return domain.NewInsufficientStock(product, 1)
				}
				return tx.Products().DecrementStock(ctx, p.ID, 1)
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, succeeded)
	require.Equal(t, workers-3, rejected)

	got, err := store.Products().Get(ctx, p.ID)
	require.NoError(t, err)
	require.Zero(t, got.Stock)
}

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)
	ctx := context.Background()

	orderID := uuid.NewString()
	occurred := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)

	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{
		OrderID: orderID, Type: domain.EventOrderStatusChanged, Status: domain.OrderStatusCancelled, Reason: "completed -> cancelled",
	}))
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{
		OrderID: orderID, Type: domain.EventOrderPlaced, Status: domain.OrderStatusCompleted, Occurred: occurred,
	}))

	events, err := repo.List(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.EventOrderPlaced, events[0].Type)
	require.Equal(t, domain.OrderStatusCompleted, events[0].Status)
	require.Equal(t, orderID, events[0].OrderID)
	require.Equal(t, domain.OrderStatusCancelled, events[1].Status)

	err = repo.Append(ctx, domain.TimelineEvent{OrderID: orderID, Type: domain.EventOrderStatusChanged, Status: "lost"})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	empty, err := repo.List(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestPgErrorClassifiers(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "22001"}))
	require.False(t, isUniqueViolation(errors.New("plain error")))

	require.True(t, isForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isForeignKeyViolation(&pgconn.PgError{Code: "23505"}))

	require.True(t, isTxAborted(fmt.Errorf("lock product: %w", &pgconn.PgError{Code: "40P01"})))
	require.True(t, isTxAborted(&pgconn.PgError{Code: "40001"}))
	require.False(t, isTxAborted(&pgconn.PgError{Code: "23505"}))
	require.False(t, isTxAborted(errors.New("plain error")))

	require.Equal(t, orderNumberConstraint, constraintName(&pgconn.PgError{Code: "23505", ConstraintName: orderNumberConstraint}))
	require.Empty(t, constraintName(errors.New("plain error")))
}
