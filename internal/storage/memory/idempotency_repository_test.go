package memory_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func claim(key, hash string, userID int64, ttl time.Time) domain.IdempotencyClaim {
	return domain.IdempotencyClaim{Key: key, RequestHash: hash, UserID: userID, TTLAt: ttl}
}

func TestIdempotencyRepository_CheckoutKeyLifecycle(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(ctx, claim(" checkout-1 ", "hash-1", 7, ttl))
	require.NoError(t, err)
	require.Equal(t, "checkout-1", created.Key)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)
	require.Equal(t, int64(7), created.UserID)
	require.Empty(t, created.OrderID)

	body := []byte(`{"id":"order-1","orderNumber":"ORD-20250101-001"}`)
	require.NoError(t, repo.Finish(ctx, "checkout-1", domain.CheckoutOutcome{
		OrderID:    "order-1",
		HTTPStatus: http.StatusCreated,
		Body:       body,
	}))
	body[0] = 'X'

	got, err := repo.Get(ctx, "checkout-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, "order-1", got.OrderID)
	require.Equal(t, http.StatusCreated, got.HTTPStatus)
	require.JSONEq(t, `{"id":"order-1","orderNumber":"ORD-20250101-001"}`, string(got.ResponseBody))
	require.True(t, got.TTLAt.Equal(ttl))
	require.True(t, got.Finished())
}

func TestIdempotencyRepository_FailedCheckoutHasNoOrder(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, claim("checkout-2", "hash", 3, time.Time{}))
	require.NoError(t, err)
	require.NoError(t, repo.Finish(ctx, "checkout-2", domain.CheckoutOutcome{
		HTTPStatus: http.StatusUnprocessableEntity,
		Body:       []byte(`{"kind":"empty_cart"}`),
	}))

	got, err := repo.Get(ctx, "checkout-2")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, got.Status)
	require.Empty(t, got.OrderID)
	require.True(t, got.TTLAt.After(time.Now()), "zero ttl gets a default")

	require.ErrorIs(t, repo.Finish(ctx, "missing", domain.CheckoutOutcome{}), domain.ErrIdempotencyKeyNotFound)
	require.ErrorIs(t, repo.Finish(ctx, " ", domain.CheckoutOutcome{}), domain.ErrIdempotencyKeyRequired)
}

func TestIdempotencyRepository_ConflictAndHashMismatch(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, claim("checkout-3", "hash-a", 1, ttl))
	require.NoError(t, err)

	existing, err := repo.CreateProcessing(ctx, claim("checkout-3", "hash-a", 1, ttl))
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, domain.IdempotencyStatusProcessing, existing.Status)

	_, err = repo.CreateProcessing(ctx, claim("checkout-3", "hash-b", 2, ttl))
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	_, err = repo.CreateProcessing(ctx, claim("", "hash", 1, ttl))
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(ctx, claim("checkout-4", "", 1, ttl))
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
}

func TestIdempotencyRepository_DeleteExpiredCountsByStatus(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	for i, key := range []string{"done", "failed", "stuck"} {
		_, err := repo.CreateProcessing(ctx, claim(key, "hash", 1, now.Add(time.Duration(i-5)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, claim("active", "hash", 1, now.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, repo.Finish(ctx, "done", domain.CheckoutOutcome{OrderID: "order-1", HTTPStatus: http.StatusCreated}))
	require.NoError(t, repo.Finish(ctx, "failed", domain.CheckoutOutcome{HTTPStatus: http.StatusConflict}))

	purge, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyPurge{Done: 1, Failed: 1}, purge)

	purge, err = repo.DeleteExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyPurge{Processing: 1}, purge)

	_, err = repo.Get(ctx, "stuck")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get(ctx, "active")
	require.NoError(t, err)
}
