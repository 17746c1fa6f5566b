package domain

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckoutOutcomeStatus(t *testing.T) {
	tests := []struct {
		name    string
		outcome CheckoutOutcome
		want    IdempotencyStatus
	}{
		{name: "order created", outcome: CheckoutOutcome{OrderID: "order-1", HTTPStatus: http.StatusCreated}, want: IdempotencyStatusDone},
		{name: "created without order", outcome: CheckoutOutcome{HTTPStatus: http.StatusCreated}, want: IdempotencyStatusFailed},
		{name: "empty cart", outcome: CheckoutOutcome{HTTPStatus: http.StatusUnprocessableEntity}, want: IdempotencyStatusFailed},
		{name: "panic", outcome: CheckoutOutcome{OrderID: "order-1", HTTPStatus: http.StatusInternalServerError}, want: IdempotencyStatusFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.outcome.Status())
			require.True(t, tc.outcome.Status().Valid())
		})
	}

	require.False(t, IdempotencyStatus("broken").Valid())
}

func TestIdempotencyRecordFinished(t *testing.T) {
	require.False(t, IdempotencyRecord{Status: IdempotencyStatusProcessing}.Finished())
	require.True(t, IdempotencyRecord{Status: IdempotencyStatusDone, OrderID: "order-1"}.Finished())
	require.True(t, IdempotencyRecord{Status: IdempotencyStatusFailed}.Finished())
}

func TestIdempotencyPurge(t *testing.T) {
	var batch IdempotencyPurge
	batch.Count(IdempotencyStatusDone)
	batch.Count(IdempotencyStatusDone)
	batch.Count(IdempotencyStatusProcessing)

	var total IdempotencyPurge
	total.Add(batch)
	total.Add(IdempotencyPurge{Failed: 2})

	require.Equal(t, IdempotencyPurge{Done: 2, Failed: 2, Processing: 1}, total)
	require.Equal(t, 5, total.Total())
}
