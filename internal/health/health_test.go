package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okPing(context.Context) error { return nil }

func TestHealthHandler_Healthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("store", NewPingChecker("store", okPing))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusHealthy, response.Status)
	require.Equal(t, "v1.0.0", response.Version)
	require.Len(t, response.Checks, 1)
	require.Equal(t, StatusHealthy, response.Checks["store"].Status)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("store", NewPingChecker("store", okPing))
	handler.RegisterChecker("postgres", NewPingChecker("postgres", func(context.Context) error {
		return errors.New("connection refused")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusUnhealthy, response.Status)
	require.Equal(t, "connection refused", response.Checks["postgres"].Message)
}

func TestHealthHandler_OptionalFailureDegrades(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("kafka", NewOptionalChecker("kafka", func(context.Context) error {
		return errors.New("no brokers")
	}))

	resp := handler.Evaluate(context.Background())
	require.Equal(t, StatusDegraded, resp.Status)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealthHandler_CheckTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.timeout = 20 * time.Millisecond
	handler.RegisterChecker("redis", NewPingChecker("redis", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	resp := handler.Evaluate(context.Background())
	require.Equal(t, StatusUnhealthy, resp.Status)
	require.Contains(t, resp.Checks["redis"].Message, "deadline")
}

func TestHealthHandler_Names(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("redis", NewPingChecker("redis", okPing))
	handler.RegisterChecker("postgres", NewPingChecker("postgres", okPing))

	require.Equal(t, []string{"postgres", "redis"}, handler.Names())
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("store", NewPingChecker("store", okPing))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ready", w.Body.String())

	handler.RegisterChecker("postgres", NewPingChecker("postgres", func(context.Context) error {
		return errors.New("down")
	}))
	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
