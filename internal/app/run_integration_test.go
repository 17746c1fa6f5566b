package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func waitForHTTP(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRun_MemoryServesAPIAndShutsDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = freeAddr(t)
	cfg.MetricsAddr = freeAddr(t)
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory
	cfg.KafkaBrokers = ""

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	base := "http://" + cfg.HTTPAddr + "/api/v1"
	waitForHTTP(t, base+"/products")

	body, err := json.Marshal(map[string]any{"name": "Widget", "price": "9.99", "stock": 2})
	require.NoError(t, err)
	resp, err := http.Post(base+"/products", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	waitForHTTP(t, "http://"+cfg.MetricsAddr+"/livez")
	resp, err = http.Get("http://" + cfg.MetricsAddr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestRun_PortInUse(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	cfg := DefaultConfig()
	cfg.HTTPAddr = lis.Addr().String()
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"

	errCh := make(chan error, 1)
	go func() { errCh <- Run(context.Background(), cfg) }()

	select {
	case err := <-errCh:
		require.Error(t, err)
		require.False(t, errors.Is(err, context.Canceled))
	case <-time.After(10 * time.Second):
		t.Fatal("Run should fail when the HTTP port is taken")
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("SHOP_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.closeFn() }()

	require.NotNil(t, deps.store)
	require.NotNil(t, deps.idempotencyRepo)
	check := deps.storageChecker.Check(context.Background())
	require.Equal(t, healthcheck.StatusHealthy, check.Status, fmt.Sprintf("%+v", check))
}
