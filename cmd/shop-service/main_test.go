package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/app"
)

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("SHOP_CONFIG_FILE", "")
	t.Setenv("SHOP_STORAGE_DRIVER", "")
	t.Setenv("SHOP_ORDER_SEQUENCE_DRIVER", "")
	t.Setenv("SHOP_HTTP_ADDR", "")

	cfg, err := readConfig(nil)
	require.NoError(t, err)
	require.Equal(t, app.StorageDriverMemory, cfg.StorageDriver)
	require.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestReadConfig_FileFlag(t *testing.T) {
	t.Setenv("SHOP_STORAGE_DRIVER", "")
	t.Setenv("SHOP_ORDER_SEQUENCE_DRIVER", "")
	t.Setenv("SHOP_HTTP_ADDR", "")

	path := filepath.Join(t.TempDir(), "shop.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http_addr": ":18081", "log_level": "debug"}`), 0o600))

	cfg, err := readConfig([]string{"-config", path})
	require.NoError(t, err)
	require.Equal(t, ":18081", cfg.HTTPAddr)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestReadConfig_BadFlag(t *testing.T) {
	_, err := readConfig([]string{"-unknown"})
	require.Error(t, err)
}
