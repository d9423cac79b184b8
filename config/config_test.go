package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/hodlbook/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000", cfg.API.BaseURL)
	assert.Equal(t, "ws://127.0.0.1:8000/ws", cfg.API.WSBaseURL)
	assert.Equal(t, 200*time.Millisecond, cfg.TickWindow())
	assert.Equal(t, 3500*time.Millisecond, cfg.HighlightTTL())
	assert.Equal(t, 3*time.Second, cfg.LoadedFallback())
	assert.Equal(t, 5*time.Second, cfg.RefreshInterval())
	assert.Equal(t, 4096, cfg.Engine.TombstoneCapacity)
	assert.Equal(t, 50, cfg.Engine.MaxNotifications)
	assert.Equal(t, "hodl-notifications", cfg.Storage.NotificationsKey)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.HTTP.Addr)
}

func TestParse_YAML(t *testing.T) {
	cfg, err := config.Parse([]byte(`
api:
  base_url: https://book.example.com/
wallet:
  address: "  5Abc  "
http:
  addr: ":9000"
  cors_origins: ["http://localhost:3000"]
`))
	require.NoError(t, err)

	assert.Equal(t, "https://book.example.com", cfg.API.BaseURL)
	assert.Equal(t, "wss://book.example.com/ws", cfg.API.WSBaseURL)
	assert.Equal(t, "5Abc", cfg.Wallet.Address)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.CORSOrigins)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HODL_WALLET", "5Env")
	t.Setenv("HODL_FILTER", "5Filter")
	t.Setenv("HODL_WS_URL", "wss://push.example.com/ws")

	cfg, err := config.Parse([]byte("wallet:\n  address: 5Yaml\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "5Env", cfg.Wallet.Address)
	assert.Equal(t, "5Filter", cfg.Wallet.FilterAddress)
	assert.Equal(t, "wss://push.example.com/ws", cfg.API.WSBaseURL)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  dsn: \":memory:\"\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("api: [unclosed"), 0o600))
	_, err = config.Load(bad)
	assert.Error(t, err)
}
