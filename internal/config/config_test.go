package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigescrow/internal/escrow"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.HTTP.ListenAddress)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadHeaderTimeout)
	assert.Equal(t, 60*time.Second, cfg.Auth.ClockSkew)
	assert.Equal(t, 24*time.Hour, cfg.HTTP.IdempotencyWindow)
	assert.Empty(t, cfg.Chain.IndexerURL)
	assert.Equal(t, int32(6), cfg.Chain.AssetDecimals)
	assert.Equal(t, escrow.MaxLegFee, cfg.Chain.MaxLegFee)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, uint16(6379), cfg.Store.Redis.Port)
	assert.Equal(t, escrow.DefaultConfirmationPolicy, cfg.ConfirmationPolicy())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ESCROW_LOG_LEVEL", "debug")
	t.Setenv("ESCROW_STORE_DRIVER", "memory")
	t.Setenv("ESCROW_CHAIN_ASSET_DECIMALS", "2")
	t.Setenv("ESCROW_CONFIRMATION_POLL_INTERVAL", "250ms")
	t.Setenv("ESCROW_STORE_REDIS_PORT", "6380")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, int32(2), cfg.Chain.AssetDecimals)
	assert.Equal(t, 250*time.Millisecond, cfg.Confirmation.PollInterval)
	assert.Equal(t, uint16(6380), cfg.Store.Redis.Port)
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrow.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"http": {"listen_address": ":8080"},
		"store": {"driver": "redis", "redis": {"host": "cache", "prefix": "gig"}},
		"confirmation": {"max_rounds": 10}
	}`), 0o600))
	t.Setenv("ESCROW_HTTP_LISTEN_ADDRESS", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.ListenAddress)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, uint64(10), cfg.Confirmation.MaxRounds)

	rc := cfg.RedisConfig()
	assert.Equal(t, "cache", rc.Host)
	assert.Equal(t, "gig", rc.Prefix)
	assert.Equal(t, uint16(6379), rc.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"ESCROW_STORE_DRIVER": "mongo"}},
		{"postgres without dsn", map[string]string{"ESCROW_STORE_DRIVER": "postgres"}},
		{"fee above program limit", map[string]string{"ESCROW_CHAIN_MAX_LEG_FEE": "2000"}},
		{"algod without signer", map[string]string{"ESCROW_CHAIN_ALGOD_URL": "http://localhost:4001"}},
		{"zero rounds", map[string]string{"ESCROW_CONFIRMATION_MAX_ROUNDS": "0"}},
		{"zero idempotency window", map[string]string{"ESCROW_HTTP_IDEMPOTENCY_WINDOW": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
