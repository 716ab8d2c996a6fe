package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	cfg = Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL: "postgres://localhost/checkout",
			Checkout:    CheckoutConfig{CartPath: "/cart", OrdersPath: "/api/orders"},
			Redis:       RedisConfig{LockTTL: 30 * time.Second},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.validate())

	cfg = valid()
	cfg.DatabaseURL = ""
	assert.ErrorContains(t, cfg.validate(), "database URL is required")

	cfg = valid()
	cfg.Checkout.OrdersPath = "orders"
	assert.ErrorContains(t, cfg.validate(), "must be absolute")

	cfg = valid()
	cfg.Redis = RedisConfig{Addr: "localhost:6379"}
	assert.ErrorContains(t, cfg.validate(), "lock TTL")
}
