package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Checkout    CheckoutConfig
	Gateway     GatewayConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Graceful    GracefulConfig
}

// CheckoutConfig holds store-wide checkout rules and redirect targets.
type CheckoutConfig struct {
	TermsRequired bool   `default:"false" usage:"Require acceptance of the terms of service on the summary step" flag:"terms-required"`
	CartPath      string `default:"/cart" usage:"Path buyers are sent to when the cart cannot be checked out" flag:"cart-path"`
	OrdersPath    string `default:"/api/orders" usage:"Prefix of checkout and confirmation paths" flag:"orders-path"`
}

// GatewayConfig configures the hosted payment page for external gateway
// payment methods. Empty RedirectBaseURL disables them.
type GatewayConfig struct {
	RedirectBaseURL string `default:"" usage:"Hosted payment page URL" flag:"gateway-url"`
	ReturnURL       string `default:"" usage:"URL the gateway returns the buyer to" flag:"gateway-return-url"`
}

// RedisConfig configures the per-order submit lock. Empty Addr disables it.
type RedisConfig struct {
	Addr    string        `default:"" usage:"Redis address for submit locks" flag:"redis-addr"`
	LockTTL time.Duration `default:"30s" usage:"Submit lock expiry" flag:"redis-lock-ttl"`
}

// KafkaConfig configures order event publishing. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers for order events" flag:"kafka-brokers"`
	Topic   string   `default:"order.completed" usage:"Topic completed orders are published to" flag:"kafka-topic"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if c.Checkout.OrdersPath == "" || c.Checkout.OrdersPath[0] != '/' {
		return errors.Errorf("orders path %q must be absolute", c.Checkout.OrdersPath)
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		return errors.New("redis lock TTL must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
