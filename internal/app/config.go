package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// Storage backends.
const (
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Store        string `default:"postgres" usage:"Storage backend: postgres, firestore or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	DBMaxConns   int32  `default:"0" usage:"PostgreSQL pool size, 0 keeps the pgx default" flag:"db-max-conns"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	// SeedAPIKey is registered at startup by the memory backend, which has no
	// seed tool.
	SeedAPIKey string `usage:"API key accepted by the memory backend" flag:"seed-api-key"`
	Firestore  FirestoreConfig
	Checkout   CheckoutConfig
	RateLimit  RateLimitConfig
	CORS       CORSConfig
	Graceful   GracefulConfig
}

// FirestoreConfig selects the Firestore project.
type FirestoreConfig struct {
	ProjectID       string `usage:"Google Cloud project id" flag:"firestore-project"`
	CredentialsFile string `usage:"Service account credentials file" flag:"firestore-credentials"`
}

// CheckoutConfig tunes the commit transaction.
type CheckoutConfig struct {
	MaxAttempts      int    `default:"5" usage:"Transaction attempts before a commit conflict is reported"`
	DeliveryFee      string `default:"50" usage:"Flat delivery charge"`
	FreeDeliveryFrom int64  `default:"3" usage:"Item count from which delivery is free"`
}

// DeliveryPolicy parses the configured delivery rule.
func (c CheckoutConfig) DeliveryPolicy() (order.DeliveryPolicy, error) {
	fee, err := decimal.NewFromString(c.DeliveryFee)
	if err != nil {
		return order.DeliveryPolicy{}, errors.Wrap(err, "parse delivery fee")
	}
	if fee.IsNegative() {
		return order.DeliveryPolicy{}, errors.Errorf("delivery fee %s is negative", fee)
	}
	return order.DeliveryPolicy{FlatFee: fee, FreeFromItems: c.FreeDeliveryFrom}, nil
}

// RateLimitConfig controls the per-client sliding window rate limiters.
type RateLimitConfig struct {
	Max         int           `default:"100" usage:"Max requests per window"`
	CheckoutMax int           `default:"30"  usage:"Max order submissions per window"`
	Window      time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
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
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
		}
	case StoreFirestore:
		if c.Firestore.ProjectID == "" {
			return errors.New("firestore project is required: set SHOP_FIRESTORE_PROJECT_ID")
		}
	case StoreMemory:
	default:
		return errors.Errorf("unknown store %q", c.Store)
	}
	if c.Checkout.MaxAttempts < 1 {
		return errors.Errorf("checkout max attempts must be positive, got %d", c.Checkout.MaxAttempts)
	}
	if c.RateLimit.Max < 1 || c.RateLimit.CheckoutMax < 1 {
		return errors.New("rate limits must be positive")
	}
	if _, err := c.Checkout.DeliveryPolicy(); err != nil {
		return err
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Firestore.ProjectID == "" {
		if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
			c.Firestore.ProjectID = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
