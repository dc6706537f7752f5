package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files. The API
// server and the notification worker share it.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	// SkipMigrations disables applying migrations at startup.
	SkipMigrations bool `default:"false" usage:"Do not run migrations on startup" flag:"skip-migrations"`
	URLs           URLConfig
	Checkout       CheckoutConfig
	MercadoPago    MercadoPagoConfig
	Kafka          KafkaConfig
	Brevo          BrevoConfig
	Worker         WorkerConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// URLConfig holds the public base URLs used in redirects and links.
type URLConfig struct {
	API      string `default:"http://localhost:8080" usage:"Public base URL of the API"`
	Frontend string `default:"http://localhost:3000" usage:"Storefront base URL"`
}

// CheckoutConfig controls order pricing.
type CheckoutConfig struct {
	Currency string `default:"MXN" usage:"ISO currency code sent to the payment gateway"`
	// ShippingCost is a decimal string; zero means free shipping.
	ShippingCost string `default:"0" usage:"Flat shipping cost" flag:"shipping-cost"`
	// FreeShippingOver waives ShippingCost for subtotals at or above it; zero disables the waiver.
	FreeShippingOver string `default:"0" usage:"Subtotal above which shipping is free" flag:"free-shipping-over"`
}

// MercadoPagoConfig configures the payment gateway.
type MercadoPagoConfig struct {
	BaseURL       string        `default:"https://api.mercadopago.com" usage:"MercadoPago API base URL"`
	AccessToken   string        `usage:"MercadoPago access token"`
	Timeout       time.Duration `default:"10s" usage:"Gateway request timeout"`
	WebhookSecret string        `usage:"Webhook signing secret; empty disables signature checks"`
	WebhookPath   string        `default:"/webhooks/mercadopago" usage:"Webhook endpoint path"`
	Sandbox       bool          `default:"false" usage:"Use sandbox checkout URLs"`
}

// KafkaConfig configures the notification task bus. With no brokers tasks
// are only logged.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses"`
	Topic   string   `default:"storefront.notifications" usage:"Notification task topic"`
	GroupID string   `default:"storefront-notify-worker" usage:"Consumer group of the worker"`
}

// BrevoConfig configures transactional email delivery.
type BrevoConfig struct {
	BaseURL   string        `default:"https://api.brevo.com" usage:"Brevo API base URL"`
	APIKey    string        `usage:"Brevo API key"`
	Timeout   time.Duration `default:"10s" usage:"Brevo request timeout"`
	Templates TemplateConfig
}

// TemplateConfig maps notification kinds to Brevo template ids. Zero
// disables a kind.
type TemplateConfig struct {
	OrderPlaced   int64 `default:"0" usage:"Template id for order confirmation"`
	PaymentStatus int64 `default:"0" usage:"Template id for payment status updates"`
	OrderStatus   int64 `default:"0" usage:"Template id for order status updates"`
}

// WorkerConfig controls notification delivery retries.
type WorkerConfig struct {
	MaxAttempts uint `default:"5" usage:"Delivery attempts per notification"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
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

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Checkout.ShippingPolicy(); err != nil {
		return nil, err
	}

	return &cfg, nil
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
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// ShippingPolicy builds the configured shipping price rule.
func (c CheckoutConfig) ShippingPolicy() (order.ShippingPolicy, error) {
	cost, err := parseAmount(c.ShippingCost)
	if err != nil {
		return nil, errors.Wrap(err, "shipping cost")
	}
	if cost.IsZero() {
		return order.FreeShipping, nil
	}
	freeOver, err := parseAmount(c.FreeShippingOver)
	if err != nil {
		return nil, errors.Wrap(err, "free shipping threshold")
	}
	return order.FlatShipping(cost, freeOver), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() {
		return decimal.Decimal{}, errors.Errorf("negative amount %s", s)
	}
	return d, nil
}
