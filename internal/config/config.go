package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBolt     = "bolt"

	// Stripe test-mode placeholder shown next to every line item.
	defaultProductImage = "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcT5ChU88yxV3Vp202gD8Trmlznpt6t8ot5zzw&usqp=CAU"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string

	// InternalServiceKey is the X-Service-Auth value of trusted callers.
	InternalServiceKey string

	StripeSecretKey        string
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration

	PaymentSuccessURL   string
	PaymentCancelURL    string
	PaymentCurrency     string
	PaymentProductImage string

	CheckoutStore         string
	CheckoutBoltPath      string
	CheckoutTTL           time.Duration
	CheckoutClaimLease    time.Duration
	CheckoutSweepInterval time.Duration
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    envOr("APP_PORT", "8080"),
		AppEnv:     os.Getenv("APP_ENV"),
		JWTSecret:  os.Getenv("JWT_SECRET"),

		InternalServiceKey: os.Getenv("INTERNAL_SERVICE_KEY"),

		StripeSecretKey:        os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:    os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeWebhookTolerance: durationOr("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),

		PaymentSuccessURL:   os.Getenv("PAYMENT_SUCCESS_URL"),
		PaymentCancelURL:    os.Getenv("PAYMENT_CANCEL_URL"),
		PaymentCurrency:     envOr("PAYMENT_CURRENCY", "vnd"),
		PaymentProductImage: envOr("PAYMENT_PRODUCT_IMAGE", defaultProductImage),

		CheckoutStore:         envOr("CHECKOUT_STORE", StoreDriverPostgres),
		CheckoutBoltPath:      envOr("CHECKOUT_BOLT_PATH", "checkout.db"),
		CheckoutTTL:           durationOr("CHECKOUT_TTL", 24*time.Hour),
		CheckoutClaimLease:    durationOr("CHECKOUT_CLAIM_LEASE", 2*time.Minute),
		CheckoutSweepInterval: durationOr("CHECKOUT_SWEEP_INTERVAL", 10*time.Minute),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	if cfg.CheckoutStore != StoreDriverPostgres && cfg.CheckoutStore != StoreDriverBolt {
		log.Fatalf("unknown CHECKOUT_STORE %q (use %q or %q)", cfg.CheckoutStore, StoreDriverPostgres, StoreDriverBolt)
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// durationOr parses a Go duration ("90s", "24h"); invalid values fall back.
func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
