package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("DB_USER", "testuser")
		t.Setenv("DB_PASSWORD", "testpass")
		t.Setenv("DB_NAME", "testdb")
		t.Setenv("DB_PORT", "5432")
		t.Setenv("APP_PORT", "9090")
		t.Setenv("APP_ENV", "test")
		t.Setenv("JWT_SECRET", "jwt-secret")
		t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
		t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
		t.Setenv("STRIPE_WEBHOOK_TOLERANCE", "90s")
		t.Setenv("PAYMENT_SUCCESS_URL", "https://shop.test/success")
		t.Setenv("PAYMENT_CANCEL_URL", "https://shop.test/cancel")
		t.Setenv("PAYMENT_CURRENCY", "usd")
		t.Setenv("CHECKOUT_STORE", "bolt")
		t.Setenv("CHECKOUT_BOLT_PATH", "/tmp/checkout.db")
		t.Setenv("CHECKOUT_TTL", "1h")

		cfg := LoadConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5432", cfg.DBPort)
		assert.Equal(t, "9090", cfg.AppPort)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, "jwt-secret", cfg.JWTSecret)
		assert.Equal(t, "sk_test_123", cfg.StripeSecretKey)
		assert.Equal(t, "whsec_123", cfg.StripeWebhookSecret)
		assert.Equal(t, 90*time.Second, cfg.StripeWebhookTolerance)
		assert.Equal(t, "https://shop.test/success", cfg.PaymentSuccessURL)
		assert.Equal(t, "https://shop.test/cancel", cfg.PaymentCancelURL)
		assert.Equal(t, "usd", cfg.PaymentCurrency)
		assert.Equal(t, StoreDriverBolt, cfg.CheckoutStore)
		assert.Equal(t, "/tmp/checkout.db", cfg.CheckoutBoltPath)
		assert.Equal(t, time.Hour, cfg.CheckoutTTL)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("APP_PORT", "")
		t.Setenv("PAYMENT_CURRENCY", "")
		t.Setenv("CHECKOUT_STORE", "")
		t.Setenv("CHECKOUT_TTL", "not-a-duration")
		t.Setenv("CHECKOUT_CLAIM_LEASE", "")
		t.Setenv("STRIPE_WEBHOOK_TOLERANCE", "")

		cfg := LoadConfig()

		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, "vnd", cfg.PaymentCurrency)
		assert.Equal(t, StoreDriverPostgres, cfg.CheckoutStore)
		assert.Equal(t, 24*time.Hour, cfg.CheckoutTTL)
		assert.Equal(t, 2*time.Minute, cfg.CheckoutClaimLease)
		assert.Equal(t, 5*time.Minute, cfg.StripeWebhookTolerance)
		assert.NotEmpty(t, cfg.PaymentProductImage)
	})
}
