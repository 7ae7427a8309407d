package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("GRACE_PERIOD_DAYS", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("FRONTEND_BASE_URL", "https://app.example.com/")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 7, cfg.Stripe.GracePeriodDays)
	assert.Equal(t, "https://app.example.com", cfg.FrontendBaseURL)
	assert.False(t, cfg.Stripe.Configured())
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("GRACE_PERIOD_DAYS", "soon")
	t.Setenv("SMTP_PORT", "465")

	cfg := Load()

	assert.Equal(t, 7, cfg.Stripe.GracePeriodDays)
	assert.Equal(t, 465, cfg.SMTP.Port)
}

func TestStripeConfigured(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")

	assert.True(t, Load().Stripe.Configured())
}
