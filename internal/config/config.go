package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port            string
	PostgresURL     string
	JWTSecret       string
	FrontendBaseURL string
	LogLevel        string
	LogPretty       bool

	Stripe StripeConfig
	SMTP   SMTPSettings
	Social SocialLoginConfig

	AdminEmail                string
	CalendlyLink              string
	OneOffRequirementFormLink string
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	GracePeriodDays  int
	PriceFounders    string
	PriceGrowth      string
	PricePitchDeck   string
	PriceForecast    string
	PriceCompleteSet string
}

// Configured reports whether both the API key and the webhook secret are present.
func (s StripeConfig) Configured() bool {
	return strings.TrimSpace(s.SecretKey) != "" && strings.TrimSpace(s.WebhookSecret) != ""
}

// SocialLoginConfig holds the OAuth clients. A provider with no client ID is
// disabled.
type SocialLoginConfig struct {
	GoogleClientID       string
	GoogleClientSecret   string
	GoogleRedirectURL    string
	LinkedInClientID     string
	LinkedInClientSecret string
	LinkedInRedirectURL  string
}

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseSSL   bool
}

// Load reads .env (when present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}

	return &Config{
		Port:            getEnvWithDefault("PORT", "8080"),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		FrontendBaseURL: strings.TrimRight(getEnvWithDefault("FRONTEND_BASE_URL", "http://localhost:3000"), "/"),
		LogLevel:        getEnvWithDefault("LOG_LEVEL", "info"),
		LogPretty:       getEnvBool("LOG_PRETTY", false),
		Stripe: StripeConfig{
			SecretKey:        os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:    os.Getenv("STRIPE_WEBHOOK_SECRET"),
			GracePeriodDays:  getEnvInt("GRACE_PERIOD_DAYS", 7),
			PriceFounders:    os.Getenv("PRICE_ID_FOUNDERS_CHOICE"),
			PriceGrowth:      os.Getenv("PRICE_ID_GROWTH_ENGINE"),
			PricePitchDeck:   os.Getenv("PRICE_ID_PITCH_DECK"),
			PriceForecast:    os.Getenv("PRICE_ID_FORECAST"),
			PriceCompleteSet: os.Getenv("PRICE_ID_COMPLETE"),
		},
		SMTP: SMTPSettings{
			Host:     getEnvWithDefault("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			FromName: getEnvWithDefault("MAIL_FROM_NAME", "FinModel"),
			UseSSL:   getEnvBool("SMTP_USE_SSL", false),
		},
		Social: SocialLoginConfig{
			GoogleClientID:       os.Getenv("GOOGLE_CLIENT_ID"),
			GoogleClientSecret:   os.Getenv("GOOGLE_CLIENT_SECRET"),
			GoogleRedirectURL:    getEnvWithDefault("GOOGLE_REDIRECT_URL", "postmessage"),
			LinkedInClientID:     os.Getenv("LINKEDIN_CLIENT_ID"),
			LinkedInClientSecret: os.Getenv("LINKEDIN_CLIENT_SECRET"),
			LinkedInRedirectURL:  os.Getenv("LINKEDIN_CALLBACK_URL"),
		},
		AdminEmail:                os.Getenv("ADMIN_EMAIL"),
		CalendlyLink:              os.Getenv("CALENDLY_LINK"),
		OneOffRequirementFormLink: os.Getenv("ONEOFF_REQUIREMENT_FORM_LINK"),
	}
}

func getEnvWithDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment, using default")
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
