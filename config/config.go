package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string

	DatabaseURL string

	RedisURL string

	StripeSecretKey     string
	StripeWebhookSecret string
	CornerAccountID     string
	Currency            string

	AppURL           string
	CatalogURL       string
	CornerCatalogURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	EmailFrom    string

	StoreCacheTTL  time.Duration
	ReservationTTL time.Duration

	OTelServiceName string
	OTelEndpoint    string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		CornerAccountID:     getEnv("CORNER_STRIPE_ACCOUNT_ID", ""),
		Currency:            getEnv("CHECKOUT_CURRENCY", "eur"),
		AppURL:              getEnv("APP_URL", "http://localhost:3000"),
		CatalogURL:          getEnv("CATALOG_API_URL", ""),
		CornerCatalogURL:    getEnv("CORNER_CATALOG_API_URL", ""),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPUser:            getEnv("SMTP_USER", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		EmailFrom:           getEnv("EMAIL_FROM", "Reboul Store <contact@reboul.com>"),
		OTelServiceName:     getEnv("OTEL_SERVICE_NAME", "reboul-checkout-api"),
		OTelEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
	}

	port, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.SMTPPort = port

	ttl, err := time.ParseDuration(getEnv("STORE_CACHE_TTL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_CACHE_TTL: %w", err)
	}
	cfg.StoreCacheTTL = ttl

	rttl, err := time.ParseDuration(getEnv("RESERVATION_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESERVATION_TTL: %w", err)
	}
	cfg.ReservationTTL = rttl

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.CornerAccountID == "" {
		return fmt.Errorf("CORNER_STRIPE_ACCOUNT_ID is required")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
