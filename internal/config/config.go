package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds application configuration
type Config struct {
	ServerPort string `env:"PORT, default=8080"`
	Debug      bool   `env:"DEBUG, default=false"`

	// Database
	DatabaseType string `env:"DB_TYPE, default=sqlite"`
	DatabasePath string `env:"DB_PATH, default=./guildmembers.db"`
	DatabaseURL  string `env:"DATABASE_URL"`

	// SiteID is the site new members are assigned to when the caller does not name one
	SiteID int64 `env:"SITE_ID, default=1"`

	// Staff authentication
	JWTSecret string        `env:"JWT_SECRET, default=change-me-in-production"`
	TokenTTL  time.Duration `env:"TOKEN_TTL, default=12h"`

	// Email (Amazon SES). An empty sender disables delivery.
	SESRegion    string   `env:"SES_REGION, default=ap-southeast-2"`
	SESFromEmail string   `env:"SES_FROM_EMAIL"`
	SESFromName  string   `env:"SES_FROM_NAME, default=The Guild"`
	StaffEmails  []string `env:"STAFF_EMAILS"`

	// Choices
	MemberTypes    []string `env:"MEMBER_TYPES, default=special,standard,concession,junior"`
	PaymentMethods []string `env:"PAYMENT_METHODS, default=cash,card,bank_transfer,online"`

	// Public signup throttling, per client address
	SignupRatePerMinute int `env:"SIGNUP_RATE_PER_MINUTE, default=5"`
	SignupBurst         int `env:"SIGNUP_BURST, default=3"`

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that sets those headers itself.
	TrustProxy bool `env:"TRUST_PROXY, default=false"`

	// Tracing
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"SERVICE_NAME, default=guildmembers"`
}

// Load reads configuration from the environment, after loading an optional .env file
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if len(cfg.MemberTypes) == 0 {
		return nil, errors.New("MEMBER_TYPES must not be empty")
	}
	if len(cfg.PaymentMethods) == 0 {
		return nil, errors.New("PAYMENT_METHODS must not be empty")
	}

	return &cfg, nil
}

// DefaultPaymentMethod is the first configured payment method
func (c *Config) DefaultPaymentMethod() string {
	return c.PaymentMethods[0]
}
