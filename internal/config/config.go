// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	GRPCPort string `env:"GRPC_PORT"`
	DBPath   string `env:"DB_PATH" envDefault:"./data/attestation.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AllowDuplicateOrders bool     `env:"ALLOW_DUPLICATE_ORDERS" envDefault:"true"`
	AdminToken           string   `env:"ADMIN_TOKEN"`
	AllowedOrigins       []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	Hub          string `env:"HUB" envDefault:"obyte.org/bb"`
	Testnet      bool   `env:"TESTNET"`
	DevicePubKey string `env:"DEVICE_PUBKEY"`

	// AttestorKey is the hex secp256k1 key signing local attestations.
	AttestorKey   string        `env:"ATTESTOR_KEY"`
	LedgerURL     string        `env:"LEDGER_URL"`
	LedgerTimeout time.Duration `env:"LEDGER_TIMEOUT" envDefault:"30s"`

	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"0s"`
	DBMaxRetries     int           `env:"DB_MAX_RETRIES" envDefault:"3"`
	DBRetryBaseDelay time.Duration `env:"DB_RETRY_BASE_DELAY" envDefault:"50ms"`

	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"5s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LedgerURL == "" && c.AttestorKey == "" {
		return errors.New("either LEDGER_URL or ATTESTOR_KEY must be set")
	}
	if c.LedgerTimeout <= 0 {
		return errors.New("LEDGER_TIMEOUT must be > 0")
	}
	if c.SessionTTL < 0 {
		return errors.New("SESSION_TTL cannot be negative")
	}
	if c.DBMaxRetries <= 0 {
		return errors.New("DB_MAX_RETRIES must be > 0")
	}
	if c.DBRetryBaseDelay <= 0 {
		return errors.New("DB_RETRY_BASE_DELAY must be > 0")
	}
	return nil
}

// UseLocalLedger reports whether attestations are signed locally instead of
// posted to a remote node.
func (c *Config) UseLocalLedger() bool {
	return c.LedgerURL == ""
}

// ParseLevel maps LOG_LEVEL to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown LOG_LEVEL %q", level)
	}
}
