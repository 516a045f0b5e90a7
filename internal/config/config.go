// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present; real environment
// variables win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"LEDGER_HTTP_ADDR" envDefault:":8080"`

	Store       string `env:"LEDGER_STORE" envDefault:"memory"`
	DatabaseURL string `env:"LEDGER_DATABASE_URL"`
	SQLitePath  string `env:"LEDGER_SQLITE_PATH" envDefault:"ledger.db"`

	// Timezone is the IANA zone the weekly purchase window resets in.
	Timezone string `env:"LEDGER_TIMEZONE" envDefault:"UTC"`

	KafkaBrokers []string `env:"LEDGER_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"LEDGER_KAFKA_TOPIC" envDefault:"ledger.transaction_recorded"`

	AdminToken string `env:"LEDGER_ADMIN_TOKEN"`
	CronSecret string `env:"LEDGER_CRON_SECRET"`

	LogLevel          string `env:"LEDGER_LOG_LEVEL" envDefault:"info"`
	PayoutConcurrency int    `env:"LEDGER_PAYOUT_CONCURRENCY" envDefault:"4"`
	OTelEndpoint      string `env:"LEDGER_OTEL_ENDPOINT"`

	ShutdownTimeout time.Duration `env:"LEDGER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads only the process environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("LEDGER_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown LEDGER_STORE %q", c.Store)
	}
	if c.PayoutConcurrency <= 0 {
		return fmt.Errorf("LEDGER_PAYOUT_CONCURRENCY must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("LEDGER_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the configured zone. Validate has already checked it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
