// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/database"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerRemote   = "remote"
)

// Config holds all runtime configuration.
type Config struct {
	Env      string
	Port     string
	LogLevel slog.Level

	JWTSecret string
	TokenTTL  time.Duration

	LedgerBackend string
	Database      database.Config

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RemoteLedgerURL   string
	RemoteLedgerToken string
	PollInterval      time.Duration
	PollAttempts      int
	ReconcileInterval time.Duration

	AMQPURL string
}

// Load reads configuration from the environment. Values in a .env file in
// the working directory are applied first without overriding variables
// that are already set.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the current environment only.
func FromEnv() Config {
	return Config{
		Env:      getEnv("APP_ENV", "dev"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),

		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getEnvAsDuration("TOKEN_TTL", time.Hour),

		LedgerBackend: strings.ToLower(getEnv("LEDGER_BACKEND", LedgerMemory)),
		Database: database.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "venues"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		RemoteLedgerURL:   getEnv("REMOTE_LEDGER_URL", ""),
		RemoteLedgerToken: getEnv("REMOTE_LEDGER_TOKEN", ""),
		PollInterval:      getEnvAsDuration("LEDGER_POLL_INTERVAL", time.Second),
		PollAttempts:      getEnvAsInt("LEDGER_POLL_ATTEMPTS", 10),
		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", 30*time.Second),

		AMQPURL: getEnv("AMQP_URL", ""),
	}
}

// devSecret signs tokens in dev when JWT_SECRET is unset.
const devSecret = "dev-only-secret"

// Validate checks the configuration for conflicts and fills dev defaults.
func (c *Config) Validate() error {
	var errs []error
	switch c.LedgerBackend {
	case LedgerMemory, LedgerPostgres, LedgerRedis:
	case LedgerRemote:
		if c.RemoteLedgerURL == "" {
			errs = append(errs, errors.New("REMOTE_LEDGER_URL is required for the remote ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", c.LedgerBackend))
	}
	if c.JWTSecret == "" {
		if c.Env == "dev" {
			c.JWTSecret = devSecret
		} else {
			errs = append(errs, errors.New("JWT_SECRET is required outside dev"))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("LEDGER_POLL_INTERVAL must be positive"))
	}
	if c.PollAttempts <= 0 {
		errs = append(errs, errors.New("LEDGER_POLL_ATTEMPTS must be positive"))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return fallback
}

func getEnvAsLevel(key string, fallback slog.Level) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(getEnv(key, ""))); err == nil {
		return lvl
	}
	return fallback
}
