// Package config loads server configuration from the environment with sane
// defaults for everything except the secrets, which are required.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// RateLimitConfig defines the per-user sliding window for message sends.
type RateLimitConfig struct {
	MaxMessages int
	Window      time.Duration
}

// AuthLimitConfig defines the per-IP window for login/register attempts.
type AuthLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// Config holds everything the server needs at boot.
type Config struct {
	Addr      string
	DBDSN     string
	JWTSecret string
	RedisAddr string

	MaxContentLength int
	RateLimit        RateLimitConfig
	AuthLimit        AuthLimitConfig

	ReconcileInterval time.Duration
	OfflineThreshold  time.Duration
	MetricsInterval   time.Duration
	TypingExpiry      time.Duration

	LogJSON bool
}

func defaults() Config {
	return Config{
		Addr:             ":8080",
		RedisAddr:        "localhost:6379",
		MaxContentLength: 2000,
		RateLimit: RateLimitConfig{
			MaxMessages: 30,
			Window:      60 * time.Second,
		},
		AuthLimit: AuthLimitConfig{
			MaxAttempts: 10,
			Window:      time.Minute,
		},
		ReconcileInterval: 60 * time.Second,
		OfflineThreshold:  5 * time.Minute,
		MetricsInterval:   5 * time.Minute,
		TypingExpiry:      10 * time.Second,
	}
}

// Load reads .env (if present) and the process environment. It fails when
// DB_DSN or JWT_SECRET is missing; everything else falls back to defaults.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be set by the platform.
	_ = godotenv.Load()

	cfg := defaults()

	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	cfg.DBDSN = os.Getenv("DB_DSN")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}

	cfg.MaxContentLength = intEnv("MAX_CONTENT_LENGTH", cfg.MaxContentLength)
	cfg.RateLimit.MaxMessages = intEnv("RATE_LIMIT_MAX_MESSAGES", cfg.RateLimit.MaxMessages)
	cfg.RateLimit.Window = secondsEnv("RATE_LIMIT_WINDOW_SECONDS", cfg.RateLimit.Window)
	cfg.AuthLimit.MaxAttempts = intEnv("AUTH_LIMIT_MAX_ATTEMPTS", cfg.AuthLimit.MaxAttempts)
	cfg.AuthLimit.Window = secondsEnv("AUTH_LIMIT_WINDOW_SECONDS", cfg.AuthLimit.Window)
	cfg.ReconcileInterval = secondsEnv("RECONCILE_INTERVAL_SECONDS", cfg.ReconcileInterval)
	cfg.OfflineThreshold = secondsEnv("OFFLINE_THRESHOLD_SECONDS", cfg.OfflineThreshold)
	cfg.MetricsInterval = secondsEnv("METRICS_INTERVAL_SECONDS", cfg.MetricsInterval)
	cfg.TypingExpiry = secondsEnv("TYPING_EXPIRY_SECONDS", cfg.TypingExpiry)
	cfg.LogJSON = os.Getenv("LOG_FORMAT") == "json"

	return &cfg, nil
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func secondsEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return fallback
}
