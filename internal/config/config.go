// Package config loads the process-wide server configuration once at
// startup. The resulting Config is treated as immutable and injected into
// the services that need it; request-handling code never reads the
// environment directly.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains server configuration parameters.
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"books.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	// SeedUsersEnabled exposes POST /api/seed-user. Development only.
	SeedUsersEnabled bool `env:"SEED_USERS_ENABLED" envDefault:"false"`

	Auth      Auth
	OAuth     OAuth     `envPrefix:"GOOGLE_"`
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`
	Redis     Redis     `envPrefix:"REDIS_"`
}

// Auth contains session and password hashing parameters.
type Auth struct {
	JWTSecret    string        `env:"JWT_SECRET,required,unset"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	BcryptCost   int           `env:"BCRYPT_COST" envDefault:"12"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"true"`

	PasswordMinLength int `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
}

// OAuth contains the Google sign-in client registration.
type OAuth struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET,unset"`
	RedirectURL  string `env:"REDIRECT_URL" envDefault:"http://localhost:8080/auth/google/callback"`
}

// Enabled reports whether both halves of the client registration are set.
func (o OAuth) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// RateLimit bounds login and registration attempts per client address.
type RateLimit struct {
	AuthPerMinute int `env:"AUTH_PER_MINUTE" envDefault:"10"`
	AuthBurst     int `env:"AUTH_BURST" envDefault:"5"`
}

// Redis is optional; when Addr is set the auth rate limit is shared across
// instances through Redis instead of kept in process memory.
type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD,unset"`
	Prefix   string `env:"PREFIX" envDefault:"books:ratelimit"`
}

// Load reads an optional .env file and parses the environment into a
// validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters for HMAC-SHA256 security")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 14 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 14, got %d", c.Auth.BcryptCost)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.Auth.SessionTTL)
	}
	if c.Auth.PasswordMinLength < 1 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least 1, got %d", c.Auth.PasswordMinLength)
	}
	if c.RateLimit.AuthPerMinute <= 0 || c.RateLimit.AuthBurst <= 0 {
		return errors.New("RATE_LIMIT_AUTH_PER_MINUTE and RATE_LIMIT_AUTH_BURST must be positive")
	}
	if (c.OAuth.ClientID == "") != (c.OAuth.ClientSecret == "") {
		return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
