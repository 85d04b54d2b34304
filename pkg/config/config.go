// Package config loads the provider configuration from the environment.
package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/ezlogin/pkg/ratelimit"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the full provider configuration
type Config struct {
	BaseURL  string `env:"BASE_URL" env-default:"https://ezlog.in/api"`
	Issuer   string `env:"ISSUER" env-default:"https://ezlog.in"`
	LoginURL string `env:"LOGIN_URL" env-default:"https://ezlog.in/login"`
	DevMode  bool   `env:"DEV_MODE" env-default:"false"`

	SessionCookieName   string `env:"SESSION_COOKIE_NAME" env-default:"session"`
	SessionCookieDomain string `env:"SESSION_COOKIE_DOMAIN" env-default:""`

	SessionTTL     time.Duration `env:"SESSION_TTL" env-default:"10m"`
	CodeTTL        time.Duration `env:"CODE_TTL" env-default:"5m"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"20m"`
	UserCacheTTL   time.Duration `env:"USER_CACHE_TTL" env-default:"30s"`
	BcryptCost     int           `env:"BCRYPT_COST" env-default:"10"`

	JWTKeyFile string `env:"JWT_KEY_FILE" env-default:"jwt-private.pem"`

	AuthorizationStore string `env:"AUTHORIZATION_STORE" env-default:"memory"`
	UserStore          string `env:"USER_STORE" env-default:"memory"`
	ClientStore        string `env:"CLIENT_STORE" env-default:"memory"`

	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit ratelimit.Config
	AppConfig app.AppConfig
}

// Load reads an optional .env file, then the environment, and validates the result
func Load(envFiles ...string) (*Config, error) {
	if err := LoadEnvFile(envFiles...); err != nil {
		return nil, err
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads the first .env file that exists among files, or .env
// next to the executable or in the working directory when none are given.
// A missing file is not an error. Variables already set are not overridden.
func LoadEnvFile(files ...string) error {
	if len(files) == 0 {
		if execPath, err := os.Executable(); err == nil {
			files = append(files, filepath.Join(filepath.Dir(execPath), ".env"))
		}
		files = append(files, ".env")
	}

	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		slog.Info("Loading configuration from .env file", "path", file)
		return godotenv.Load(file)
	}
	slog.Debug("No .env file found (using environment variables or defaults)")
	return nil
}

// Validate checks values cleanenv cannot
func (c *Config) Validate() error {
	errs := CollectErrors(
		RequireAbsoluteURL("BASE_URL", c.BaseURL),
		RequireAbsoluteURL("ISSUER", c.Issuer),
		RequireAbsoluteURL("LOGIN_URL", c.LoginURL),
		RequireNonEmpty("SESSION_COOKIE_NAME", c.SessionCookieName),
		RequireNonEmpty("JWT_KEY_FILE", c.JWTKeyFile),
		RequirePositiveDuration("SESSION_TTL", c.SessionTTL),
		RequirePositiveDuration("CODE_TTL", c.CodeTTL),
		RequirePositiveDuration("ACCESS_TOKEN_TTL", c.AccessTokenTTL),
		RequireInRange("BCRYPT_COST", c.BcryptCost, 4, 31),
		WhenSet(c.RateLimit.Enabled, RequireInRange("RATE_LIMIT_BURST", c.RateLimit.Burst, 1, 1_000_000)),
		RequireOneOf("AUTHORIZATION_STORE", c.AuthorizationStore, []string{StoreMemory, StorePostgres, StoreRedis}),
		RequireOneOf("USER_STORE", c.UserStore, []string{StoreMemory, StorePostgres}),
		RequireOneOf("CLIENT_STORE", c.ClientStore, []string{StoreMemory, StorePostgres}),
	)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// NeedsDatabase reports whether any store is backed by PostgreSQL
func (c *Config) NeedsDatabase() bool {
	return c.AuthorizationStore == StorePostgres || c.UserStore == StorePostgres || c.ClientStore == StorePostgres
}
