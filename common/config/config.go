package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Raffle    RaffleConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name           string
	Port           int           `env:"PORT" envDefault:"8080"`
	Environment    string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"text"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host             string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port             int           `env:"POSTGRES_PORT" envDefault:"5432"`
	Database         string        `env:"POSTGRES_DB" envDefault:"raffle"`
	User             string        `env:"POSTGRES_USER" envDefault:"raffle"`
	Password         string        `env:"POSTGRES_PASSWORD" envDefault:"raffle"`
	MaxConns         int           `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	MinConns         int           `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	MaxIdleTime      time.Duration `env:"POSTGRES_MAX_IDLE_TIME" envDefault:"30m"`
	MaxLifetime      time.Duration `env:"POSTGRES_MAX_LIFETIME" envDefault:"1h"`
	StatementTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
}

// RedisConfig holds Redis settings. Only used when the rate limiter runs on Redis.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// RateLimitConfig selects the limiter backend and its maintenance schedule
type RateLimitConfig struct {
	Backend       string        `env:"RATE_LIMIT_BACKEND" envDefault:"postgres"` // postgres, redis or memory
	Retention     time.Duration `env:"RATE_LIMIT_RETENTION" envDefault:"24h"`
	PruneInterval time.Duration `env:"RATE_LIMIT_PRUNE_INTERVAL" envDefault:"15m"`
	GlobalRPS     float64       `env:"GLOBAL_RPS" envDefault:"50"`
	GlobalBurst   int           `env:"GLOBAL_BURST" envDefault:"100"`
}

// RaffleConfig holds raffle secrets and admission bounds
type RaffleConfig struct {
	DrawSecret string `env:"DRAW_SECRET"`
	AdminToken string `env:"ADMIN_TOKEN"`
	BatchMax   int    `env:"BATCH_MAX" envDefault:"10"`

	// HistoryCacheTTL bounds how long an archived draw is served from cache (0 disables)
	HistoryCacheTTL time.Duration `env:"HISTORY_CACHE_TTL" envDefault:"10m"`
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load(serviceName string) (*Config, error) {
	// Missing .env is the normal case outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Service.Name = serviceName

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return errors.New("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return errors.New("max_conns must be >= min_conns")
	}

	switch c.RateLimit.Backend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("unknown rate limit backend: %s", c.RateLimit.Backend)
	}

	if c.Raffle.BatchMax < 1 || c.Raffle.BatchMax > 10 {
		return fmt.Errorf("batch max must be between 1 and 10, got %d", c.Raffle.BatchMax)
	}

	if c.IsProduction() && (c.Raffle.DrawSecret == "" || c.Raffle.AdminToken == "") {
		return errors.New("DRAW_SECRET and ADMIN_TOKEN are required in production")
	}

	return nil
}

// IsProduction reports whether internal error detail must be hidden from clients
func (c *Config) IsProduction() bool {
	return c.Service.Environment == "production"
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
