package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds process configuration read from the environment.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DBDriver    string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBUser      string `env:"DB_USER"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBHost      string `env:"DB_HOST" envDefault:"localhost"`
	DBPort      string `env:"DB_PORT" envDefault:"5432"`
	DBName      string `env:"DB_NAME"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"circle.db"`

	AdminIDs  []int64       `env:"ADMIN_IDS" envSeparator:","`
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"720h"`

	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	NotifyMode     string        `env:"NOTIFY_MODE" envDefault:"direct"`
	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"memory"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"LOG_DEV"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	ChannelURL   string `env:"CHANNEL_URL"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks option values that env tags cannot express.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.NotifyMode {
	case "direct", "queue":
	default:
		return fmt.Errorf("unsupported NOTIFY_MODE %q", c.NotifyMode)
	}
	switch c.SessionBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported SESSION_BACKEND %q", c.SessionBackend)
	}
	return nil
}

// PostgresDSN returns DATABASE_URL or builds one from the DB_* parts.
func (c Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}
