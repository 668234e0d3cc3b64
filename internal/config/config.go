package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable with STORE.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"web/dist"`

	Store    string `env:"STORE" envDefault:"memory"`
	DBPath   string `env:"DB_PATH" envDefault:"data/artificial.db"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// RoomTTL of zero keeps rooms until the host removes them.
	RoomTTL         time.Duration `env:"ROOM_TTL" envDefault:"0s"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"5m"`

	Generation Generation `envPrefix:"GENERATION_"`
}

type Generation struct {
	APIKey     string        `env:"API_KEY"`
	BaseURL    string        `env:"BASE_URL"`
	TextModel  string        `env:"TEXT_MODEL"`
	ImageModel string        `env:"IMAGE_MODEL"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"60s"`
	Retries    int           `env:"RETRIES" envDefault:"2"`

	// Rate is requests per second per session; zero or less disables the
	// limit.
	Rate  float64 `env:"RATE" envDefault:"0.5"`
	Burst int     `env:"BURST" envDefault:"5"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("STORE must be one of memory, sqlite, redis: got %q", c.Store)
	}
	if c.RoomTTL < 0 {
		return fmt.Errorf("ROOM_TTL must not be negative: got %s", c.RoomTTL)
	}
	if c.RoomTTL > 0 && c.JanitorInterval <= 0 {
		return fmt.Errorf("JANITOR_INTERVAL must be positive when ROOM_TTL is set")
	}
	if c.Generation.Retries < 0 {
		return fmt.Errorf("GENERATION_RETRIES must not be negative: got %d", c.Generation.Retries)
	}
	return nil
}
