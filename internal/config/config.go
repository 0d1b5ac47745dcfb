package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all process configuration. Three values are required to talk
// to the platform at all; the rest have deployment defaults.
type Config struct {
	Token    string `env:"TOKEN,required"`
	ClientID string `env:"CLIENT_ID,required"`
	GuildID  string `env:"GUILD_ID,required"`

	// Ordered list of category IDs eligible for channel placement. Earlier
	// categories fill before later ones.
	CategoryIDs []string `env:"CATEGORY_IDS,required" envSeparator:","`

	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Addr      string `env:"ADDR" envDefault:":8080"`

	CategoryCapacity int           `env:"CATEGORY_CAPACITY" envDefault:"50"`
	IdleThreshold    time.Duration `env:"IDLE_THRESHOLD" envDefault:"2160h"`
	DeleteGrace      time.Duration `env:"DELETE_GRACE" envDefault:"4s"`
	PendingTTL       time.Duration `env:"PENDING_TTL" envDefault:"168h"`
	CallTimeout      time.Duration `env:"CALL_TIMEOUT" envDefault:"10s"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if len(cfg.CategoryIDs) == 0 {
		return nil, fmt.Errorf("CATEGORY_IDS must list at least one category")
	}
	return cfg, nil
}
