package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ServerAddress    string        `env:"SERVER_ADDRESS"`
	BaseURL          string        `env:"BASE_URL"`
	DatabaseDSN      string        `env:"DATABASE_DSN"`
	AdminToken       string        `env:"ADMIN_TOKEN"`
	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIURL   string        `env:"TELEGRAM_API_URL"`
	NotifyTick       time.Duration `env:"NOTIFY_TICK"`
	ChannelTimeout   time.Duration `env:"CHANNEL_TIMEOUT"`
}

func ParseFlags() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	envServerAddress := cfg.ServerAddress
	envBaseURL := cfg.BaseURL
	envDatabaseDSN := cfg.DatabaseDSN

	flag.StringVar(&cfg.ServerAddress, "a", "localhost:8080", "Address of the server")
	flag.StringVar(&cfg.BaseURL, "b", "http://localhost:8080", "Base URL for short links")
	flag.StringVar(&cfg.DatabaseDSN, "d", "", "PostgreSQL DSN (in-memory storage when empty)")

	flag.Parse()

	if envServerAddress != "" {
		cfg.ServerAddress = envServerAddress
	}
	if envBaseURL != "" {
		cfg.BaseURL = envBaseURL
	}
	if envDatabaseDSN != "" {
		cfg.DatabaseDSN = envDatabaseDSN
	}

	cfg.applyDefaultValues()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if c.NotifyTick < time.Second {
		return fmt.Errorf("notify tick must be at least one second")
	}
	if c.ChannelTimeout <= 0 {
		return fmt.Errorf("channel timeout must be positive")
	}
	return nil
}

func (c *Config) applyDefaultValues() {
	if c.ServerAddress == "" {
		c.ServerAddress = "localhost:8080"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.NotifyTick == 0 {
		c.NotifyTick = time.Minute
	}
	if c.ChannelTimeout == 0 {
		c.ChannelTimeout = 10 * time.Second
	}
}
