// Package config содержит логику чтения конфигурации сервиса голд-леджер.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса голд-леджер.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	GatewayAddress string        `env:"GATEWAY_ADDRESS"`
	RedisAddress   string        `env:"REDIS_ADDRESS"`
	NatsURL        string        `env:"NATS_URL"`
	AdminIDs       []int64       `env:"ADMIN_IDS" envSeparator:","`
	AuthSecret     string        `env:"AUTH_SECRET"`
	SessionTTL     time.Duration `env:"SESSION_TTL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных
// окружения. Значения окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env удобен для локального запуска; в проде файла нет, и это нормально.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayAddress := cfg.GatewayAddress
	envRedisAddress := cfg.RedisAddress
	envNatsURL := cfg.NatsURL
	envSessionTTL := cfg.SessionTTL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GatewayAddress, "g", "", "bot gateway address for outgoing notifications")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for dialog drafts")
	flag.StringVar(&cfg.NatsURL, "n", "", "NATS URL for ledger events")
	flag.DurationVar(&cfg.SessionTTL, "session-ttl", 10*time.Minute, "dialog draft TTL")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayAddress != "" {
		cfg.GatewayAddress = envGatewayAddress
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envNatsURL != "" {
		cfg.NatsURL = envNatsURL
	}
	if envSessionTTL != 0 {
		cfg.SessionTTL = envSessionTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}

	return cfg, nil
}
