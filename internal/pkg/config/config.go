package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	ServerAddr       string        `env:"SERVER_ADDR" envDefault:":8080"`
	AdminAddr        string        `env:"ADMIN_ADDR" envDefault:":9091"`
	PostgresURL      string        `env:"POSTGRES_URL,required"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	AuditStream      string        `env:"AUDIT_STREAM" envDefault:"conversion_events"`
	GeoDBPath        string        `env:"GEOIP_DB_PATH" envDefault:"storage/geoip/GeoLite2-City.mmdb"`
	GraphAPIURL      string        `env:"GRAPH_API_URL" envDefault:"https://graph.facebook.com/v18.0"`
	DispatchTimeout  time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"5s"`
	TenantConfigPath string        `env:"TENANT_CONFIG_PATH"`
	PixelID          string        `env:"PIXEL_ID"`
	AccessToken      string        `env:"ACCESS_TOKEN"`
	TestCode         string        `env:"TEST_CODE"`
	RateLimitRPS     float64       `env:"RATE_LIMIT_RPS" envDefault:"25"`
	RateLimitBurst   int           `env:"RATE_LIMIT_BURST" envDefault:"50"`
	MaxBodySize      int64         `env:"MAX_BODY_SIZE_BYTES" envDefault:"65536"` // 64KB
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
