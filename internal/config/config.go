package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Global singleton for packages that cannot take injected config.
var globalConfig *Config

// Config holds all environment backed configuration for pipeline-api.
type Config struct {
	// HTTP Server
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9091"`
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Auth
	JWKSURL             string        `env:"JWKS_URL,notEmpty"`
	Issuer              string        `env:"ISSUER,notEmpty"`
	Audience            string        `env:"AUDIENCE,notEmpty"`
	RefreshJWKSInterval time.Duration `env:"JWKS_REFRESH_INTERVAL" envDefault:"5m"`
	AuthClockSkew       time.Duration `env:"AUTH_CLOCK_SKEW" envDefault:"30s"`

	// Upstream completion API
	CompletionBaseURL string        `env:"COMPLETION_BASE_URL,notEmpty"`
	CompletionAPIKey  string        `env:"COMPLETION_API_KEY"`
	CompletionModel   string        `env:"COMPLETION_MODEL" envDefault:"gpt-4o-mini"`
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"120s"`

	// Chat gateway limits
	RateLimitMax       int           `env:"RATE_LIMIT_MAX" envDefault:"30"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	MaxMessages        int           `env:"MAX_MESSAGES" envDefault:"100"`
	MaxMessageChars    int           `env:"MAX_MESSAGE_CHARS" envDefault:"50000"`
	InitialCredits     int64         `env:"INITIAL_CREDITS" envDefault:"50"`
	CacheTTL           time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	CacheReplayChunk   int           `env:"CACHE_REPLAY_CHUNK" envDefault:"48"`
	CacheReplayDelay   time.Duration `env:"CACHE_REPLAY_DELAY" envDefault:"10ms"`
	StreamIdleTimeout  time.Duration `env:"STREAM_IDLE_TIMEOUT" envDefault:"30s"`
	MessageRetention   time.Duration `env:"MESSAGE_RETENTION" envDefault:"2160h"`
	CleanupCronMinutes int           `env:"CLEANUP_CRON_MINUTES" envDefault:"60"`

	// Observability / Logging
	ServiceName string `env:"SERVICE_NAME" envDefault:"pipeline-api"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`

	// Features
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"true"`

	// Internal
	EnvReloadedAt time.Time
}

// Load parses environment variables into Config and performs minimal validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if _, err := url.ParseRequestURI(cfg.JWKSURL); err != nil {
		return nil, fmt.Errorf("invalid JWKS_URL: %w", err)
	}

	if _, err := url.ParseRequestURI(cfg.CompletionBaseURL); err != nil {
		return nil, fmt.Errorf("invalid COMPLETION_BASE_URL: %w", err)
	}

	if cfg.RateLimitMax <= 0 {
		return nil, errors.New("RATE_LIMIT_MAX must be positive")
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.EnvReloadedAt = time.Now()

	globalConfig = cfg

	return cfg, nil
}

// GetGlobal returns the global config instance for backwards compatibility.
// Deprecated: Use dependency injection with Load() instead.
func GetGlobal() *Config {
	return globalConfig
}

var Version = "dev"

func IsDev() bool {
	return strings.HasPrefix(Version, "dev")
}
