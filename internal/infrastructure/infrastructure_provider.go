package infrastructure

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"resty.dev/v3"

	"github.com/ventureforge/pipeline-server/internal/config"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/auth"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/crontab"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/database"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/logger"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/ratelimit"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/repository"
	chatclient "github.com/ventureforge/pipeline-server/internal/utils/httpclients/chat"
)

// ProvideConfig loads and provides the application configuration.
func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

// ProvideLogger builds the service logger from config.
func ProvideLogger(cfg *config.Config) (zerolog.Logger, error) {
	return logger.New(cfg.LogLevel, cfg.LogFormat)
}

// ProvideDatabase opens the database connection and runs migrations when
// AUTO_MIGRATE is enabled.
func ProvideDatabase(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	gormLevel := gormlogger.Warn
	if cfg.LogLevel == "debug" {
		gormLevel = gormlogger.Info
	}
	db, err := database.Connect(database.Config{
		DSN:      cfg.DatabaseURL,
		LogLevel: gormLevel,
	})
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		log.Info().Msg("running database migrations")
		if err := database.AutoMigrate(context.Background(), db); err != nil {
			log.Error().Err(err).Msg("database migration failed")
			return nil, err
		}
		log.Info().Msg("database migrations completed")
	}

	return db, nil
}

// ProvideJWTValidator provides the bearer token validator.
func ProvideJWTValidator(cfg *config.Config, log zerolog.Logger) (*auth.JWTValidator, error) {
	return auth.NewJWTValidator(context.Background(), cfg.JWKSURL, cfg.Issuer, cfg.Audience,
		cfg.RefreshJWKSInterval, cfg.AuthClockSkew, log)
}

// ProvideRateLimiter provides the Redis-backed chat rate limiter.
func ProvideRateLimiter(cfg *config.Config) (*ratelimit.Limiter, error) {
	return ratelimit.NewLimiter(cfg.RedisURL, cfg.RateLimitMax, cfg.RateLimitWindow)
}

// ProvideCompletionClient provides the upstream completion API client.
func ProvideCompletionClient(cfg *config.Config) *chatclient.CompletionClient {
	return chatclient.NewCompletionClient(resty.New(), cfg.CompletionBaseURL, cfg.CompletionAPIKey)
}

// InfrastructureProvider provides all infrastructure dependencies.
var InfrastructureProvider = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideDatabase,

	repository.RepositoryProvider,

	ProvideJWTValidator,
	ProvideRateLimiter,
	ProvideCompletionClient,

	crontab.NewCrontab,
)
