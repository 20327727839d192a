// Package cacherepo persists completion cache entries.
package cacherepo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ventureforge/pipeline-server/internal/domain/cache"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/database/entities"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/logger"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Repository handles cache entry persistence.
type Repository struct {
	db *gorm.DB
}

var _ cache.Store = (*Repository)(nil)

func NewRepository(db *gorm.DB) cache.Store {
	return &Repository{db: db}
}

// Get returns the unexpired entry for hash, or nil. The hit counter is
// bumped in the background so a slow or failed increment never delays the
// response.
func (r *Repository) Get(ctx context.Context, hash string) (*cache.Entry, error) {
	var entity entities.CacheEntry
	err := r.db.WithContext(ctx).
		Where("prompt_hash = ? AND expires_at > ?", hash, time.Now().UTC()).
		First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to look up cache entry",
			err,
			"4d6f8a0c-2e4f-4d6a-8c0e-2f4a6c8e0a2c",
		)
	}

	go func(hash string) {
		bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.db.WithContext(bg).
			Model(&entities.CacheEntry{}).
			Where("prompt_hash = ?", hash).
			UpdateColumn("hit_count", gorm.Expr("hit_count + 1")).Error; err != nil {
			log := logger.GetLogger()
			log.Warn().Err(err).Str("prompt_hash", hash).Msg("failed to record cache hit")
		}
	}(hash)

	return &cache.Entry{
		PromptHash: entity.PromptHash,
		Response:   entity.Response,
		Model:      entity.Model,
		ExpiresAt:  entity.ExpiresAt,
		HitCount:   entity.HitCount,
		CreatedAt:  entity.CreatedAt,
	}, nil
}

// Put inserts the entry. Two requests racing on the same prompt both call
// Put; ON CONFLICT DO NOTHING lets the first insert win quietly.
func (r *Repository) Put(ctx context.Context, entry *cache.Entry) error {
	entity := entities.CacheEntry{
		PromptHash: entry.PromptHash,
		Response:   entry.Response,
		Model:      entry.Model,
		HitCount:   entry.HitCount,
		CreatedAt:  entry.CreatedAt,
		ExpiresAt:  entry.ExpiresAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "prompt_hash"}},
			DoNothing: true,
		}).
		Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to store cache entry",
			err,
			"8a0c2e4d-6f8a-4c2e-b4d6-f8a0c2e4d6f8",
		)
	}
	return nil
}

// PurgeExpired removes entries past their expiry and returns the count.
func (r *Repository) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now().UTC()).
		Delete(&entities.CacheEntry{})
	if result.Error != nil {
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to purge expired cache entries",
			result.Error,
			"c2e4f6a8-0b2d-4e6f-8a0c-2d4f6a8c0e2d",
		)
	}
	return result.RowsAffected, nil
}
