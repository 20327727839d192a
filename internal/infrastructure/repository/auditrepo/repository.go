// Package auditrepo persists chat audit entries and usage records.
package auditrepo

import (
	"context"

	"gorm.io/gorm"

	"github.com/ventureforge/pipeline-server/internal/domain/billing"
	"github.com/ventureforge/pipeline-server/internal/domain/chat"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/database/entities"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Repository handles audit and usage persistence.
type Repository struct {
	db *gorm.DB
}

var _ chat.AuditRecorder = (*Repository)(nil)

func NewRepository(db *gorm.DB) chat.AuditRecorder {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, entry *chat.AuditEntry) error {
	entity := entities.ChatAuditLog{
		RequestID:      entry.RequestID,
		UserID:         entry.UserID,
		ConversationID: entry.ConversationID,
		CacheStatus:    entry.CacheStatus,
		PromptVersion:  entry.PromptVersion,
		ResponseChars:  entry.ResponseChars,
		DurationMs:     entry.Duration.Milliseconds(),
		CreatedAt:      entry.CreatedAt,
	}
	err := r.db.WithContext(ctx).Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to record audit entry",
			err,
			"4f6a8c0e-2d4f-4c6a-be0d-2f4a6c8e0b2e",
		)
	}
	return nil
}

// UsageRepository appends to the usage ledger.
type UsageRepository struct {
	db *gorm.DB
}

var _ billing.UsageRecorder = (*UsageRepository)(nil)

func NewUsageRepository(db *gorm.DB) billing.UsageRecorder {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Record(ctx context.Context, usage *billing.Usage) error {
	entity := entities.UsageRecord{
		UserID:           usage.UserID,
		ConversationID:   usage.ConversationID,
		RequestID:        usage.RequestID,
		Model:            usage.Model,
		CacheStatus:      usage.CacheStatus,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Cost:             usage.Cost,
		CreatedAt:        usage.CreatedAt,
	}
	err := r.db.WithContext(ctx).Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to record usage",
			err,
			"8a0c2e4f-6a8c-4e0b-9d2f-4a6c8e0b2d4c",
		)
	}
	return nil
}
