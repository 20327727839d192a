// Package creditrepo persists message credit balances.
package creditrepo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ventureforge/pipeline-server/internal/domain/billing"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/database/entities"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Repository handles credit balance persistence.
type Repository struct {
	db *gorm.DB
}

var _ billing.CreditStore = (*Repository)(nil)

func NewRepository(db *gorm.DB) billing.CreditStore {
	return &Repository{db: db}
}

func (r *Repository) EnsureAccount(ctx context.Context, userID string, initial int64) error {
	now := time.Now().UTC()
	entity := entities.CreditBalance{
		UserID:    userID,
		Balance:   initial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to ensure credit account",
			err,
			"f6a8c0e2-d4f6-4a8c-8e2d-4f6a8c0e2d4a",
		)
	}
	return nil
}

// Consume deducts one credit with a single guarded UPDATE. The WHERE
// balance > 0 makes the deduction atomic under concurrent requests; zero
// rows affected means the balance is exhausted.
func (r *Repository) Consume(ctx context.Context, userID string) error {
	result := r.db.WithContext(ctx).
		Model(&entities.CreditBalance{}).
		Where("user_id = ? AND balance > 0", userID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to consume credit",
			result.Error,
			"2d4f6a8c-0e2d-4f6a-9c0e-2d4f6a8c0e2b",
		)
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeCreditsExhausted,
			"message credits exhausted",
			nil,
			"6a8c0e2d-4f6a-4c0e-8d2f-4a6c8e0b2d4e",
		)
	}
	return nil
}

func (r *Repository) Refund(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).
		Model(&entities.CreditBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to refund credit",
			err,
			"8c0e2d4f-6a8c-4e2d-b4f6-a8c0e2d4f6a9",
		)
	}
	return nil
}

func (r *Repository) Balance(ctx context.Context, userID string) (int64, error) {
	var entity entities.CreditBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to read credit balance",
			err,
			"0e2d4f6a-8c0e-4f2d-8a4c-6e8b0d2f4a6d",
		)
	}
	return entity.Balance, nil
}
