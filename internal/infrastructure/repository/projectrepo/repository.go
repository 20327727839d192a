// Package projectrepo persists venture projects.
package projectrepo

import (
	"context"

	"gorm.io/gorm"

	"github.com/ventureforge/pipeline-server/internal/domain/project"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/database/entities"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Repository handles project persistence.
type Repository struct {
	db *gorm.DB
}

var _ project.Repository = (*Repository)(nil)

func NewRepository(db *gorm.DB) project.Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, p *project.Project) error {
	entity := entities.Project{
		PublicID:  p.PublicID,
		UserID:    p.UserID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	err := r.db.WithContext(ctx).Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create project",
			err,
			"e4f6a8c0-2d4f-4a6c-8e0b-2d4f6a8c0e2f",
		)
	}
	return nil
}

func (r *Repository) FindByPublicID(ctx context.Context, publicID string) (*project.Project, error) {
	var entity entities.Project
	err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to find project",
			err,
			"a8c0e2d4-f6a8-4c0e-9d2f-4a6c8e0b2d4f",
		)
	}
	return mapEntity(entity), nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]*project.Project, error) {
	var rows []entities.Project
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list projects",
			err,
			"0e2d4f6a-8c0e-4d2f-a4c6-8e0b2d4f6a8c",
		)
	}
	projects := make([]*project.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, mapEntity(row))
	}
	return projects, nil
}

func mapEntity(entity entities.Project) *project.Project {
	return &project.Project{
		PublicID:  entity.PublicID,
		UserID:    entity.UserID,
		Name:      entity.Name,
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}
