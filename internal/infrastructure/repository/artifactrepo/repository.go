// Package artifactrepo persists pipeline artifacts and their version
// snapshots.
package artifactrepo

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ventureforge/pipeline-server/internal/domain/artifact"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/database/entities"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Repository handles artifact persistence.
type Repository struct {
	db *gorm.DB
}

var (
	_ artifact.Repository      = (*Repository)(nil)
	_ artifact.StateRepository = (*Repository)(nil)
)

func NewRepository(db *gorm.DB) artifact.Repository {
	return &Repository{db: db}
}

func NewStateRepository(db *gorm.DB) artifact.StateRepository {
	return &Repository{db: db}
}

func (r *Repository) Upsert(ctx context.Context, a *artifact.Artifact) error {
	entity := mapDomain(a)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}, {Name: "type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "content", "status", "version",
				"stale_reason", "approved_at", "approved_by", "updated_at",
			}),
		}).
		Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to upsert artifact",
			err,
			"5a7c9e1b-2d4f-4a6e-8c0b-3e5f7a9b1c2d",
		)
	}
	return nil
}

func (r *Repository) FindByProjectAndType(ctx context.Context, projectID string, stage artifact.Stage) (*artifact.Artifact, error) {
	var entity entities.Artifact
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND type = ?", projectID, string(stage)).
		First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to find artifact",
			err,
			"9d1f3a5c-7e9b-4c2d-a4f6-8b0c2e4f6a8b",
		)
	}
	mapped := mapEntity(entity)
	return &mapped, nil
}

func (r *Repository) ListByProject(ctx context.Context, projectID string) ([]*artifact.Artifact, error) {
	var rows []entities.Artifact
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list artifacts",
			err,
			"1b3d5f7a-9c1e-4f3a-b5c7-d9e1f3a5b7c9",
		)
	}
	artifacts := make([]*artifact.Artifact, 0, len(rows))
	for _, row := range rows {
		mapped := mapEntity(row)
		artifacts = append(artifacts, &mapped)
	}
	return artifacts, nil
}

func (r *Repository) Update(ctx context.Context, a *artifact.Artifact) error {
	entity := mapDomain(a)
	err := r.db.WithContext(ctx).
		Model(&entities.Artifact{}).
		Where("id = ?", a.ID).
		Select("title", "content", "status", "version",
			"stale_reason", "approved_at", "approved_by", "updated_at").
		Updates(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update artifact",
			err,
			"7e9b1d3f-5a7c-4e9b-8d0f-2a4c6e8f0b1d",
		)
	}
	return nil
}

func (r *Repository) CreateSnapshot(ctx context.Context, s *artifact.VersionSnapshot) error {
	entity := entities.ArtifactVersion{
		ID:         s.ID,
		ArtifactID: s.ArtifactID,
		Type:       string(s.Type),
		Content:    s.Content,
		Version:    s.Version,
		CreatedAt:  s.CreatedAt,
	}
	err := r.db.WithContext(ctx).Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create artifact version",
			err,
			"3c5e7a9b-1d3f-4a5c-9e1b-4f6a8c0d2e3f",
		)
	}
	return nil
}

func (r *Repository) ListSnapshots(ctx context.Context, artifactID string) ([]*artifact.VersionSnapshot, error) {
	var rows []entities.ArtifactVersion
	err := r.db.WithContext(ctx).
		Where("artifact_id = ?", artifactID).
		Order("version DESC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list artifact versions",
			err,
			"8f0b2d4e-6a8c-4b0d-9f1a-3c5e7b9d1f2a",
		)
	}
	snapshots := make([]*artifact.VersionSnapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, mapVersion(row))
	}
	return snapshots, nil
}

func (r *Repository) FindSnapshot(ctx context.Context, artifactID string, version int) (*artifact.VersionSnapshot, error) {
	var entity entities.ArtifactVersion
	err := r.db.WithContext(ctx).
		Where("artifact_id = ? AND version = ?", artifactID, version).
		First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to find artifact version",
			err,
			"2a4c6e8f-0b2d-4c6e-a8f0-b2d4f6a8c0d1",
		)
	}
	return mapVersion(entity), nil
}

// UpsertState stores the per-project display hint.
func (r *Repository) UpsertState(ctx context.Context, state *artifact.PipelineState) error {
	actions, err := json.Marshal(state.NextActions)
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeInternal,
			"failed to encode next actions",
			err,
			"8a0c2e4f-6b8d-4f0a-9c2e-5d7f9b1d3e5a",
		)
	}
	entity := entities.PipelineState{
		ProjectID:   state.ProjectID,
		Mode:        string(state.Mode),
		Stage:       string(state.Stage),
		NextActions: datatypes.JSON(actions),
		UpdatedAt:   state.UpdatedAt,
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"mode", "stage", "next_actions", "updated_at"}),
		}).
		Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to upsert pipeline state",
			err,
			"6e8f0a2c-4d6f-4e8a-b0c2-d4e6f8a0b1c3",
		)
	}
	return nil
}

func (r *Repository) FindState(ctx context.Context, projectID string) (*artifact.PipelineState, error) {
	var entity entities.PipelineState
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to find pipeline state",
			err,
			"0b2d4f6a-8c0e-4d2f-9a1c-3e5f7a9c1d3e",
		)
	}
	state := &artifact.PipelineState{
		ProjectID: entity.ProjectID,
		Mode:      artifact.PipelineMode(entity.Mode),
		Stage:     artifact.Stage(entity.Stage),
		UpdatedAt: entity.UpdatedAt,
	}
	if len(entity.NextActions) > 0 {
		// Stored hints are advisory; a decode failure just drops them.
		_ = json.Unmarshal(entity.NextActions, &state.NextActions)
	}
	return state, nil
}

func mapDomain(a *artifact.Artifact) entities.Artifact {
	return entities.Artifact{
		ID:          a.ID,
		ProjectID:   a.ProjectID,
		Type:        string(a.Type),
		Title:       a.Title,
		Content:     a.Content,
		Status:      string(a.Status),
		Version:     a.Version,
		StaleReason: a.StaleReason,
		ApprovedAt:  a.ApprovedAt,
		ApprovedBy:  a.ApprovedBy,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func mapEntity(entity entities.Artifact) artifact.Artifact {
	return artifact.Artifact{
		ID:          entity.ID,
		ProjectID:   entity.ProjectID,
		Type:        artifact.Stage(entity.Type),
		Title:       entity.Title,
		Content:     entity.Content,
		Status:      artifact.Status(entity.Status),
		Version:     entity.Version,
		StaleReason: entity.StaleReason,
		ApprovedAt:  entity.ApprovedAt,
		ApprovedBy:  entity.ApprovedBy,
		CreatedAt:   entity.CreatedAt,
		UpdatedAt:   entity.UpdatedAt,
	}
}

func mapVersion(entity entities.ArtifactVersion) *artifact.VersionSnapshot {
	return &artifact.VersionSnapshot{
		ID:         entity.ID,
		ArtifactID: entity.ArtifactID,
		Type:       artifact.Stage(entity.Type),
		Content:    entity.Content,
		Version:    entity.Version,
		CreatedAt:  entity.CreatedAt,
	}
}
