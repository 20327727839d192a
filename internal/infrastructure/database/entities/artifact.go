package entities

import (
	"time"

	"gorm.io/datatypes"
)

// TableName specifies the table name for Artifact.
func (Artifact) TableName() string {
	return "artifact"
}

// Artifact represents the persisted deliverable for one pipeline stage.
// (project_id, type) is unique; regeneration rewrites this row.
type Artifact struct {
	ID          string `gorm:"primaryKey;size:64"`
	ProjectID   string `gorm:"size:64;uniqueIndex:uq_artifact_project_type,priority:1;index:idx_artifact_project"`
	Type        string `gorm:"size:64;uniqueIndex:uq_artifact_project_type,priority:2"`
	Title       string `gorm:"size:255"`
	Content     string `gorm:"type:text"`
	Status      string `gorm:"size:16;default:draft"`
	Version     int    `gorm:"default:1"`
	StaleReason *string
	ApprovedAt  *time.Time
	ApprovedBy  *string `gorm:"size:64"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName specifies the table name for ArtifactVersion.
func (ArtifactVersion) TableName() string {
	return "artifact_version"
}

// ArtifactVersion represents one immutable content snapshot.
type ArtifactVersion struct {
	ID         string `gorm:"primaryKey;size:64"`
	ArtifactID string `gorm:"size:64;uniqueIndex:uq_artifact_version,priority:1"`
	Type       string `gorm:"size:64"`
	Content    string `gorm:"type:text"`
	Version    int    `gorm:"uniqueIndex:uq_artifact_version,priority:2"`
	CreatedAt  time.Time
}

// TableName specifies the table name for PipelineState.
func (PipelineState) TableName() string {
	return "pipeline_state"
}

// PipelineState represents the per-project display hint.
type PipelineState struct {
	ProjectID   string         `gorm:"primaryKey;size:64"`
	Mode        string         `gorm:"size:16"`
	Stage       string         `gorm:"size:64"`
	NextActions datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt   time.Time
}
