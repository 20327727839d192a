package artifact

import "context"

// Repository persists artifacts and their version snapshots.
type Repository interface {
	// Upsert inserts or replaces the single artifact row for
	// (artifact.ProjectID, artifact.Type).
	Upsert(ctx context.Context, artifact *Artifact) error

	// FindByProjectAndType returns nil, nil when no artifact exists yet.
	FindByProjectAndType(ctx context.Context, projectID string, stage Stage) (*Artifact, error)

	// ListByProject returns every artifact for the project, in stage order.
	ListByProject(ctx context.Context, projectID string) ([]*Artifact, error)

	// Update persists mutations to an existing artifact.
	Update(ctx context.Context, artifact *Artifact) error

	// CreateSnapshot appends an immutable version snapshot.
	CreateSnapshot(ctx context.Context, snapshot *VersionSnapshot) error

	// ListSnapshots returns snapshots for an artifact, newest first.
	ListSnapshots(ctx context.Context, artifactID string) ([]*VersionSnapshot, error)

	// FindSnapshot returns the snapshot holding the given version number.
	FindSnapshot(ctx context.Context, artifactID string, version int) (*VersionSnapshot, error)
}

// StateRepository persists the per-project pipeline display hint.
type StateRepository interface {
	UpsertState(ctx context.Context, state *PipelineState) error
	FindState(ctx context.Context, projectID string) (*PipelineState, error)
}
