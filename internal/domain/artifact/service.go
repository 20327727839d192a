package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/utils/idgen"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Service is the pipeline state machine: it gates stage advancement,
// applies approvals, snapshots versions and propagates staleness.
type Service struct {
	repo   Repository
	states StateRepository
	logger zerolog.Logger
}

func NewService(repo Repository, states StateRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, states: states, logger: logger}
}

// NextRequired returns the first stage in pipeline order that is not yet
// approved, and whether the pipeline is complete. The artifact table is
// the only source of truth here; chat history is never consulted.
func NextRequired(artifacts []*Artifact) (Stage, bool) {
	byStage := make(map[Stage]*Artifact, len(artifacts))
	for _, a := range artifacts {
		byStage[a.Type] = a
	}
	for _, stage := range StageOrder {
		a, ok := byStage[stage]
		if !ok || a.Status != StatusApproved {
			return stage, false
		}
	}
	return "", true
}

// LastApproved returns the latest stage in pipeline order whose artifact is
// approved, or "" when none is.
func LastApproved(artifacts []*Artifact) Stage {
	byStage := make(map[Stage]*Artifact, len(artifacts))
	for _, a := range artifacts {
		byStage[a.Type] = a
	}
	var last Stage
	for _, stage := range StageOrder {
		a, ok := byStage[stage]
		if !ok || a.Status != StatusApproved {
			break
		}
		last = stage
	}
	return last
}

// GenerateInput carries a model-produced artifact update.
type GenerateInput struct {
	ProjectID string
	Stage     Stage
	Title     string
	Content   string
}

// Generate applies a generated artifact for a stage. The stage must be the
// next required one; an artifact for a stage beyond it is rejected so a
// confused model cannot skip ahead of the approval gate. Regeneration of
// the current draft snapshots the prior content and bumps the version.
func (s *Service) Generate(ctx context.Context, input GenerateInput) (*Artifact, error) {
	if !input.Stage.IsValid() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			fmt.Sprintf("unknown artifact stage: %s", input.Stage), nil, "")
	}
	if len(input.Content) < MinContentLength {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"artifact content too short", nil, "")
	}

	existing, err := s.repo.ListByProject(ctx, input.ProjectID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load project artifacts")
	}

	next, done := NextRequired(existing)
	if done {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
			"pipeline is complete; no further stages can be generated", nil, "")
	}
	if input.Stage != next {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
			fmt.Sprintf("stage %s is not unlocked yet; next required stage is %s", input.Stage, next), nil, "")
	}

	now := time.Now().UTC()
	current, err := s.repo.FindByProjectAndType(ctx, input.ProjectID, input.Stage)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load artifact")
	}

	if current == nil {
		id, idErr := idgen.GenerateSecureID("art", 16)
		if idErr != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, idErr, "failed to generate artifact id")
		}
		created := &Artifact{
			ID:        id,
			ProjectID: input.ProjectID,
			Type:      input.Stage,
			Title:     input.Title,
			Content:   input.Content,
			Status:    StatusDraft,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Upsert(ctx, created); err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create artifact")
		}
		return created, nil
	}

	if err := s.snapshot(ctx, current); err != nil {
		return nil, err
	}
	current.Title = input.Title
	current.Content = input.Content
	current.Status = StatusDraft
	current.Version++
	current.ApprovedAt = nil
	current.ApprovedBy = nil
	current.StaleReason = nil
	current.UpdatedAt = now
	if err := s.repo.Update(ctx, current); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update artifact")
	}
	return current, nil
}

// Approve moves a draft artifact to approved, unlocking the next stage.
func (s *Service) Approve(ctx context.Context, projectID string, stage Stage, approvedBy string) (*Artifact, error) {
	current, err := s.repo.FindByProjectAndType(ctx, projectID, stage)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load artifact")
	}
	if current == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("no artifact exists for stage %s", stage), nil, "")
	}
	if current.Status == StatusApproved {
		return current, nil
	}

	now := time.Now().UTC()
	current.Status = StatusApproved
	current.ApprovedAt = &now
	current.ApprovedBy = &approvedBy
	current.StaleReason = nil
	current.UpdatedAt = now
	if err := s.repo.Update(ctx, current); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to approve artifact")
	}
	return current, nil
}

// Edit snapshots the current content, replaces it, bumps the version and
// resets the artifact to draft. Editing a stage that downstream approved
// stages were built on marks those stages stale.
func (s *Service) Edit(ctx context.Context, projectID string, stage Stage, title, content string) (*Artifact, error) {
	if len(content) < MinContentLength {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"artifact content too short", nil, "")
	}
	current, err := s.repo.FindByProjectAndType(ctx, projectID, stage)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load artifact")
	}
	if current == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("no artifact exists for stage %s", stage), nil, "")
	}

	wasApproved := current.Status == StatusApproved

	if err := s.snapshot(ctx, current); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if title != "" {
		current.Title = title
	}
	current.Content = content
	current.Status = StatusDraft
	current.Version++
	current.ApprovedAt = nil
	current.ApprovedBy = nil
	current.StaleReason = nil
	current.UpdatedAt = now
	if err := s.repo.Update(ctx, current); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update artifact")
	}

	if wasApproved {
		if err := s.markDownstreamStale(ctx, projectID, stage); err != nil {
			// Staleness propagation is advisory; the edit itself succeeded.
			s.logger.Warn().Err(err).
				Str("project_id", projectID).
				Str("stage", stage.String()).
				Msg("failed to mark downstream artifacts stale")
		}
	}

	return current, nil
}

// RestoreVersion rolls an artifact back to a previously snapshotted
// version. The current content is snapshotted first so nothing is lost.
func (s *Service) RestoreVersion(ctx context.Context, projectID string, stage Stage, version int) (*Artifact, error) {
	current, err := s.repo.FindByProjectAndType(ctx, projectID, stage)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load artifact")
	}
	if current == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("no artifact exists for stage %s", stage), nil, "")
	}

	snapshot, err := s.repo.FindSnapshot(ctx, current.ID, version)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load version snapshot")
	}
	if snapshot == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("version %d not found for stage %s", version, stage), nil, "")
	}

	wasApproved := current.Status == StatusApproved

	if err := s.snapshot(ctx, current); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	current.Content = snapshot.Content
	current.Status = StatusDraft
	current.Version++
	current.ApprovedAt = nil
	current.ApprovedBy = nil
	current.StaleReason = nil
	current.UpdatedAt = now
	if err := s.repo.Update(ctx, current); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to restore artifact")
	}

	if wasApproved {
		if err := s.markDownstreamStale(ctx, projectID, stage); err != nil {
			s.logger.Warn().Err(err).
				Str("project_id", projectID).
				Str("stage", stage.String()).
				Msg("failed to mark downstream artifacts stale")
		}
	}

	return current, nil
}

// ListVersions returns the snapshot history for a stage, newest first.
func (s *Service) ListVersions(ctx context.Context, projectID string, stage Stage) ([]*VersionSnapshot, error) {
	current, err := s.repo.FindByProjectAndType(ctx, projectID, stage)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load artifact")
	}
	if current == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("no artifact exists for stage %s", stage), nil, "")
	}
	snapshots, err := s.repo.ListSnapshots(ctx, current.ID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list snapshots")
	}
	return snapshots, nil
}

// ListByProject returns all artifacts for a project in stage order.
func (s *Service) ListByProject(ctx context.Context, projectID string) ([]*Artifact, error) {
	artifacts, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list artifacts")
	}
	return artifacts, nil
}

// UpdateStateHint records the envelope-reported mode and stage as a
// display hint. Failures are not fatal; the hint is never authoritative.
func (s *Service) UpdateStateHint(ctx context.Context, projectID string, mode PipelineMode, stage Stage, nextActions []string) {
	if s.states == nil {
		return
	}
	state := &PipelineState{
		ProjectID:   projectID,
		Mode:        mode,
		Stage:       stage,
		NextActions: nextActions,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.states.UpsertState(ctx, state); err != nil {
		s.logger.Warn().Err(err).Str("project_id", projectID).Msg("failed to update pipeline state hint")
	}
}

func (s *Service) snapshot(ctx context.Context, current *Artifact) error {
	id, err := idgen.GenerateSecureID("ver", 16)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to generate snapshot id")
	}
	snap := &VersionSnapshot{
		ID:         id,
		ArtifactID: current.ID,
		Type:       current.Type,
		Content:    current.Content,
		Version:    current.Version,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateSnapshot(ctx, snap); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to snapshot artifact")
	}
	return nil
}

func (s *Service) markDownstreamStale(ctx context.Context, projectID string, edited Stage) error {
	artifacts, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	reason := fmt.Sprintf("upstream stage %s was revised after approval", edited)
	now := time.Now().UTC()
	for _, a := range artifacts {
		if !edited.Before(a.Type) || a.Status != StatusApproved {
			continue
		}
		a.Status = StatusStale
		a.StaleReason = &reason
		a.UpdatedAt = now
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
