package artifact

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// memoryRepository is an in-memory Repository for state machine tests.
type memoryRepository struct {
	artifacts map[string]*Artifact // key: projectID + "/" + stage
	snapshots []*VersionSnapshot
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{artifacts: make(map[string]*Artifact)}
}

func (m *memoryRepository) key(projectID string, stage Stage) string {
	return projectID + "/" + string(stage)
}

func (m *memoryRepository) Upsert(_ context.Context, a *Artifact) error {
	copied := *a
	m.artifacts[m.key(a.ProjectID, a.Type)] = &copied
	return nil
}

func (m *memoryRepository) FindByProjectAndType(_ context.Context, projectID string, stage Stage) (*Artifact, error) {
	a, ok := m.artifacts[m.key(projectID, stage)]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (m *memoryRepository) ListByProject(_ context.Context, projectID string) ([]*Artifact, error) {
	var out []*Artifact
	for _, stage := range StageOrder {
		if a, ok := m.artifacts[m.key(projectID, stage)]; ok {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memoryRepository) Update(_ context.Context, a *Artifact) error {
	copied := *a
	m.artifacts[m.key(a.ProjectID, a.Type)] = &copied
	return nil
}

func (m *memoryRepository) CreateSnapshot(_ context.Context, s *VersionSnapshot) error {
	copied := *s
	m.snapshots = append(m.snapshots, &copied)
	return nil
}

func (m *memoryRepository) ListSnapshots(_ context.Context, artifactID string) ([]*VersionSnapshot, error) {
	var out []*VersionSnapshot
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if m.snapshots[i].ArtifactID == artifactID {
			out = append(out, m.snapshots[i])
		}
	}
	return out, nil
}

func (m *memoryRepository) FindSnapshot(_ context.Context, artifactID string, version int) (*VersionSnapshot, error) {
	for _, s := range m.snapshots {
		if s.ArtifactID == artifactID && s.Version == version {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, zerolog.Nop())
}

func content(seed string) string {
	return seed + strings.Repeat("x", MinContentLength)
}

func approveStages(t *testing.T, svc *Service, projectID string, stages ...Stage) {
	t.Helper()
	ctx := context.Background()
	for _, stage := range stages {
		_, err := svc.Generate(ctx, GenerateInput{
			ProjectID: projectID,
			Stage:     stage,
			Title:     string(stage),
			Content:   content(string(stage)),
		})
		require.NoError(t, err)
		_, err = svc.Approve(ctx, projectID, stage, "user_1")
		require.NoError(t, err)
	}
}

func TestGenerateFirstStage(t *testing.T) {
	svc := newTestService(newMemoryRepository())

	a, err := svc.Generate(context.Background(), GenerateInput{
		ProjectID: "proj_1",
		Stage:     StageDiscoveryReport,
		Title:     "Discovery",
		Content:   content("d"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, a.Status)
	assert.Equal(t, 1, a.Version)
}

func TestGenerateSkippingAheadRejected(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	approveStages(t, svc, "proj_1", StageDiscoveryReport, StageMarketAnalysis, StageCustomerPersona)

	// Stage 4 is draft; a stage 5 artifact must be rejected.
	_, err := svc.Generate(ctx, GenerateInput{
		ProjectID: "proj_1",
		Stage:     StageValueProposition,
		Title:     "VP",
		Content:   content("v"),
	})
	require.NoError(t, err)

	_, err = svc.Generate(ctx, GenerateInput{
		ProjectID: "proj_1",
		Stage:     StageBusinessModel,
		Title:     "BM",
		Content:   content("b"),
	})
	require.Error(t, err)
	assert.True(t, platformerrors.IsType(err, platformerrors.ErrorTypeConflict))

	// Approving stage 4 immediately unlocks stage 5.
	_, err = svc.Approve(ctx, "proj_1", StageValueProposition, "user_1")
	require.NoError(t, err)

	artifacts, err := repo.ListByProject(ctx, "proj_1")
	require.NoError(t, err)
	next, done := NextRequired(artifacts)
	assert.False(t, done)
	assert.Equal(t, StageBusinessModel, next)

	_, err = svc.Generate(ctx, GenerateInput{
		ProjectID: "proj_1",
		Stage:     StageBusinessModel,
		Title:     "BM",
		Content:   content("b"),
	})
	assert.NoError(t, err)
}

func TestGenerateRegeneratesDraftWithSnapshot(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Generate(ctx, GenerateInput{
		ProjectID: "proj_1",
		Stage:     StageDiscoveryReport,
		Title:     "Discovery",
		Content:   content("first"),
	})
	require.NoError(t, err)

	second, err := svc.Generate(ctx, GenerateInput{
		ProjectID: "proj_1",
		Stage:     StageDiscoveryReport,
		Title:     "Discovery v2",
		Content:   content("second"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, second.Version)
	assert.Equal(t, StatusDraft, second.Status)

	snaps, err := repo.ListSnapshots(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, content("first"), snaps[0].Content)
	assert.Equal(t, 1, snaps[0].Version)
}

func TestApproveRequiresExistingArtifact(t *testing.T) {
	svc := newTestService(newMemoryRepository())

	_, err := svc.Approve(context.Background(), "proj_1", StageDiscoveryReport, "user_1")
	require.Error(t, err)
	assert.True(t, platformerrors.IsType(err, platformerrors.ErrorTypeNotFound))
}

func TestEditApprovedCreatesSnapshotAndResetsDraft(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	approveStages(t, svc, "proj_1", StageDiscoveryReport, StageMarketAnalysis)

	before, err := repo.FindByProjectAndType(ctx, "proj_1", StageMarketAnalysis)
	require.NoError(t, err)

	edited, err := svc.Edit(ctx, "proj_1", StageMarketAnalysis, "", content("edited"))
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, edited.Status)
	assert.Equal(t, before.Version+1, edited.Version)
	assert.Nil(t, edited.ApprovedAt)
	assert.Nil(t, edited.ApprovedBy)

	snaps, err := repo.ListSnapshots(ctx, before.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, before.Content, snaps[0].Content)
	assert.Equal(t, before.Version, snaps[0].Version)
}

func TestEditUpstreamMarksDownstreamStale(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	approveStages(t, svc, "proj_1", StageDiscoveryReport, StageMarketAnalysis, StageCustomerPersona)

	_, err := svc.Edit(ctx, "proj_1", StageDiscoveryReport, "", content("revised"))
	require.NoError(t, err)

	market, err := repo.FindByProjectAndType(ctx, "proj_1", StageMarketAnalysis)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, market.Status)
	require.NotNil(t, market.StaleReason)
	assert.Contains(t, *market.StaleReason, "discovery_report")

	persona, err := repo.FindByProjectAndType(ctx, "proj_1", StageCustomerPersona)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, persona.Status)
}

func TestEditDraftDoesNotTouchDownstream(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	approveStages(t, svc, "proj_1", StageDiscoveryReport)
	_, err := svc.Generate(ctx, GenerateInput{
		ProjectID: "proj_1",
		Stage:     StageMarketAnalysis,
		Title:     "MA",
		Content:   content("ma"),
	})
	require.NoError(t, err)

	_, err = svc.Edit(ctx, "proj_1", StageMarketAnalysis, "", content("ma2"))
	require.NoError(t, err)

	discovery, err := repo.FindByProjectAndType(ctx, "proj_1", StageDiscoveryReport)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, discovery.Status)
}

func TestRestoreVersion(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	original, err := svc.Generate(ctx, GenerateInput{
		ProjectID: "proj_1",
		Stage:     StageDiscoveryReport,
		Title:     "Discovery",
		Content:   content("v1"),
	})
	require.NoError(t, err)

	_, err = svc.Edit(ctx, "proj_1", StageDiscoveryReport, "", content("v2"))
	require.NoError(t, err)

	restored, err := svc.RestoreVersion(ctx, "proj_1", StageDiscoveryReport, 1)
	require.NoError(t, err)

	assert.Equal(t, content("v1"), restored.Content)
	assert.Equal(t, 3, restored.Version)
	assert.Equal(t, StatusDraft, restored.Status)

	// Both overwrites snapshotted: v1 before the edit, v2 before restore.
	snaps, err := repo.ListSnapshots(ctx, original.ID)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestRestoreUnknownVersion(t *testing.T) {
	svc := newTestService(newMemoryRepository())
	ctx := context.Background()

	_, err := svc.Generate(ctx, GenerateInput{
		ProjectID: "proj_1",
		Stage:     StageDiscoveryReport,
		Title:     "Discovery",
		Content:   content("v1"),
	})
	require.NoError(t, err)

	_, err = svc.RestoreVersion(ctx, "proj_1", StageDiscoveryReport, 9)
	require.Error(t, err)
	assert.True(t, platformerrors.IsType(err, platformerrors.ErrorTypeNotFound))
}

func TestPipelineTerminalState(t *testing.T) {
	svc := newTestService(newMemoryRepository())
	ctx := context.Background()

	approveStages(t, svc, "proj_1", StageOrder...)

	_, err := svc.Generate(ctx, GenerateInput{
		ProjectID: "proj_1",
		Stage:     StagePitchDeck,
		Title:     "PD",
		Content:   content("pd"),
	})
	require.Error(t, err)
	assert.True(t, platformerrors.IsType(err, platformerrors.ErrorTypeConflict))
}
