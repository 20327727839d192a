package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ventureforge/pipeline-server/internal/domain/artifact"
)

func makeArtifact(stage artifact.Stage, status artifact.Status) *artifact.Artifact {
	return &artifact.Artifact{
		ID:        "art_" + string(stage),
		ProjectID: "proj_1",
		Type:      stage,
		Content:   strings.Repeat("x", 40),
		Status:    status,
		Version:   1,
	}
}

func TestRenderEmptyProject(t *testing.T) {
	block := Render(nil)

	assert.Contains(t, block, "Last approved stage: none")
	assert.Contains(t, block, "Next required stage: discovery_report")
	assert.Contains(t, block, "Existing stages: none")
	assert.Contains(t, block, "Missing stages: discovery_report, market_analysis")
}

func TestRenderMidPipeline(t *testing.T) {
	artifacts := []*artifact.Artifact{
		makeArtifact(artifact.StageDiscoveryReport, artifact.StatusApproved),
		makeArtifact(artifact.StageMarketAnalysis, artifact.StatusApproved),
		makeArtifact(artifact.StageCustomerPersona, artifact.StatusDraft),
	}

	block := Render(artifacts)

	assert.Contains(t, block, "Last approved stage: market_analysis")
	assert.Contains(t, block, "Next required stage: customer_persona")
	assert.Contains(t, block, "customer_persona (draft, v1)")
	assert.Contains(t, block, "Missing stages: value_proposition")
	assert.NotContains(t, block, "Missing stages: discovery_report")
}

func TestRenderStaleStageBecomesNextRequired(t *testing.T) {
	artifacts := []*artifact.Artifact{
		makeArtifact(artifact.StageDiscoveryReport, artifact.StatusApproved),
		makeArtifact(artifact.StageMarketAnalysis, artifact.StatusStale),
		makeArtifact(artifact.StageCustomerPersona, artifact.StatusApproved),
	}

	block := Render(artifacts)

	// A stale stage breaks the approved prefix and must be redone first.
	assert.Contains(t, block, "Last approved stage: discovery_report")
	assert.Contains(t, block, "Next required stage: market_analysis")
}

func TestRenderComplete(t *testing.T) {
	var artifacts []*artifact.Artifact
	for _, stage := range artifact.StageOrder {
		artifacts = append(artifacts, makeArtifact(stage, artifact.StatusApproved))
	}

	block := Render(artifacts)

	assert.Contains(t, block, "All nine stages are approved.")
	assert.NotContains(t, block, "Next required stage:")
	assert.NotContains(t, block, "Missing stages:")
}
