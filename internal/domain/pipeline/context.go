// Package pipeline computes the instruction block that steers the model
// toward the next required deliverable. Conversation history can be
// truncated or lost, so the block is recomputed from persisted artifact
// state on every turn rather than inferred from chat.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ventureforge/pipeline-server/internal/domain/artifact"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// ContextBuilder renders pipeline ground truth as a system prompt suffix.
type ContextBuilder struct {
	repo artifact.Repository
}

func NewContextBuilder(repo artifact.Repository) *ContextBuilder {
	return &ContextBuilder{repo: repo}
}

// Build loads the project's artifacts and renders the instruction block.
func (b *ContextBuilder) Build(ctx context.Context, projectID string) (string, error) {
	artifacts, err := b.repo.ListByProject(ctx, projectID)
	if err != nil {
		return "", platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load artifacts for pipeline context")
	}
	return Render(artifacts), nil
}

// Render produces the instruction block from a set of artifact rows.
func Render(artifacts []*artifact.Artifact) string {
	byStage := make(map[artifact.Stage]*artifact.Artifact, len(artifacts))
	for _, a := range artifacts {
		byStage[a.Type] = a
	}

	lastApproved := artifact.LastApproved(artifacts)
	next, done := artifact.NextRequired(artifacts)

	var sb strings.Builder
	sb.WriteString("\n\n## Pipeline status (authoritative, derived from stored deliverables)\n")

	if lastApproved == "" {
		sb.WriteString("Last approved stage: none\n")
	} else {
		fmt.Fprintf(&sb, "Last approved stage: %s\n", lastApproved)
	}

	if done {
		sb.WriteString("All nine stages are approved. Do not generate further deliverables; help the user refine or export existing ones.\n")
	} else {
		fmt.Fprintf(&sb, "Next required stage: %s\n", next)
		fmt.Fprintf(&sb, "Only produce an artifact for %s. Artifacts for any later stage will be rejected.\n", next)
	}

	var existing, missing []string
	for _, stage := range artifact.StageOrder {
		if a, ok := byStage[stage]; ok {
			existing = append(existing, fmt.Sprintf("%s (%s, v%d)", stage, a.Status, a.Version))
		} else {
			missing = append(missing, stage.String())
		}
	}

	if len(existing) > 0 {
		fmt.Fprintf(&sb, "Existing stages: %s\n", strings.Join(existing, ", "))
	} else {
		sb.WriteString("Existing stages: none\n")
	}
	if len(missing) > 0 {
		fmt.Fprintf(&sb, "Missing stages: %s\n", strings.Join(missing, ", "))
	}

	return sb.String()
}
