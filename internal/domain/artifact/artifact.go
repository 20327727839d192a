// Package artifact defines the deliverable documents produced by the
// venture pipeline and the gating rules that order them.
package artifact

import "time"

// Stage identifies one of the nine ordered pipeline deliverables.
type Stage string

const (
	StageDiscoveryReport     Stage = "discovery_report"
	StageMarketAnalysis      Stage = "market_analysis"
	StageCustomerPersona     Stage = "customer_persona"
	StageValueProposition    Stage = "value_proposition"
	StageBusinessModel       Stage = "business_model"
	StageBrandIdentity       Stage = "brand_identity"
	StageGoToMarket          Stage = "go_to_market"
	StageFinancialProjection Stage = "financial_projection"
	StagePitchDeck           Stage = "pitch_deck"
)

// StageOrder lists every stage in pipeline order. A stage may not be
// generated before every earlier stage has been approved.
var StageOrder = []Stage{
	StageDiscoveryReport,
	StageMarketAnalysis,
	StageCustomerPersona,
	StageValueProposition,
	StageBusinessModel,
	StageBrandIdentity,
	StageGoToMarket,
	StageFinancialProjection,
	StagePitchDeck,
}

// IsValid reports whether s is one of the nine known stages.
func (s Stage) IsValid() bool {
	for _, stage := range StageOrder {
		if stage == s {
			return true
		}
	}
	return false
}

// Index returns the zero-based position of s in the pipeline, or -1.
func (s Stage) Index() int {
	for i, stage := range StageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// Before reports whether s comes strictly earlier than other in the pipeline.
func (s Stage) Before(other Stage) bool {
	si, oi := s.Index(), other.Index()
	return si >= 0 && oi >= 0 && si < oi
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// Status is the lifecycle state of an artifact.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusStale    Status = "stale"
)

// MinContentLength is the smallest artifact body accepted from the model.
const MinContentLength = 20

// Artifact is one generated deliverable document. There is at most one
// artifact per (project, stage); regeneration overwrites content and bumps
// the version rather than appending a new row.
type Artifact struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Type        Stage      `json:"artifact_type"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Status      Status     `json:"status"`
	Version     int        `json:"version"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ApprovedBy  *string    `json:"approved_by,omitempty"`
	StaleReason *string    `json:"stale_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Version is an immutable snapshot of an artifact's content taken just
// before an overwrite, so the prior revision stays recoverable.
type VersionSnapshot struct {
	ID         string    `json:"id"`
	ArtifactID string    `json:"artifact_id"`
	Type       Stage     `json:"artifact_type"`
	Content    string    `json:"content"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

// PipelineMode selects between the full guided flow and an abbreviated one.
type PipelineMode string

const (
	ModeStandard PipelineMode = "standard"
	ModeQuick    PipelineMode = "quick"
)

// PipelineState is a per-project display hint derived from the latest
// parsed envelope. It is never authoritative; the next required stage is
// always recomputed from the artifact table.
type PipelineState struct {
	ProjectID   string       `json:"project_id"`
	Mode        PipelineMode `json:"mode"`
	Stage       Stage        `json:"pipeline_stage"`
	NextActions []string     `json:"next_actions,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
