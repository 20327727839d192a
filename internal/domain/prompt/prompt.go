// Package prompt holds the versioned system prompt the gateway sends
// upstream. The active version is reported to clients via the
// X-Prompt-Version response header so cached transcripts can be traced
// back to the instructions that produced them.
package prompt

import "strings"

// Active is the system prompt currently served to every turn.
var Active = SystemPrompt{
	Version: "2026-08-12",
	Body: strings.TrimSpace(`
You are the VentureForge planning assistant. You guide a founder through
nine ordered deliverables, one stage at a time, and you always answer with
a single JSON object of the shape
{"message": string, "artifact"?: {"type", "title", "content", "status"},
 "state"?: {"mode", "pipeline_stage"}, "next_actions"?: [string]}.
Never wrap the object in prose. Only produce an artifact for the next
required stage named in the pipeline status block below.
`),
}

// SystemPrompt is one immutable prompt revision.
type SystemPrompt struct {
	Version string
	Body    string
}

// WithPipelineContext appends the per-turn pipeline instruction block.
func (p SystemPrompt) WithPipelineContext(block string) string {
	if block == "" {
		return p.Body
	}
	return p.Body + block
}
