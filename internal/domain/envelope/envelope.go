// Package envelope encodes and decodes the structured response format the
// model is instructed to emit per turn. Model output is free text, so the
// decoder tolerates markdown fences, leading prose, and envelopes cut off
// mid-stream.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ventureforge/pipeline-server/internal/domain/artifact"
)

// Envelope is the structured per-turn response contract.
type Envelope struct {
	Message     string           `json:"message"`
	Artifact    *ArtifactPayload `json:"artifact,omitempty"`
	State       *StateHint       `json:"state,omitempty"`
	NextActions []string         `json:"next_actions,omitempty"`
}

// ArtifactPayload is the artifact update carried by an envelope.
type ArtifactPayload struct {
	Type    artifact.Stage  `json:"type"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Status  artifact.Status `json:"status,omitempty"`
}

// StateHint is the envelope-reported pipeline position. Display only.
type StateHint struct {
	Mode  artifact.PipelineMode `json:"mode,omitempty"`
	Stage artifact.Stage        `json:"pipeline_stage,omitempty"`
}

// DecodeReason classifies why a decode failed.
type DecodeReason string

const (
	ReasonEmpty      DecodeReason = "empty_input"
	ReasonNoJSON     DecodeReason = "no_json_object"
	ReasonParse      DecodeReason = "parse_failed"
	ReasonValidation DecodeReason = "validation_failed"
)

// DecodeError is the typed failure result of Decode. Malformed model output
// is expected during streaming, so callers branch on this rather than
// treating it as exceptional.
type DecodeError struct {
	Reason DecodeReason
	Field  string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("envelope %s: field %s", e.Reason, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("envelope %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("envelope %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode renders an envelope as a fenced JSON block, the shape the system
// prompt asks the model for. Decode(Encode(env)) round-trips.
func Encode(env *Envelope) (string, error) {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", err
	}
	return "```json\n" + string(data) + "\n```", nil
}

// Decode parses raw model output into a validated envelope.
func Decode(raw string) (*Envelope, *DecodeError) {
	text := sanitize(raw)
	if text == "" {
		if strings.TrimSpace(raw) == "" {
			return nil, &DecodeError{Reason: ReasonEmpty}
		}
		return nil, &DecodeError{Reason: ReasonNoJSON}
	}

	var env Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, &DecodeError{Reason: ReasonParse, Err: err}
	}

	if strings.TrimSpace(env.Message) == "" {
		return nil, &DecodeError{Reason: ReasonValidation, Field: "message"}
	}
	if env.Artifact != nil {
		if !env.Artifact.Type.IsValid() {
			return nil, &DecodeError{Reason: ReasonValidation, Field: "artifact.type"}
		}
		if len(env.Artifact.Content) < artifact.MinContentLength {
			return nil, &DecodeError{Reason: ReasonValidation, Field: "artifact.content"}
		}
	}

	return &env, nil
}

// ExtractMessage is the streaming-safe fallback: it scans for the "message"
// key and walks its value character by character, honoring backslash
// escapes, without requiring the surrounding object to be well-formed. The
// value's closing quote must have arrived; an unterminated value yields
// ("", false) rather than a half-escaped fragment.
func ExtractMessage(raw string) (string, bool) {
	keyIdx := strings.Index(raw, `"message"`)
	if keyIdx < 0 {
		return "", false
	}

	rest := raw[keyIdx+len(`"message"`):]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", false
	}
	rest = rest[colon+1:]

	open := strings.Index(rest, `"`)
	if open < 0 {
		return "", false
	}
	rest = rest[open+1:]

	var sb strings.Builder
	escaped := false
	for _, r := range rest {
		if escaped {
			switch r {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				sb.WriteRune(r)
			}
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '"':
			return sb.String(), true
		default:
			sb.WriteRune(r)
		}
	}
	return "", false
}

// Preview returns the best user-displayable text for raw, which may still
// be streaming. Precedence: validated envelope message, partial message
// extraction, then the raw text itself unless it looks like an unfinished
// JSON fragment or is too short to be meaningful.
func Preview(raw string) string {
	if env, decErr := Decode(raw); decErr == nil {
		return env.Message
	}
	if msg, ok := ExtractMessage(raw); ok {
		return msg
	}
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 50 || looksStructural(trimmed) {
		return ""
	}
	return trimmed
}

func sanitize(raw string) string {
	text := strings.TrimSpace(raw)

	// Strip markdown fences, with or without a language tag.
	if strings.HasPrefix(text, "```") {
		if nl := strings.Index(text, "\n"); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```json")
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	// Stray language tag or prose before the object.
	if !strings.HasPrefix(text, "{") {
		if strings.HasPrefix(text, `"message"`) {
			// The opening brace was swallowed; synthesize it.
			text = "{" + text
		} else if start := strings.Index(text, "{"); start >= 0 {
			text = text[start:]
		} else {
			return ""
		}
	}

	// A stream cut mid-envelope leaves a dangling tail; keep up to the
	// last closing brace.
	if !strings.HasSuffix(text, "}") {
		if end := strings.LastIndex(text, "}"); end >= 0 {
			text = text[:end+1]
		}
	}

	return text
}

func looksStructural(text string) bool {
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") || strings.HasPrefix(text, "```") {
		return true
	}
	return strings.Contains(text, `":`) || strings.Contains(text, "function ") || strings.Contains(text, "=>")
}
