package envelope

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventureforge/pipeline-server/internal/domain/artifact"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := &Envelope{
		Message: "X",
		Artifact: &ArtifactPayload{
			Type:    artifact.StageDiscoveryReport,
			Title:   "T",
			Content: strings.Repeat("C", 20),
			Status:  artifact.StatusDraft,
		},
	}

	encoded, err := Encode(original)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "```json"))
	assert.True(t, strings.HasSuffix(encoded, "```"))

	decoded, decErr := Decode(encoded)
	require.Nil(t, decErr)
	assert.Equal(t, original.Message, decoded.Message)
	require.NotNil(t, decoded.Artifact)
	assert.Equal(t, original.Artifact.Type, decoded.Artifact.Type)
	assert.Equal(t, original.Artifact.Title, decoded.Artifact.Title)
	assert.Equal(t, original.Artifact.Content, decoded.Artifact.Content)
	assert.Equal(t, original.Artifact.Status, decoded.Artifact.Status)
}

func TestDecodePlainObject(t *testing.T) {
	env, decErr := Decode(`{"message": "hello", "next_actions": ["approve", "edit"]}`)
	require.Nil(t, decErr)
	assert.Equal(t, "hello", env.Message)
	assert.Equal(t, []string{"approve", "edit"}, env.NextActions)
}

func TestDecodeFencedWithoutLanguageTag(t *testing.T) {
	env, decErr := Decode("```\n{\"message\": \"hi\"}\n```")
	require.Nil(t, decErr)
	assert.Equal(t, "hi", env.Message)
}

func TestDecodeLeadingProse(t *testing.T) {
	env, decErr := Decode(`Sure! Here is the result: {"message": "done"}`)
	require.Nil(t, decErr)
	assert.Equal(t, "done", env.Message)
}

func TestDecodeMissingOpeningBrace(t *testing.T) {
	env, decErr := Decode(`"message": "brace got eaten"}`)
	require.Nil(t, decErr)
	assert.Equal(t, "brace got eaten", env.Message)
}

func TestDecodeTrailingGarbageAfterObject(t *testing.T) {
	env, decErr := Decode(`{"message": "ok"} and then some`)
	require.Nil(t, decErr)
	assert.Equal(t, "ok", env.Message)
}

func TestDecodeValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{
			name:  "empty message",
			raw:   `{"message": "  "}`,
			field: "message",
		},
		{
			name:  "unknown artifact stage",
			raw:   `{"message": "m", "artifact": {"type": "roadmap", "title": "t", "content": "` + strings.Repeat("x", 30) + `"}}`,
			field: "artifact.type",
		},
		{
			name:  "artifact content too short",
			raw:   `{"message": "m", "artifact": {"type": "discovery_report", "title": "t", "content": "short"}}`,
			field: "artifact.content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, decErr := Decode(tt.raw)
			assert.Nil(t, env)
			require.NotNil(t, decErr)
			assert.Equal(t, ReasonValidation, decErr.Reason)
			assert.Equal(t, tt.field, decErr.Field)
		})
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	_, decErr := Decode("")
	require.NotNil(t, decErr)
	assert.Equal(t, ReasonEmpty, decErr.Reason)

	_, decErr = Decode("   \n\t ")
	require.NotNil(t, decErr)
	assert.Equal(t, ReasonEmpty, decErr.Reason)
}

func TestDecodeProseWithoutObject(t *testing.T) {
	_, decErr := Decode("no json here at all")
	require.NotNil(t, decErr)
	assert.Equal(t, ReasonNoJSON, decErr.Reason)
}

func TestExtractMessage(t *testing.T) {
	t.Run("well formed value in malformed object", func(t *testing.T) {
		msg, ok := ExtractMessage(`{"message": "hello world", "artifact": {"type": "discov`)
		require.True(t, ok)
		assert.Equal(t, "hello world", msg)
	})

	t.Run("honors escapes", func(t *testing.T) {
		msg, ok := ExtractMessage(`{"message": "line one\nline \"two\"\t\\end", "state"`)
		require.True(t, ok)
		assert.Equal(t, "line one\nline \"two\"\t\\end", msg)
	})

	t.Run("unterminated value returns nothing", func(t *testing.T) {
		msg, ok := ExtractMessage(`{"message": "Hello wor`)
		assert.False(t, ok)
		assert.Equal(t, "", msg)
	})

	t.Run("no message key", func(t *testing.T) {
		_, ok := ExtractMessage(`{"artifact": {"type": "pitch_deck"}}`)
		assert.False(t, ok)
	})
}

func TestPreview(t *testing.T) {
	t.Run("full envelope wins", func(t *testing.T) {
		assert.Equal(t, "hi", Preview(`{"message": "hi"}`))
	})

	t.Run("partial extraction", func(t *testing.T) {
		got := Preview(`{"message": "partial but usable", "artifact": {"ty`)
		assert.Equal(t, "partial but usable", got)
	})

	t.Run("short garbage suppressed", func(t *testing.T) {
		assert.Equal(t, "", Preview(`{"mess`))
		assert.Equal(t, "", Preview("x"))
	})

	t.Run("structural fragments suppressed", func(t *testing.T) {
		assert.Equal(t, "", Preview(`"title": "something", "content": "lots of stuff here that keeps going on"`))
	})

	t.Run("long plain prose passes through", func(t *testing.T) {
		prose := "The assistant replied in plain prose instead of the structured format this time."
		assert.Equal(t, prose, Preview(prose))
	})
}
