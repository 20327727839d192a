package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptHashDeterministic(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}

	first, err := PromptHash("system", messages, "gpt-4o-mini")
	require.NoError(t, err)
	second, err := PromptHash("system", messages, "gpt-4o-mini")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestPromptHashSensitivity(t *testing.T) {
	messages := []openai.ChatCompletionMessage{{Role: "user", Content: "hello"}}

	base, err := PromptHash("system", messages, "gpt-4o-mini")
	require.NoError(t, err)

	// Pipeline context injection changes the system prompt, which must
	// change the key.
	differentPrompt, err := PromptHash("system\n\n## Pipeline status", messages, "gpt-4o-mini")
	require.NoError(t, err)
	assert.NotEqual(t, base, differentPrompt)

	differentModel, err := PromptHash("system", messages, "gpt-4o")
	require.NoError(t, err)
	assert.NotEqual(t, base, differentModel)

	reordered, err := PromptHash("system", []openai.ChatCompletionMessage{
		{Role: "user", Content: "olleh"},
	}, "gpt-4o-mini")
	require.NoError(t, err)
	assert.NotEqual(t, base, reordered)
}

func TestReplayReassemblesExactly(t *testing.T) {
	response := strings.Repeat("hello, wörld! ", 37)
	replayer := Replayer{ChunkSize: 16}

	var chunks []string
	err := replayer.Replay(context.Background(), response, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)

	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, response, strings.Join(chunks, ""))
}

func TestReplayRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	replayer := Replayer{ChunkSize: 4, Delay: time.Hour}

	calls := 0
	err := replayer.Replay(ctx, "abcdefghij", func(chunk string) error {
		calls++
		cancel()
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
