package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineBufferSplitsAcrossFeeds(t *testing.T) {
	var b LineBuffer

	b.Feed([]byte("data: {\"choices\":[{\"del"))
	_, ok := b.Next()
	assert.False(t, ok, "incomplete line must stay buffered")

	b.Feed([]byte("ta\":{\"content\":\"hi\"}}]}\ndata: [D"))
	line, ok := b.Next()
	assert.True(t, ok)
	assert.Equal(t, `data: {"choices":[{"delta":{"content":"hi"}}]}`, line)

	_, ok = b.Next()
	assert.False(t, ok)
	assert.Equal(t, "data: [D", b.Rest())

	b.Feed([]byte("ONE]\n"))
	line, ok = b.Next()
	assert.True(t, ok)
	assert.Equal(t, "data: [DONE]", line)
}

func TestLineBufferStripsCarriageReturn(t *testing.T) {
	var b LineBuffer
	b.Feed([]byte("data: [DONE]\r\n"))

	line, ok := b.Next()
	assert.True(t, ok)
	assert.Equal(t, "data: [DONE]", line)
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		kind    EventKind
		content string
	}{
		{
			name:    "delta",
			line:    `data: {"choices":[{"delta":{"content":"hello"}}]}`,
			kind:    EventDelta,
			content: "hello",
		},
		{
			name: "done",
			line: "data: [DONE]",
			kind: EventDone,
		},
		{
			name: "blank line",
			line: "",
			kind: EventSkip,
		},
		{
			name: "comment",
			line: ": keep-alive",
			kind: EventSkip,
		},
		{
			name: "event field",
			line: "event: message",
			kind: EventSkip,
		},
		{
			name: "malformed json",
			line: "data: {not json",
			kind: EventSkip,
		},
		{
			name:    "multiple choices concatenated",
			line:    `data: {"choices":[{"delta":{"content":"a"}},{"delta":{"content":"b"}}]}`,
			kind:    EventDelta,
			content: "ab",
		},
		{
			name: "empty delta",
			line: `data: {"choices":[{"delta":{}}]}`,
			kind: EventDelta,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := ParseEvent(tt.line)
			assert.Equal(t, tt.kind, event.Kind)
			assert.Equal(t, tt.content, event.Content)
		})
	}
}
