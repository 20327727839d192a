package consumer

import (
	"encoding/json"
	"strings"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"
)

// LineBuffer accumulates raw stream bytes and yields complete lines.
// A trailing line without its newline stays buffered until more bytes
// arrive, so a delta split across two reads is never parsed in halves.
type LineBuffer struct {
	buf []byte
}

// Feed appends raw bytes from the transport.
func (b *LineBuffer) Feed(p []byte) {
	b.buf = append(b.buf, p...)
}

// Next pops the earliest complete line, with line endings stripped.
// ok is false when no complete line is buffered yet.
func (b *LineBuffer) Next() (line string, ok bool) {
	idx := -1
	for i, c := range b.buf {
		if c == '\n' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}
	raw := b.buf[:idx]
	b.buf = b.buf[idx+1:]
	if n := len(raw); n > 0 && raw[n-1] == '\r' {
		raw = raw[:n-1]
	}
	return string(raw), true
}

// Rest returns whatever is buffered after the stream closed, usually an
// incomplete trailing line.
func (b *LineBuffer) Rest() string {
	return string(b.buf)
}

// EventKind classifies one parsed SSE line.
type EventKind int

const (
	// EventSkip is a blank line, comment or non-data field.
	EventSkip EventKind = iota
	// EventDelta carries assistant text.
	EventDelta
	// EventDone is the [DONE] terminator.
	EventDone
)

// Event is one decoded stream event.
type Event struct {
	Kind    EventKind
	Content string
}

// ParseEvent decodes one complete SSE line. Unparseable data payloads are
// skipped rather than failing the stream; the model sometimes interleaves
// keep-alive noise.
func ParseEvent(line string) Event {
	data, found := strings.CutPrefix(line, dataPrefix)
	if !found {
		return Event{Kind: EventSkip}
	}
	if data == doneMarker {
		return Event{Kind: EventDone}
	}

	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return Event{Kind: EventSkip}
	}

	var content strings.Builder
	for _, choice := range chunk.Choices {
		content.WriteString(choice.Delta.Content)
	}
	return Event{Kind: EventDelta, Content: content.String()}
}
