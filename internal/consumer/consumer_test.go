package consumer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventureforge/pipeline-server/internal/domain/chat"
	"github.com/ventureforge/pipeline-server/internal/domain/envelope"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

type mockTransport struct {
	OpenStreamFunc func(ctx context.Context, req *TurnRequest) (io.ReadCloser, error)
}

func (m *mockTransport) OpenStream(ctx context.Context, req *TurnRequest) (io.ReadCloser, error) {
	return m.OpenStreamFunc(ctx, req)
}

type mockStore struct {
	mu       sync.Mutex
	appended []*chat.Message
}

func (m *mockStore) Append(_ context.Context, msg *chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, msg)
	return nil
}

func (m *mockStore) messages() []*chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*chat.Message(nil), m.appended...)
}

type mockApplier struct {
	ApplyFunc func(ctx context.Context, projectID string, payload *envelope.ArtifactPayload) error
	calls     int
}

func (m *mockApplier) Apply(ctx context.Context, projectID string, payload *envelope.ArtifactPayload) error {
	m.calls++
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, projectID, payload)
	}
	return nil
}

// sseBody frames text chunks as delta events followed by [DONE].
func sseBody(chunks ...string) io.ReadCloser {
	var b strings.Builder
	for _, chunk := range chunks {
		b.WriteString(fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", chunk))
	}
	b.WriteString("data: [DONE]\n")
	return io.NopCloser(strings.NewReader(b.String()))
}

// stallingBody blocks every Read until the context is cancelled.
type stallingBody struct {
	ctx context.Context
}

func (s *stallingBody) Read([]byte) (int, error) {
	<-s.ctx.Done()
	return 0, s.ctx.Err()
}

func (s *stallingBody) Close() error { return nil }

func newTestConsumer(transport Transport, store MessageStore, applier ArtifactApplier, idle time.Duration) *Consumer {
	return New(transport, store, applier, idle, zerolog.Nop())
}

func TestSendPersistsBothTurnsAndAppliesArtifact(t *testing.T) {
	envelopeJSON := `{"message": "Here is your discovery report.", "artifact": {` +
		`"type": "discovery_report", "title": "Discovery", ` +
		`"content": "A full market discovery write-up for the venture."}}`

	transport := &mockTransport{
		OpenStreamFunc: func(_ context.Context, _ *TurnRequest) (io.ReadCloser, error) {
			// Split mid-token to exercise reassembly.
			return sseBody(envelopeJSON[:17], envelopeJSON[17:]), nil
		},
	}
	store := &mockStore{}
	applier := &mockApplier{}
	c := newTestConsumer(transport, store, applier, time.Second)

	var streamed strings.Builder
	result, err := c.Send(context.Background(), &TurnRequest{
		ProjectID:      "proj_1",
		ConversationID: "conv_1",
		UserText:       "Generate my discovery report",
	}, func(chunk string) {
		streamed.WriteString(chunk)
	})
	require.NoError(t, err)

	assert.Equal(t, envelopeJSON, result.FullText)
	assert.Equal(t, envelopeJSON, streamed.String())
	require.NotNil(t, result.Envelope)
	assert.Equal(t, "Here is your discovery report.", result.DisplayText)
	assert.Equal(t, 1, applier.calls)

	msgs := store.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, "Generate my discovery report", msgs[0].Content)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, envelopeJSON, msgs[1].Content)
	assert.NotEmpty(t, msgs[0].PublicID)
	assert.NotEmpty(t, msgs[1].PublicID)
}

func TestSendMalformedEnvelopeStillSucceeds(t *testing.T) {
	raw := "I could not produce structured output this time, but here is a long plain answer instead."
	transport := &mockTransport{
		OpenStreamFunc: func(_ context.Context, _ *TurnRequest) (io.ReadCloser, error) {
			return sseBody(raw), nil
		},
	}
	store := &mockStore{}
	applier := &mockApplier{}
	c := newTestConsumer(transport, store, applier, time.Second)

	result, err := c.Send(context.Background(), &TurnRequest{
		ProjectID:      "proj_1",
		ConversationID: "conv_1",
		UserText:       "hello",
	}, nil)
	require.NoError(t, err)

	assert.Nil(t, result.Envelope)
	assert.Equal(t, raw, result.DisplayText)
	assert.Zero(t, applier.calls)
	assert.Len(t, store.messages(), 2)
}

func TestSendIdleTimeout(t *testing.T) {
	transport := &mockTransport{
		OpenStreamFunc: func(ctx context.Context, _ *TurnRequest) (io.ReadCloser, error) {
			return &stallingBody{ctx: ctx}, nil
		},
	}
	c := newTestConsumer(transport, &mockStore{}, nil, 30*time.Millisecond)

	_, err := c.Send(context.Background(), &TurnRequest{
		ProjectID:      "proj_1",
		ConversationID: "conv_1",
		UserText:       "hello",
	}, nil)
	require.Error(t, err)
	assert.True(t, platformerrors.IsType(err, platformerrors.ErrorTypeTimeout))
}

func TestSendStreamEndsWithoutDone(t *testing.T) {
	transport := &mockTransport{
		OpenStreamFunc: func(_ context.Context, _ *TurnRequest) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(
				"data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n")), nil
		},
	}
	c := newTestConsumer(transport, &mockStore{}, nil, time.Second)

	_, err := c.Send(context.Background(), &TurnRequest{
		ProjectID:      "proj_1",
		ConversationID: "conv_1",
		UserText:       "hello",
	}, nil)
	require.Error(t, err)
	assert.True(t, platformerrors.IsType(err, platformerrors.ErrorTypeStreamInterrupted))
}

func TestSecondSendSupersedesFirst(t *testing.T) {
	firstOpened := make(chan struct{})
	var opened sync.Once

	transport := &mockTransport{
		OpenStreamFunc: func(ctx context.Context, req *TurnRequest) (io.ReadCloser, error) {
			if req.UserText == "first" {
				opened.Do(func() { close(firstOpened) })
				return &stallingBody{ctx: ctx}, nil
			}
			return sseBody(`{"message": "second reply wins here"}`), nil
		},
	}
	store := &mockStore{}
	c := newTestConsumer(transport, store, nil, 5*time.Second)

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), &TurnRequest{
			ProjectID:      "proj_1",
			ConversationID: "conv_1",
			UserText:       "first",
		}, nil)
		firstErr <- err
	}()

	<-firstOpened
	result, err := c.Send(context.Background(), &TurnRequest{
		ProjectID:      "proj_1",
		ConversationID: "conv_1",
		UserText:       "second",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "second reply wins here", result.DisplayText)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("first send did not return after being superseded")
	}
}

func TestIsLocalEchoConsumesPendingID(t *testing.T) {
	transport := &mockTransport{
		OpenStreamFunc: func(_ context.Context, _ *TurnRequest) (io.ReadCloser, error) {
			return sseBody(`{"message": "short reply for echo test"}`), nil
		},
	}
	c := newTestConsumer(transport, &mockStore{}, nil, time.Second)

	result, err := c.Send(context.Background(), &TurnRequest{
		ProjectID:      "proj_1",
		ConversationID: "conv_1",
		UserText:       "hello",
	}, nil)
	require.NoError(t, err)

	assert.True(t, c.IsLocalEcho(result.AssistantMessageID))
	assert.False(t, c.IsLocalEcho(result.AssistantMessageID), "pending mark is consumed")
	assert.False(t, c.IsLocalEcho("msg_never_sent"))
}

func TestPendingEchoSetIsBounded(t *testing.T) {
	c := newTestConsumer(nil, &mockStore{}, nil, time.Second)

	for i := 0; i < pendingEchoCap+25; i++ {
		c.markPending(fmt.Sprintf("msg_%04d", i))
	}

	c.mu.Lock()
	size := len(c.pending)
	c.mu.Unlock()
	assert.LessOrEqual(t, size, pendingEchoCap)

	assert.True(t, c.IsLocalEcho(fmt.Sprintf("msg_%04d", pendingEchoCap+24)),
		"the newest mark must survive eviction")
	assert.False(t, c.IsLocalEcho("msg_0000"),
		"the oldest mark is evicted once the cap is hit")
}
