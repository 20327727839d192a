// Package consumer is the client-side streaming SDK: it sends a turn to
// the chat gateway, parses the SSE stream incrementally, persists both
// sides of the exchange idempotently and applies any artifact the model
// produced.
package consumer

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/domain/chat"
	"github.com/ventureforge/pipeline-server/internal/domain/envelope"
	"github.com/ventureforge/pipeline-server/internal/utils/idgen"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

const (
	defaultIdleTimeout = 30 * time.Second
	readBufferSize     = 4096

	// Pending echo marks whose realtime delivery never arrives are dropped
	// after this long, and the set never grows past the cap.
	pendingEchoTTL = 5 * time.Minute
	pendingEchoCap = 256
)

// ErrSuperseded reports that a newer send on the same conversation
// replaced this one. Callers drop it silently; it is not a failure.
var ErrSuperseded = errors.New("send superseded by a newer one")

// Transport opens the gateway SSE stream for one turn.
type Transport interface {
	OpenStream(ctx context.Context, req *TurnRequest) (io.ReadCloser, error)
}

// MessageStore persists conversation turns. Append must treat duplicate
// message IDs as success.
type MessageStore interface {
	Append(ctx context.Context, msg *chat.Message) error
}

// ArtifactApplier hands a decoded envelope's artifact to the pipeline.
type ArtifactApplier interface {
	Apply(ctx context.Context, projectID string, payload *envelope.ArtifactPayload) error
}

// TurnRequest is one outbound user turn with the full prior history.
type TurnRequest struct {
	ProjectID      string
	ConversationID string
	History        []*chat.Message
	UserText       string

	// UserMessageID is filled in by Send before the stream opens.
	UserMessageID string
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	AssistantMessageID string
	FullText           string
	Envelope           *envelope.Envelope
	DisplayText        string
}

// Consumer drives turns against the gateway. It is safe for concurrent
// use; sends on the same conversation are single-flight.
type Consumer struct {
	transport   Transport
	store       MessageStore
	applier     ArtifactApplier
	idleTimeout time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightSend
	pending  map[string]time.Time
}

// inflightSend identifies one active send so unregister only removes its
// own registration.
type inflightSend struct {
	cancel context.CancelFunc
}

func New(transport Transport, store MessageStore, applier ArtifactApplier, idleTimeout time.Duration, logger zerolog.Logger) *Consumer {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	return &Consumer{
		transport:   transport,
		store:       store,
		applier:     applier,
		idleTimeout: idleTimeout,
		logger:      logger,
		inflight:    make(map[string]*inflightSend),
		pending:     make(map[string]time.Time),
	}
}

// Send runs one turn: persist the user message, stream the reply, persist
// the assistant message and apply any artifact. onDelta receives each text
// chunk as it arrives and may be nil.
//
// A second Send on the same conversation aborts the first one, which then
// returns ErrSuperseded.
func (c *Consumer) Send(ctx context.Context, req *TurnRequest, onDelta func(string)) (*TurnResult, error) {
	userID, err := idgen.GenerateSecureID("msg", 16)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerConsumer, err, "failed to generate message id")
	}
	req.UserMessageID = userID
	c.markPending(userID)

	// Persist first so a crashed stream never loses the user's words.
	// A retry of the whole Send stores nothing twice.
	userMsg := &chat.Message{
		PublicID:       userID,
		ConversationID: req.ConversationID,
		Role:           chat.RoleUser,
		Content:        req.UserText,
		Sequence:       int64(len(req.History)),
		CreatedAt:      time.Now().UTC(),
	}
	if err := c.store.Append(ctx, userMsg); err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	entry := c.register(req.ConversationID, cancel)
	defer c.unregister(req.ConversationID, entry)

	body, err := c.transport.OpenStream(streamCtx, req)
	if err != nil {
		if streamCtx.Err() != nil && ctx.Err() == nil {
			return nil, ErrSuperseded
		}
		return nil, err
	}
	defer body.Close()

	fullText, err := c.readStream(streamCtx, body, onDelta)
	if err != nil {
		if streamCtx.Err() != nil && ctx.Err() == nil {
			return nil, ErrSuperseded
		}
		return nil, err
	}

	return c.complete(ctx, req, fullText)
}

// readStream pulls the SSE body through the line buffer until [DONE],
// enforcing the idle timeout between reads. Reads run in a goroutine so
// the select can race them against the watchdog and cancellation.
func (c *Consumer) readStream(ctx context.Context, body io.Reader, onDelta func(string)) (string, error) {
	type readResult struct {
		data []byte
		err  error
	}

	reads := make(chan readResult, 1)
	go func() {
		buf := make([]byte, readBufferSize)
		for {
			n, err := body.Read(buf)
			res := readResult{err: err}
			if n > 0 {
				res.data = append([]byte(nil), buf[:n]...)
			}
			select {
			case reads <- res:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var lines LineBuffer
	var fullText strings.Builder
	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case res := <-reads:
			if len(res.data) > 0 {
				lines.Feed(res.data)
				done, err := c.drainLines(&lines, &fullText, onDelta)
				if err != nil {
					return "", err
				}
				if done {
					return fullText.String(), nil
				}
			}
			if res.err != nil {
				if res.err == io.EOF {
					return "", platformerrors.NewError(ctx, platformerrors.LayerConsumer,
						platformerrors.ErrorTypeStreamInterrupted,
						"stream ended without completion marker", nil, "")
				}
				return "", platformerrors.NewError(ctx, platformerrors.LayerConsumer,
					platformerrors.ErrorTypeStreamInterrupted,
					"stream read failed", res.err, "")
			}

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(c.idleTimeout)

		case <-idle.C:
			return "", platformerrors.NewError(ctx, platformerrors.LayerConsumer,
				platformerrors.ErrorTypeTimeout,
				"no stream activity within the idle window", nil, "")

		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (c *Consumer) drainLines(lines *LineBuffer, fullText *strings.Builder, onDelta func(string)) (bool, error) {
	for {
		line, ok := lines.Next()
		if !ok {
			return false, nil
		}
		event := ParseEvent(line)
		switch event.Kind {
		case EventDone:
			return true, nil
		case EventDelta:
			fullText.WriteString(event.Content)
			if onDelta != nil {
				onDelta(event.Content)
			}
		}
	}
}

// complete persists the assistant turn and applies the envelope.
func (c *Consumer) complete(ctx context.Context, req *TurnRequest, fullText string) (*TurnResult, error) {
	assistantID, err := idgen.GenerateSecureID("msg", 16)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerConsumer, err, "failed to generate message id")
	}
	c.markPending(assistantID)

	if err := c.store.Append(ctx, &chat.Message{
		PublicID:       assistantID,
		ConversationID: req.ConversationID,
		Role:           chat.RoleAssistant,
		Content:        fullText,
		Sequence:       int64(len(req.History)) + 1,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	result := &TurnResult{
		AssistantMessageID: assistantID,
		FullText:           fullText,
		DisplayText:        envelope.Preview(fullText),
	}

	env, decodeErr := envelope.Decode(fullText)
	if decodeErr != nil {
		// A malformed envelope is not a failed turn; the raw preview is
		// still shown and no artifact is applied.
		c.logger.Warn().
			Str("reason", string(decodeErr.Reason)).
			Str("conversation_id", req.ConversationID).
			Msg("assistant reply failed envelope decode")
		return result, nil
	}

	result.Envelope = env
	result.DisplayText = env.Message

	if env.Artifact != nil && c.applier != nil {
		if err := c.applier.Apply(ctx, req.ProjectID, env.Artifact); err != nil {
			c.logger.Warn().Err(err).
				Str("project_id", req.ProjectID).
				Str("stage", string(env.Artifact.Type)).
				Msg("artifact from envelope was rejected")
		}
	}

	return result, nil
}

// IsLocalEcho reports whether a realtime-delivered message originated from
// this consumer, consuming the pending mark when it does.
func (c *Consumer) IsLocalEcho(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.pending[messageID]
	if !ok {
		return false
	}
	delete(c.pending, messageID)
	return time.Since(at) <= pendingEchoTTL
}

func (c *Consumer) markPending(messageID string) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, at := range c.pending {
		if now.Sub(at) > pendingEchoTTL {
			delete(c.pending, id)
		}
	}
	if len(c.pending) >= pendingEchoCap {
		oldestID := ""
		var oldestAt time.Time
		for id, at := range c.pending {
			if oldestID == "" || at.Before(oldestAt) {
				oldestID, oldestAt = id, at
			}
		}
		delete(c.pending, oldestID)
	}
	c.pending[messageID] = now
}

// register cancels any in-flight send for the conversation and installs
// this one.
func (c *Consumer) register(conversationID string, cancel context.CancelFunc) *inflightSend {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.inflight[conversationID]; ok {
		prev.cancel()
	}
	entry := &inflightSend{cancel: cancel}
	c.inflight[conversationID] = entry
	return entry
}

func (c *Consumer) unregister(conversationID string, entry *inflightSend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Only remove our own registration; a newer send may have replaced it.
	if current, ok := c.inflight[conversationID]; ok && current == entry {
		delete(c.inflight, conversationID)
	}
	entry.cancel()
}
