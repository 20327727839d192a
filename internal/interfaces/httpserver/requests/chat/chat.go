// Package chatrequests defines the chat gateway request payloads.
package chatrequests

import (
	"context"
	"fmt"

	"github.com/ventureforge/pipeline-server/internal/domain/chat"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// InboundMessage is one conversation turn from the client.
type InboundMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// ChatRequest is the body of POST /v1/chat. The client sends the full
// message history on every request; the server holds no session state.
// ProjectID is optional: without it the turn runs as plain chat, with no
// pipeline context injected.
type ChatRequest struct {
	ProjectID      string           `json:"project_id"`
	ConversationID string           `json:"conversation_id" binding:"required"`
	Messages       []InboundMessage `json:"messages" binding:"required"`
}

// Validate applies the gateway's request limits: a bounded message count,
// a closed role set and a per-message size cap.
func (r *ChatRequest) Validate(ctx context.Context, maxMessages, maxMessageChars int) error {
	if len(r.Messages) == 0 {
		return validationError(ctx, "messages must not be empty")
	}
	if len(r.Messages) > maxMessages {
		return validationError(ctx, fmt.Sprintf("too many messages: %d exceeds the limit of %d", len(r.Messages), maxMessages))
	}
	for i, msg := range r.Messages {
		if !chat.Role(msg.Role).IsValid() {
			return validationError(ctx, fmt.Sprintf("messages[%d]: unknown role %q", i, msg.Role))
		}
		if msg.Content == "" {
			return validationError(ctx, fmt.Sprintf("messages[%d]: content must not be empty", i))
		}
		if len(msg.Content) > maxMessageChars {
			return validationError(ctx, fmt.Sprintf("messages[%d]: content exceeds %d characters", i, maxMessageChars))
		}
	}
	last := r.Messages[len(r.Messages)-1]
	if chat.Role(last.Role) != chat.RoleUser {
		return validationError(ctx, "last message must be from the user")
	}
	return nil
}

func validationError(ctx context.Context, message string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRoute, platformerrors.ErrorTypeValidation, message, nil, "")
}
