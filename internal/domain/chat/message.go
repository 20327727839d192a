// Package chat holds the conversation message model shared by the gateway
// and the streaming consumer.
package chat

import (
	"context"
	"time"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid reports whether r is one of the closed role set.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one immutable conversation turn. PublicID is generated by the
// client and acts as the idempotency key: retrying a persist with the same
// ID stores exactly one row.
type Message struct {
	PublicID       string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Sequence       int64     `json:"sequence"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repository persists chat messages.
type Repository interface {
	// Append inserts the message. Inserting an already-present PublicID
	// is a no-op success, never an error.
	Append(ctx context.Context, msg *Message) error

	ListByConversation(ctx context.Context, conversationID string) ([]*Message, error)

	// DeleteOlderThan bulk-prunes messages past the retention window and
	// returns how many rows were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
