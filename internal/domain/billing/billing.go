// Package billing covers message credits and the usage ledger.
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CreditStore manages per-user message credit balances.
type CreditStore interface {
	// EnsureAccount creates the balance row with initial credits if the
	// user has none yet. Existing balances are left untouched.
	EnsureAccount(ctx context.Context, userID string, initial int64) error

	// Consume atomically deducts one credit. It returns
	// ErrorTypeCreditsExhausted when the balance is already zero; the
	// balance never goes negative.
	Consume(ctx context.Context, userID string) error

	// Refund returns one credit, used when a debited request never
	// reached the upstream model.
	Refund(ctx context.Context, userID string) error

	Balance(ctx context.Context, userID string) (int64, error)
}

// Usage is one billed completion, recorded after the stream finishes.
type Usage struct {
	UserID           string
	ConversationID   string
	RequestID        string
	Model            string
	CacheStatus      string
	PromptTokens     int64
	CompletionTokens int64
	Cost             decimal.Decimal
	CreatedAt        time.Time
}

// UsageRecorder appends to the usage ledger.
type UsageRecorder interface {
	Record(ctx context.Context, usage *Usage) error
}
