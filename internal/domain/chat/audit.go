package chat

import (
	"context"
	"time"
)

// AuditEntry summarizes one completed chat request.
type AuditEntry struct {
	RequestID      string
	UserID         string
	ConversationID string
	CacheStatus    string
	PromptVersion  string
	ResponseChars  int
	Duration       time.Duration
	CreatedAt      time.Time
}

// AuditRecorder appends chat audit entries. Recording is best effort; the
// gateway never fails a request over a lost audit row.
type AuditRecorder interface {
	Record(ctx context.Context, entry *AuditEntry) error
}
