package entities

import "time"

// TableName specifies the table name for ChatMessage.
func (ChatMessage) TableName() string {
	return "chat_message"
}

// ChatMessage represents one persisted conversation turn. PublicID comes
// from the client and is unique per conversation, which makes retried
// inserts idempotent.
type ChatMessage struct {
	ID             uint   `gorm:"primaryKey"`
	PublicID       string `gorm:"size:64;uniqueIndex:uq_chat_message_public,priority:2"`
	ConversationID string `gorm:"size:64;uniqueIndex:uq_chat_message_public,priority:1;index:idx_chat_message_conversation,priority:1"`
	Role           string `gorm:"size:16"`
	Content        string `gorm:"type:text"`
	Sequence       int64  `gorm:"default:0;index:idx_chat_message_conversation,priority:2"`
	CreatedAt      time.Time
}

// TableName specifies the table name for ChatAuditLog.
func (ChatAuditLog) TableName() string {
	return "chat_audit_log"
}

// ChatAuditLog records one completed chat request for operational review.
type ChatAuditLog struct {
	ID             uint   `gorm:"primaryKey"`
	RequestID      string `gorm:"size:64"`
	UserID         string `gorm:"size:64;index:idx_chat_audit_log_user,priority:1"`
	ConversationID string `gorm:"size:64"`
	CacheStatus    string `gorm:"size:16"`
	PromptVersion  string `gorm:"size:32"`
	ResponseChars  int
	DurationMs     int64
	CreatedAt      time.Time `gorm:"index:idx_chat_audit_log_user,priority:2"`
}
