package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// TableName specifies the table name for CreditBalance.
func (CreditBalance) TableName() string {
	return "credit_balance"
}

// CreditBalance represents a user's remaining message credits.
type CreditBalance struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Balance   int64  `gorm:"default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName specifies the table name for UsageRecord.
func (UsageRecord) TableName() string {
	return "usage_record"
}

// UsageRecord represents one billed chat completion.
type UsageRecord struct {
	ID               uint   `gorm:"primaryKey"`
	UserID           string `gorm:"size:64;index:idx_usage_record_user,priority:1"`
	ConversationID   string `gorm:"size:64"`
	RequestID        string `gorm:"size:64"`
	Model            string `gorm:"size:128"`
	CacheStatus      string `gorm:"size:16"`
	PromptTokens     int64  `gorm:"default:0"`
	CompletionTokens int64  `gorm:"default:0"`
	Cost             decimal.Decimal `gorm:"type:numeric(12,6);default:0"`
	CreatedAt        time.Time       `gorm:"index:idx_usage_record_user,priority:2"`
}
