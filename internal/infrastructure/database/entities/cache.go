package entities

import "time"

// TableName specifies the table name for CacheEntry.
func (CacheEntry) TableName() string {
	return "cache_entry"
}

// CacheEntry represents one cached completion keyed by prompt hash.
type CacheEntry struct {
	PromptHash  string `gorm:"primaryKey;size:64"`
	Response    string `gorm:"type:text"`
	Model       string `gorm:"size:128"`
	PromptChars int    `gorm:"default:0"`
	HitCount    int64  `gorm:"default:0"`
	CreatedAt   time.Time
	ExpiresAt   time.Time `gorm:"index:idx_cache_entry_expires"`
}
