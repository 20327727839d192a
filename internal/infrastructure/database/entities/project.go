package entities

import "time"

// TableName specifies the table name for Project.
func (Project) TableName() string {
	return "project"
}

// Project represents the persisted venture project record.
type Project struct {
	ID        uint   `gorm:"primaryKey"`
	PublicID  string `gorm:"uniqueIndex;size:64"`
	UserID    string `gorm:"size:64;index:idx_project_user"`
	Name      string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
