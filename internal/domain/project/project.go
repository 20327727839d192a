// Package project models the venture project that scopes a pipeline run.
package project

import (
	"context"
	"time"
)

// Project groups one pipeline run's conversations and artifacts.
type Project struct {
	PublicID  string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository persists projects.
type Repository interface {
	Create(ctx context.Context, project *Project) error

	// FindByPublicID returns nil, nil when the project does not exist.
	FindByPublicID(ctx context.Context, publicID string) (*Project, error)

	ListByUser(ctx context.Context, userID string) ([]*Project, error)
}
