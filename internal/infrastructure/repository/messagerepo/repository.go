// Package messagerepo persists conversation messages.
package messagerepo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ventureforge/pipeline-server/internal/domain/chat"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/database/entities"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Repository handles chat message persistence.
type Repository struct {
	db *gorm.DB
}

var _ chat.Repository = (*Repository)(nil)

func NewRepository(db *gorm.DB) chat.Repository {
	return &Repository{db: db}
}

// Append inserts the message. The (conversation_id, public_id) unique
// constraint plus ON CONFLICT DO NOTHING makes retried persists exact
// no-ops, which is what keeps client retries idempotent.
func (r *Repository) Append(ctx context.Context, msg *chat.Message) error {
	entity := entities.ChatMessage{
		PublicID:       msg.PublicID,
		ConversationID: msg.ConversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		Sequence:       msg.Sequence,
		CreatedAt:      msg.CreatedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "public_id"}},
			DoNothing: true,
		}).
		Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to append chat message",
			err,
			"3f1a9c2e-7d4b-4e6f-8a1c-5b2d9e0f4a7c",
		)
	}
	return nil
}

func (r *Repository) ListByConversation(ctx context.Context, conversationID string) ([]*chat.Message, error) {
	var rows []entities.ChatMessage
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sequence ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list chat messages",
			err,
			"8c4d2f1a-9e6b-4a3c-b7d8-0e5f1a2b3c4d",
		)
	}
	messages := make([]*chat.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, mapEntity(row))
	}
	return messages, nil
}

// DeleteOlderThan bulk-prunes messages created before cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&entities.ChatMessage{})
	if result.Error != nil {
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to prune chat messages",
			result.Error,
			"b2e7f4a1-3c5d-4b8e-9f0a-6d1c2e3f4a5b",
		)
	}
	return result.RowsAffected, nil
}

func mapEntity(entity entities.ChatMessage) *chat.Message {
	return &chat.Message{
		PublicID:       entity.PublicID,
		ConversationID: entity.ConversationID,
		Role:           chat.Role(entity.Role),
		Content:        entity.Content,
		Sequence:       entity.Sequence,
		CreatedAt:      entity.CreatedAt,
	}
}
