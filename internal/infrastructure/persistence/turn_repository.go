package persistence

import (
	"context"
	"errors"

	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/convo/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTurnRepository implements conversation.TurnRepository using GORM
type GormTurnRepository struct {
	db *gorm.DB
}

// NewGormTurnRepository creates a new GormTurnRepository
func NewGormTurnRepository(db *gorm.DB) *GormTurnRepository {
	return &GormTurnRepository{db: db}
}

// Save appends a turn
func (r *GormTurnRepository) Save(ctx context.Context, turn *conversation.Turn) error {
	var model models.TurnModel
	model.FromDomain(turn)
	return r.db.WithContext(ctx).Create(&model).Error
}

// LastForEvent returns the turn persisted for an external event
func (r *GormTurnRepository) LastForEvent(ctx context.Context, channel conversation.Channel, externalEventID string) (*conversation.Turn, error) {
	var model models.TurnModel
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND external_event_id = ?", string(channel), externalEventID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// LastForConversation returns the most recent turn of a conversation
func (r *GormTurnRepository) LastForConversation(ctx context.Context, conversationID uuid.UUID) (*conversation.Turn, error) {
	var model models.TurnModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID.String()).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// History returns up to limit recent turns, oldest first
func (r *GormTurnRepository) History(ctx context.Context, conversationID uuid.UUID, limit int) ([]*conversation.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	var rows []models.TurnModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	turns := make([]*conversation.Turn, len(rows))
	for i := range rows {
		// rows come newest first, reverse into chronological order
		turns[len(rows)-1-i] = rows[i].ToDomain()
	}
	return turns, nil
}
