package persistence

import (
	"context"
	"errors"

	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/convo/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormConversationRepository implements conversation.ConversationRepository using GORM
type GormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository creates a new GormConversationRepository
func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

// Upsert finds the conversation by (channel, externalID) or creates it
func (r *GormConversationRepository) Upsert(ctx context.Context, conv *conversation.Conversation) (*conversation.Conversation, error) {
	var model models.ConversationModel
	model.FromDomain(conv)

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel"}, {Name: "external_id"}},
			DoNothing: true,
		}).
		Create(&model).Error; err != nil {
		return nil, err
	}

	var stored models.ConversationModel
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND external_id = ?", string(conv.Channel), conv.ExternalID).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return stored.ToDomain(), nil
}

// FindByID finds a conversation by its ID
func (r *GormConversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	var model models.ConversationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
