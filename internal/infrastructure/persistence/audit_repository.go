package persistence

import (
	"context"

	"github.com/convo/backend/internal/domain/audit"
	"github.com/convo/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAuditRepository implements audit.Repository using GORM
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append stores one audit entry
func (r *GormAuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	var model models.AuditLogModel
	model.FromDomain(entry)
	return r.db.WithContext(ctx).Create(&model).Error
}

// ListForConversation returns up to limit recent entries, newest first
func (r *GormAuditRepository) ListForConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*audit.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.AuditLogModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]*audit.Entry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}
