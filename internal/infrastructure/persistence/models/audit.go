package models

import (
	"encoding/json"

	"github.com/convo/backend/internal/domain/audit"
	"github.com/convo/backend/internal/domain/conversation"
)

// AuditLogModel is the persistence model for pipeline audit entries.
type AuditLogModel struct {
	BaseModel
	RequestID      string `gorm:"type:varchar(64);index"`
	Channel        string `gorm:"type:varchar(20);not null"`
	UserID         string `gorm:"type:uuid;index"`
	ConversationID string `gorm:"type:uuid;index"`
	Intent         string `gorm:"type:varchar(40)"`
	Status         string `gorm:"type:varchar(20);not null;index"`
	Message        string `gorm:"type:text"`
	LatencyMs      int64  `gorm:"not null;default:0"`
	ErrorCode      string `gorm:"type:varchar(60)"`
	Metadata       string `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// ToDomain converts the persistence model to a domain audit Entry.
func (m *AuditLogModel) ToDomain() *audit.Entry {
	entry := &audit.Entry{
		BaseEntity:     m.BaseModel.ToDomain(),
		RequestID:      m.RequestID,
		Channel:        conversation.Channel(m.Channel),
		UserID:         parseUUID(m.UserID),
		ConversationID: parseUUID(m.ConversationID),
		Intent:         conversation.Intent(m.Intent),
		Status:         audit.Status(m.Status),
		Message:        m.Message,
		LatencyMs:      m.LatencyMs,
		ErrorCode:      m.ErrorCode,
	}
	if m.Metadata != "" {
		_ = json.Unmarshal([]byte(m.Metadata), &entry.Metadata)
	}
	return entry
}

// FromDomain populates the model from a domain audit Entry.
func (m *AuditLogModel) FromDomain(e *audit.Entry) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.RequestID = e.RequestID
	m.Channel = string(e.Channel)
	m.UserID = e.UserID.String()
	m.ConversationID = e.ConversationID.String()
	m.Intent = string(e.Intent)
	m.Status = string(e.Status)
	m.Message = e.Message
	m.LatencyMs = e.LatencyMs
	m.ErrorCode = e.ErrorCode
	if len(e.Metadata) > 0 {
		if data, err := json.Marshal(e.Metadata); err == nil {
			m.Metadata = string(data)
		}
	}
}
