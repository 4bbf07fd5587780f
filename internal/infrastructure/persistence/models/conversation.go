package models

import (
	"encoding/json"
	"time"

	"github.com/convo/backend/internal/domain/conversation"
)

// UserModel is the persistence model for the chat User entity.
type UserModel struct {
	BaseModel
	Channel       string `gorm:"type:varchar(20);not null;uniqueIndex:idx_users_channel_external,priority:1"`
	ExternalID    string `gorm:"type:varchar(200);not null;uniqueIndex:idx_users_channel_external,priority:2"`
	AuthSubject   string `gorm:"type:varchar(200);index"`
	DisplayName   string `gorm:"type:varchar(200)"`
	Authenticated bool   `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "chat_users"
}

// ToDomain converts the persistence model to a domain User entity.
func (m *UserModel) ToDomain() *conversation.User {
	return &conversation.User{
		BaseEntity:    m.BaseModel.ToDomain(),
		Channel:       conversation.Channel(m.Channel),
		ExternalID:    m.ExternalID,
		AuthSubject:   m.AuthSubject,
		DisplayName:   m.DisplayName,
		Authenticated: m.Authenticated,
	}
}

// FromDomain populates the model from a domain User entity.
func (m *UserModel) FromDomain(u *conversation.User) {
	m.FromDomainBaseEntity(u.BaseEntity)
	m.Channel = string(u.Channel)
	m.ExternalID = u.ExternalID
	m.AuthSubject = u.AuthSubject
	m.DisplayName = u.DisplayName
	m.Authenticated = u.Authenticated
}

// ConversationModel is the persistence model for the Conversation entity.
type ConversationModel struct {
	BaseModel
	UserID     string `gorm:"type:uuid;not null;index"`
	Channel    string `gorm:"type:varchar(20);not null;uniqueIndex:idx_conversations_channel_external,priority:1"`
	ExternalID string `gorm:"type:varchar(200);not null;uniqueIndex:idx_conversations_channel_external,priority:2"`
}

// TableName returns the table name for GORM
func (ConversationModel) TableName() string {
	return "conversations"
}

// ToDomain converts the persistence model to a domain Conversation entity.
func (m *ConversationModel) ToDomain() *conversation.Conversation {
	conv := &conversation.Conversation{
		BaseEntity: m.BaseModel.ToDomain(),
		Channel:    conversation.Channel(m.Channel),
		ExternalID: m.ExternalID,
	}
	conv.UserID = parseUUID(m.UserID)
	return conv
}

// FromDomain populates the model from a domain Conversation entity.
func (m *ConversationModel) FromDomain(c *conversation.Conversation) {
	m.FromDomainBaseEntity(c.BaseEntity)
	m.UserID = c.UserID.String()
	m.Channel = string(c.Channel)
	m.ExternalID = c.ExternalID
}

// ExternalEventModel is the persistence model for inbound delivery events.
// The composite unique index on (channel, external_event_id) backs the
// atomic claim: a conflicting insert affects zero rows.
type ExternalEventModel struct {
	BaseModel
	Channel         string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_events_channel_event,priority:1"`
	ExternalEventID string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_events_channel_event,priority:2"`
	RequestID       string     `gorm:"type:varchar(64)"`
	Payload         []byte     `gorm:"type:bytea"`
	Status          string     `gorm:"type:varchar(20);not null;default:'received';index"`
	ReceivedAt      time.Time  `gorm:"not null"`
	ProcessedAt     *time.Time `gorm:""`
	Error           string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ExternalEventModel) TableName() string {
	return "external_events"
}

// ToDomain converts the persistence model to a domain ExternalEvent entity.
func (m *ExternalEventModel) ToDomain() *conversation.ExternalEvent {
	return &conversation.ExternalEvent{
		BaseEntity:      m.BaseModel.ToDomain(),
		Channel:         conversation.Channel(m.Channel),
		ExternalEventID: m.ExternalEventID,
		RequestID:       m.RequestID,
		Payload:         m.Payload,
		Status:          conversation.EventStatus(m.Status),
		ReceivedAt:      m.ReceivedAt,
		ProcessedAt:     m.ProcessedAt,
		Error:           m.Error,
	}
}

// FromDomain populates the model from a domain ExternalEvent entity.
func (m *ExternalEventModel) FromDomain(e *conversation.ExternalEvent) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.Channel = string(e.Channel)
	m.ExternalEventID = e.ExternalEventID
	m.RequestID = e.RequestID
	m.Payload = e.Payload
	m.Status = string(e.Status)
	m.ReceivedAt = e.ReceivedAt
	m.ProcessedAt = e.ProcessedAt
	m.Error = e.Error
}

// TurnModel is the persistence model for a conversation turn.
type TurnModel struct {
	BaseModel
	ConversationID  string `gorm:"type:uuid;not null;index"`
	UserID          string `gorm:"type:uuid;not null;index"`
	Channel         string `gorm:"type:varchar(20);not null;index:idx_turns_channel_event,priority:1"`
	ExternalEventID string `gorm:"type:varchar(128);not null;index:idx_turns_channel_event,priority:2"`
	UserMessage     string `gorm:"type:text;not null"`
	AssistantReply  string `gorm:"type:text;not null"`
	Metadata        string `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (TurnModel) TableName() string {
	return "conversation_turns"
}

// ToDomain converts the persistence model to a domain Turn entity.
func (m *TurnModel) ToDomain() *conversation.Turn {
	turn := &conversation.Turn{
		BaseEntity:      m.BaseModel.ToDomain(),
		ConversationID:  parseUUID(m.ConversationID),
		UserID:          parseUUID(m.UserID),
		Channel:         conversation.Channel(m.Channel),
		ExternalEventID: m.ExternalEventID,
		UserMessage:     m.UserMessage,
		AssistantReply:  m.AssistantReply,
	}
	if m.Metadata != "" {
		_ = json.Unmarshal([]byte(m.Metadata), &turn.Metadata)
	}
	return turn
}

// FromDomain populates the model from a domain Turn entity.
func (m *TurnModel) FromDomain(t *conversation.Turn) {
	m.FromDomainBaseEntity(t.BaseEntity)
	m.ConversationID = t.ConversationID.String()
	m.UserID = t.UserID.String()
	m.Channel = string(t.Channel)
	m.ExternalEventID = t.ExternalEventID
	m.UserMessage = t.UserMessage
	m.AssistantReply = t.AssistantReply
	if data, err := json.Marshal(t.Metadata); err == nil {
		m.Metadata = string(data)
	}
}
