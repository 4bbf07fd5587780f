// Package audit defines the append-only audit trail written once per
// pipeline execution, including duplicate and failure executions.
package audit

import (
	"context"

	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Status is the outcome class of one pipeline execution
type Status string

const (
	StatusSuccess      Status = "success"
	StatusFailure      Status = "failure"
	StatusRequiresAuth Status = "requires_auth"
	StatusDuplicate    Status = "duplicate"
)

// Entry records one turn-pipeline execution. Entries are created exactly
// once per execution and never mutated or deleted.
type Entry struct {
	shared.BaseEntity
	RequestID      string
	Channel        conversation.Channel
	UserID         uuid.UUID
	ConversationID uuid.UUID
	Intent         conversation.Intent
	Status         Status
	Message        string
	LatencyMs      int64
	ErrorCode      string
	Metadata       map[string]any
}

// Repository appends audit entries. Append failures must never fail the
// turn they describe; callers log and continue.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	ListForConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Entry, error)
}
