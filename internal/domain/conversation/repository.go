package conversation

import (
	"context"

	"github.com/google/uuid"
)

// ClaimResult is the outcome of attempting to claim an external event
type ClaimResult struct {
	// Duplicate is true when the (channel, externalEventID) pair was
	// already claimed by an earlier or concurrent delivery
	Duplicate bool
	// Event is the stored event row (the existing one when Duplicate)
	Event *ExternalEvent
}

// EventRepository persists external events and provides the single atomic
// synchronization point of the pipeline: Claim must be a conditional insert
// such that two concurrent claims for the same (channel, externalEventID)
// never both observe Duplicate == false.
type EventRepository interface {
	// Claim inserts the event if the (channel, externalEventID) pair is
	// unseen. If the underlying write fails the event counts as not
	// claimed and the error is returned.
	Claim(ctx context.Context, event *ExternalEvent) (*ClaimResult, error)

	// MarkProcessed is a terminal transition from received. Idempotent:
	// calling it again, or after MarkFailed, is a no-op.
	MarkProcessed(ctx context.Context, channel Channel, externalEventID string) error

	// MarkFailed is the terminal failure transition. Idempotent.
	MarkFailed(ctx context.Context, channel Channel, externalEventID string, cause string) error

	// FindByKey returns the stored event for the pair, or shared.ErrNotFound
	FindByKey(ctx context.Context, channel Channel, externalEventID string) (*ExternalEvent, error)
}

// TurnRepository persists conversation turns. Turns are append-only.
type TurnRepository interface {
	Save(ctx context.Context, turn *Turn) error

	// LastForEvent returns the turn persisted for an external event, used
	// to replay the original reply on duplicate deliveries.
	LastForEvent(ctx context.Context, channel Channel, externalEventID string) (*Turn, error)

	// LastForConversation returns the most recent turn; its metadata
	// carries the current guest-flow state.
	LastForConversation(ctx context.Context, conversationID uuid.UUID) (*Turn, error)

	// History returns up to limit recent turns, oldest first
	History(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Turn, error)
}

// UserRepository resolves and persists chat users
type UserRepository interface {
	// Upsert finds the user by (channel, externalID) or creates it
	Upsert(ctx context.Context, user *User) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// ConversationRepository resolves and persists conversations
type ConversationRepository interface {
	// Upsert finds the conversation by (channel, externalID) or creates it
	Upsert(ctx context.Context, conv *Conversation) (*Conversation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
}
