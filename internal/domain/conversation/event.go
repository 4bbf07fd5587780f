package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/convo/backend/internal/domain/shared"
)

// Channel identifies the inbound messaging channel
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelWhatsApp Channel = "whatsapp"
)

// IsValid reports whether the channel is a known value
func (c Channel) IsValid() bool {
	return c == ChannelWeb || c == ChannelWhatsApp
}

// EventStatus is the processing status of an external event
type EventStatus string

const (
	EventReceived  EventStatus = "received"
	EventProcessed EventStatus = "processed"
	EventFailed    EventStatus = "failed"
)

// ExternalEvent records one inbound delivery attempt. The pair
// (Channel, ExternalEventID) is unique: a second claim for the same pair
// never creates a second event. Events are created on first sight, moved to
// processed or failed exactly once, and never deleted by the pipeline.
type ExternalEvent struct {
	shared.BaseEntity
	Channel         Channel
	ExternalEventID string
	RequestID       string
	Payload         []byte
	Status          EventStatus
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	Error           string
}

// NewExternalEvent creates an event in the received state
func NewExternalEvent(channel Channel, externalEventID, requestID string, payload []byte) *ExternalEvent {
	return &ExternalEvent{
		BaseEntity:      shared.NewBaseEntity(),
		Channel:         channel,
		ExternalEventID: externalEventID,
		RequestID:       requestID,
		Payload:         payload,
		Status:          EventReceived,
		ReceivedAt:      time.Now(),
	}
}

// DeriveEventID derives a stable external event id from the raw request
// body. Used when the caller supplies no idempotency header; identical
// retried payloads always derive the same id.
func DeriveEventID(rawBody []byte) string {
	sum := sha256.Sum256(rawBody)
	return hex.EncodeToString(sum[:])
}
