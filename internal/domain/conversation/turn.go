package conversation

import (
	"github.com/convo/backend/internal/domain/orders"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Role is the author of a message within a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// LookupTrace records the outcome of an order lookup performed during a
// turn. It is kept as turn metadata for observability; lookup attempts have
// no row of their own and do not outlive the request.
type LookupTrace struct {
	OrderID         int64                   `json:"order_id"`
	FactorsProvided int                     `json:"factors_provided"`
	FactorKinds     []orders.FactorKind     `json:"factor_kinds,omitempty"`
	ResultCode      orders.LookupResultCode `json:"result_code"`
	HTTPStatus      int                     `json:"http_status"`
	Attempts        int                     `json:"attempts"`
}

// TurnMetadata is the decision trail persisted alongside each turn. The
// guest-flow state a conversation is in is reconstructed by reading
// GuestState from the latest turn, so there is no dedicated state table.
type TurnMetadata struct {
	Intent       Intent       `json:"intent"`
	Confidence   float64      `json:"confidence,omitempty"`
	GuestState   GuestState   `json:"guest_state"`
	Lookup       *LookupTrace `json:"lookup,omitempty"`
	RateLimited  bool         `json:"rate_limited,omitempty"`
	Degraded     bool         `json:"degraded,omitempty"`
	Duplicate    bool         `json:"duplicate,omitempty"`
	Deterministic bool        `json:"deterministic,omitempty"`
}

// Turn is one user message plus the assistant reply it produced, tagged with
// the external event that carried the user message. For a given
// (channel, externalEventID) at most one turn is ever persisted; that
// guarantee is enforced by the event claim, not by the turn table alone.
// A persisted turn is immutable.
type Turn struct {
	shared.BaseEntity
	ConversationID  uuid.UUID
	UserID          uuid.UUID
	Channel         Channel
	ExternalEventID string
	UserMessage     string
	AssistantReply  string
	Metadata        TurnMetadata
}
