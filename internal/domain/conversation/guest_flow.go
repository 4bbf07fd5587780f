package conversation

import "github.com/convo/backend/internal/domain/orders"

// GuestState is the per-conversation state of the guest order-verification
// flow. It lives in the previous turn's metadata rather than a hard
// conversational lock, so every transition must degrade gracefully to
// treating the message as fresh instead of hijacking it.
type GuestState string

const (
	GuestNone             GuestState = "none"
	GuestAwaitingHasData  GuestState = "awaiting_has_data_answer"
	GuestAwaitingPayload  GuestState = "awaiting_lookup_payload"
)

// GuestAction is the side-effect descriptor produced by the reducer. The
// reducer itself performs no I/O; the caller executes the action.
type GuestAction int

const (
	// ActionFallThrough routes the message through normal intent handling
	ActionFallThrough GuestAction = iota
	// ActionAskHasData asks whether the user has order number and personal data handy
	ActionAskHasData
	// ActionAskPayload asks for the order id plus two identity factors in one message
	ActionAskPayload
	// ActionRequiresAuth directs the user to log in
	ActionRequiresAuth
	// ActionAttemptLookup triggers the rate-limited, signed order lookup
	ActionAttemptLookup
	// ActionAskMissing re-prompts for what is still missing, without
	// re-asking for data already given
	ActionAskMissing
)

// GuestStep is the result of advancing the guest flow by one message
type GuestStep struct {
	Next   GuestState
	Action GuestAction
	// MissingFactors is how many identity factors are still needed when
	// Action is ActionAskMissing
	MissingFactors int
	// MissingOrderID is set when factors were given but no order id
	MissingOrderID bool
}

// AdvanceGuestFlow is the pure reducer for the guest verification flow:
// (prior state, classified message) -> (next state, side effect). It never
// touches storage or the network.
//
// Two rules are load-bearing here. The two-factor floor: an order id with
// fewer than two identity factors never produces ActionAttemptLookup, it
// re-prompts instead. And the non-hijack rule: any message that does not
// plausibly continue the flow resets to GuestNone and falls through to
// normal intent handling.
func AdvanceGuestFlow(prior GuestState, authenticated bool, msg ClassifiedMessage) GuestStep {
	// Authenticated users never enter the guest flow; their order access
	// goes through the session instead.
	if authenticated {
		return GuestStep{Next: GuestNone, Action: ActionFallThrough}
	}

	switch prior {
	case GuestAwaitingHasData:
		return advanceFromHasData(msg)
	case GuestAwaitingPayload:
		return advanceFromPayload(msg)
	default:
		return advanceFromNone(msg)
	}
}

func advanceFromNone(msg ClassifiedMessage) GuestStep {
	if msg.Intent != IntentOrders {
		return GuestStep{Next: GuestNone, Action: ActionFallThrough}
	}

	// The message already carries an order id: skip the yes/no step.
	if msg.HasOrderID() {
		if msg.Factors.Count() >= orders.MinFactors {
			return GuestStep{Next: GuestNone, Action: ActionAttemptLookup}
		}
		if msg.Factors.Count() >= 1 {
			// Enough to bypass the yes/no question, not enough to
			// call the lookup backend.
			return GuestStep{
				Next:           GuestAwaitingPayload,
				Action:         ActionAskMissing,
				MissingFactors: orders.MinFactors - msg.Factors.Count(),
			}
		}
	}

	return GuestStep{Next: GuestAwaitingHasData, Action: ActionAskHasData}
}

func advanceFromHasData(msg ClassifiedMessage) GuestStep {
	// A user may skip the yes/no and paste the payload directly; that is a
	// plausible continuation of the flow.
	if msg.HasOrderID() || !msg.Factors.IsEmpty() {
		return advanceFromPayload(msg)
	}

	switch msg.Polarity {
	case PolarityAffirmative:
		return GuestStep{Next: GuestAwaitingPayload, Action: ActionAskPayload}
	case PolarityNegative:
		return GuestStep{Next: GuestNone, Action: ActionRequiresAuth}
	default:
		// Ambiguous or topically unrelated: never hijack, treat as fresh.
		return advanceFromNone(msg)
	}
}

func advanceFromPayload(msg ClassifiedMessage) GuestStep {
	factors := msg.Factors.Count()

	if msg.HasOrderID() {
		if factors >= orders.MinFactors {
			return GuestStep{Next: GuestNone, Action: ActionAttemptLookup}
		}
		return GuestStep{
			Next:           GuestAwaitingPayload,
			Action:         ActionAskMissing,
			MissingFactors: orders.MinFactors - factors,
		}
	}

	// Factors without an order id still continue the flow; ask for the id.
	if factors >= 1 {
		step := GuestStep{
			Next:           GuestAwaitingPayload,
			Action:         ActionAskMissing,
			MissingOrderID: true,
		}
		if factors < orders.MinFactors {
			step.MissingFactors = orders.MinFactors - factors
		}
		return step
	}

	// Nothing in the message relates to the flow: fall through.
	return advanceFromNone(msg)
}
