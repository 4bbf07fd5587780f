// Package chat orchestrates the processing of one inbound chat message:
// exactly-once event claiming, guest order verification, reply resolution,
// turn persistence and auditing.
package chat

import (
	"context"

	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/orders"
)

// IntentClassifier resolves the coarse intent of an inbound message. The
// production classifier is an external service; the in-process default is
// keyword based.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (conversation.ClassifiedMessage, error)
}

// ContextEnricher gathers auxiliary context for reply generation, for
// example catalog hits for a products question. Enrichment is best effort:
// a failing enricher degrades the reply, it never fails the turn.
type ContextEnricher interface {
	Enrich(ctx context.Context, conv *conversation.Conversation, history []*conversation.Turn, msg conversation.ClassifiedMessage) (map[string]string, error)
}

// ReplyInput is everything a reply generator may draw on
type ReplyInput struct {
	Message    conversation.ClassifiedMessage
	History    []*conversation.Turn
	Enrichment map[string]string
}

// ReplyGenerator produces the assistant reply for messages the guest
// verification flow did not handle deterministically.
type ReplyGenerator interface {
	Generate(ctx context.Context, in ReplyInput) (string, error)
}

// GuestReplier renders the deterministic wording of the guest verification
// flow. Each outcome class gets distinct wording: a data mismatch must never
// read like a throttle, and a throttle must never read like a mismatch.
type GuestReplier interface {
	AskHasData() string
	AskPayload() string
	AskMissing(missingFactors int, missingOrderID bool) string
	RequiresAuth() string
	LookupReply(result *orders.LookupResult) string
	RateLimited() string
	BackendError() string
}
