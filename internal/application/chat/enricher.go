package chat

import (
	"context"

	"github.com/convo/backend/internal/domain/conversation"
)

// NoopEnricher is the default context enricher: it contributes nothing.
// Production wiring replaces it with catalog search.
type NoopEnricher struct{}

// NewNoopEnricher creates a NoopEnricher
func NewNoopEnricher() *NoopEnricher {
	return &NoopEnricher{}
}

// Enrich returns no enrichment
func (e *NoopEnricher) Enrich(context.Context, *conversation.Conversation, []*conversation.Turn, conversation.ClassifiedMessage) (map[string]string, error) {
	return nil, nil
}
