package chat

import (
	"context"
	"strings"

	"github.com/convo/backend/internal/domain/conversation"
)

// KeywordClassifier is the in-process default intent classifier: an
// accent-insensitive keyword match over a small intent table. Production
// deployments replace it with a real classification service.
type KeywordClassifier struct{}

// NewKeywordClassifier creates a KeywordClassifier
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var intentKeywords = []struct {
	intent     conversation.Intent
	confidence float64
	words      []string
}{
	{conversation.IntentOrders, 0.9, []string{
		"pedido", "orden", "order", "compra", "envio", "seguimiento",
		"tracking", "paquete", "entrega", "despacho",
	}},
	{conversation.IntentProducts, 0.8, []string{
		"producto", "precio", "stock", "talle", "color", "catalogo",
		"disponible", "cuanto sale", "cuanto cuesta",
	}},
	{conversation.IntentGreeting, 0.9, []string{
		"hola", "buenas", "buen dia", "buenos dias", "buenas tardes",
		"buenas noches", "hello", "hi",
	}},
	{conversation.IntentFarewell, 0.9, []string{
		"chau", "adios", "hasta luego", "gracias por todo", "bye",
	}},
	{conversation.IntentHelp, 0.7, []string{
		"ayuda", "help", "no entiendo", "como funciona", "que podes hacer",
	}},
}

// Classify resolves the intent by keyword match and assembles the parsed
// view of the message
func (c *KeywordClassifier) Classify(_ context.Context, text string) (conversation.ClassifiedMessage, error) {
	normalized := conversation.Normalize(text)

	intent := conversation.IntentUnknown
	confidence := 0.0
	for _, entry := range intentKeywords {
		for _, word := range entry.words {
			if strings.Contains(normalized, word) {
				intent = entry.intent
				confidence = entry.confidence
				break
			}
		}
		if intent != conversation.IntentUnknown {
			break
		}
	}

	// A bare order id with no other clue still reads as an order question.
	msg := conversation.Classify(text, intent, confidence)
	if msg.Intent == conversation.IntentUnknown && msg.HasOrderID() {
		msg.Intent = conversation.IntentOrders
		msg.Confidence = 0.6
	}
	return msg, nil
}
