package chat

import (
	"context"
	"testing"

	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateReplies_LookupReply(t *testing.T) {
	r := NewTemplateReplies()

	t.Run("success renders the order card", func(t *testing.T) {
		reply := r.LookupReply(&orders.LookupResult{
			Code: orders.LookupSuccess,
			Order: &orders.Order{
				ID:           12345,
				State:        "shipped",
				Total:        decimal.RequireFromString("15990.50"),
				TrackingCode: "TRK-99",
			},
		})

		assert.Contains(t, reply, "#12345")
		assert.Contains(t, reply, "shipped")
		assert.Contains(t, reply, "15990.50")
		assert.Contains(t, reply, "TRK-99")
	})

	t.Run("every outcome class reads differently", func(t *testing.T) {
		codes := []orders.LookupResultCode{
			orders.LookupNotFoundOrMismatch,
			orders.LookupInvalidPayload,
			orders.LookupUnauthorized,
			orders.LookupThrottled,
		}

		seen := map[string]orders.LookupResultCode{}
		for _, code := range codes {
			reply := r.LookupReply(&orders.LookupResult{Code: code})
			require.NotEmpty(t, reply)
			prev, dup := seen[reply]
			require.False(t, dup, "codes %s and %s share wording", prev, code)
			seen[reply] = code
		}

		assert.NotEqual(t, r.RateLimited(), r.LookupReply(&orders.LookupResult{Code: orders.LookupThrottled}))
		assert.NotEqual(t, r.BackendError(), r.LookupReply(&orders.LookupResult{Code: orders.LookupNotFoundOrMismatch}))
	})
}

func TestTemplateReplies_AskMissing(t *testing.T) {
	r := NewTemplateReplies()

	assert.Contains(t, r.AskMissing(1, false), "un dato personal")
	assert.Contains(t, r.AskMissing(2, false), "2 datos")
	assert.Contains(t, r.AskMissing(0, true), "número de pedido")

	both := r.AskMissing(1, true)
	assert.Contains(t, both, "número de pedido")
	assert.Contains(t, both, "dato personal")
}

func TestTemplateReplies_Generate(t *testing.T) {
	r := NewTemplateReplies()
	ctx := context.Background()

	for _, intent := range []conversation.Intent{
		conversation.IntentOrders,
		conversation.IntentGreeting,
		conversation.IntentFarewell,
		conversation.IntentHelp,
		conversation.IntentProducts,
		conversation.IntentUnknown,
	} {
		reply, err := r.Generate(ctx, ReplyInput{Message: conversation.ClassifiedMessage{Intent: intent}})
		require.NoError(t, err)
		assert.NotEmpty(t, reply, "intent %s", intent)
	}

	t.Run("products reply uses enrichment hits", func(t *testing.T) {
		reply, err := r.Generate(ctx, ReplyInput{
			Message:    conversation.ClassifiedMessage{Intent: conversation.IntentProducts},
			Enrichment: map[string]string{"products": "Zapatilla Runner ($59.990)"},
		})
		require.NoError(t, err)
		assert.Contains(t, reply, "Zapatilla Runner")
	})
}
