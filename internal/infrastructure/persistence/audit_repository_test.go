package persistence

import (
	"context"
	"testing"

	"github.com/convo/backend/internal/domain/audit"
	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormAuditRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormAuditRepository(setupChatTestDB(t))

	conversationID := uuid.New()
	userID := uuid.New()

	entry := &audit.Entry{
		BaseEntity:     shared.NewBaseEntity(),
		RequestID:      "req-1",
		Channel:        conversation.ChannelWeb,
		UserID:         userID,
		ConversationID: conversationID,
		Intent:         conversation.IntentOrders,
		Status:         audit.StatusSuccess,
		Message:        "donde esta mi pedido",
		LatencyMs:      42,
		Metadata:       map[string]any{"order_id": float64(12345)},
	}
	require.NoError(t, repo.Append(ctx, entry))

	failure := &audit.Entry{
		BaseEntity:     shared.NewBaseEntity(),
		RequestID:      "req-2",
		Channel:        conversation.ChannelWeb,
		UserID:         userID,
		ConversationID: conversationID,
		Intent:         conversation.IntentOrders,
		Status:         audit.StatusFailure,
		ErrorCode:      "EXTERNAL_SERVICE_ERROR",
	}
	require.NoError(t, repo.Append(ctx, failure))

	t.Run("lists entries for a conversation", func(t *testing.T) {
		entries, err := repo.ListForConversation(ctx, conversationID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		statuses := []audit.Status{entries[0].Status, entries[1].Status}
		assert.Contains(t, statuses, audit.StatusSuccess)
		assert.Contains(t, statuses, audit.StatusFailure)
	})

	t.Run("round-trips metadata", func(t *testing.T) {
		entries, err := repo.ListForConversation(ctx, conversationID, 10)
		require.NoError(t, err)

		for _, e := range entries {
			if e.Status == audit.StatusSuccess {
				assert.Equal(t, float64(12345), e.Metadata["order_id"])
				assert.Equal(t, int64(42), e.LatencyMs)
			}
		}
	})

	t.Run("unknown conversation lists nothing", func(t *testing.T) {
		entries, err := repo.ListForConversation(ctx, uuid.New(), 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
