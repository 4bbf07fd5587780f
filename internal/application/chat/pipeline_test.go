package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/convo/backend/internal/domain/audit"
	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/orders"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEventRepository is a mock implementation of conversation.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Claim(ctx context.Context, event *conversation.ExternalEvent) (*conversation.ClaimResult, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.ClaimResult), args.Error(1)
}

func (m *MockEventRepository) MarkProcessed(ctx context.Context, channel conversation.Channel, externalEventID string) error {
	args := m.Called(ctx, channel, externalEventID)
	return args.Error(0)
}

func (m *MockEventRepository) MarkFailed(ctx context.Context, channel conversation.Channel, externalEventID string, cause string) error {
	args := m.Called(ctx, channel, externalEventID, cause)
	return args.Error(0)
}

func (m *MockEventRepository) FindByKey(ctx context.Context, channel conversation.Channel, externalEventID string) (*conversation.ExternalEvent, error) {
	args := m.Called(ctx, channel, externalEventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.ExternalEvent), args.Error(1)
}

// MockTurnRepository is a mock implementation of conversation.TurnRepository
type MockTurnRepository struct {
	mock.Mock
}

func (m *MockTurnRepository) Save(ctx context.Context, turn *conversation.Turn) error {
	args := m.Called(ctx, turn)
	return args.Error(0)
}

func (m *MockTurnRepository) LastForEvent(ctx context.Context, channel conversation.Channel, externalEventID string) (*conversation.Turn, error) {
	args := m.Called(ctx, channel, externalEventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Turn), args.Error(1)
}

func (m *MockTurnRepository) LastForConversation(ctx context.Context, conversationID uuid.UUID) (*conversation.Turn, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Turn), args.Error(1)
}

func (m *MockTurnRepository) History(ctx context.Context, conversationID uuid.UUID, limit int) ([]*conversation.Turn, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*conversation.Turn), args.Error(1)
}

// MockUserRepository is a mock implementation of conversation.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Upsert(ctx context.Context, user *conversation.User) (*conversation.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.User), args.Error(1)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*conversation.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.User), args.Error(1)
}

// MockConversationRepository is a mock implementation of conversation.ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) Upsert(ctx context.Context, conv *conversation.Conversation) (*conversation.Conversation, error) {
	args := m.Called(ctx, conv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Conversation), args.Error(1)
}

func (m *MockConversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Conversation), args.Error(1)
}

// MockAuditRepository is a mock implementation of audit.Repository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) ListForConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*audit.Entry, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Entry), args.Error(1)
}

// pipelineHarness bundles a pipeline with all its mocked collaborators
type pipelineHarness struct {
	pipeline *TurnPipeline
	events   *MockEventRepository
	turns    *MockTurnRepository
	users    *MockUserRepository
	convs    *MockConversationRepository
	audits   *MockAuditRepository
	limiter  *MockRateLimiter
	client   *MockLookupClient
}

func newPipelineHarness() *pipelineHarness {
	h := &pipelineHarness{
		events:  new(MockEventRepository),
		turns:   new(MockTurnRepository),
		users:   new(MockUserRepository),
		convs:   new(MockConversationRepository),
		audits:  new(MockAuditRepository),
		limiter: new(MockRateLimiter),
		client:  new(MockLookupClient),
	}
	replies := NewTemplateReplies()
	h.pipeline = NewTurnPipeline(PipelineParams{
		Events:          h.events,
		Turns:           h.turns,
		Users:           h.users,
		Conversations:   h.convs,
		Audit:           h.audits,
		Classifier:      NewKeywordClassifier(),
		Enricher:        NewNoopEnricher(),
		Generator:       replies,
		GuestFlow:       NewGuestFlowService(h.limiter, h.client, replies, nil),
		MaxMessageChars: 2000,
		HistoryWindow:   12,
	})
	return h
}

func webRequest(text string) TurnRequest {
	return TurnRequest{
		Channel:         conversation.ChannelWeb,
		ExternalEventID: "evt-1",
		RequestID:       "req-1",
		ClientIP:        "203.0.113.7",
		Text:            text,
		UserExternalID:  "widget-session-1",
	}
}

// expectResolution wires the user/conversation/history lookups for the
// happy path
func (h *pipelineHarness) expectResolution(history []*conversation.Turn, authenticated bool) (*conversation.User, *conversation.Conversation) {
	user := &conversation.User{
		BaseEntity:    shared.NewBaseEntity(),
		Channel:       conversation.ChannelWeb,
		ExternalID:    "widget-session-1",
		Authenticated: authenticated,
	}
	conv := &conversation.Conversation{
		BaseEntity: shared.NewBaseEntity(),
		UserID:     user.ID,
		Channel:    conversation.ChannelWeb,
		ExternalID: "widget-session-1",
	}
	h.users.On("Upsert", mock.Anything, mock.Anything).Return(user, nil)
	h.convs.On("Upsert", mock.Anything, mock.Anything).Return(conv, nil)
	h.turns.On("History", mock.Anything, conv.ID, 12).Return(history, nil)
	return user, conv
}

func (h *pipelineHarness) expectFreshClaim() {
	h.events.On("Claim", mock.Anything, mock.Anything).
		Return(&conversation.ClaimResult{Duplicate: false}, nil)
}

func TestTurnPipeline_InputRejection(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		req  TurnRequest
	}{
		{"empty text", webRequest("   ")},
		{"text over the ceiling", webRequest(strings.Repeat("a", 2001))},
		{"unknown channel", TurnRequest{Channel: "sms", ExternalEventID: "evt-1", Text: "hola"}},
		{"missing event id", TurnRequest{Channel: conversation.ChannelWeb, Text: "hola"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newPipelineHarness()

			result, err := h.pipeline.Process(ctx, tc.req)

			require.Error(t, err)
			assert.Nil(t, result)
			var domainErr *shared.DomainError
			assert.ErrorAs(t, err, &domainErr)
			h.events.AssertNotCalled(t, "Claim")
			h.audits.AssertNotCalled(t, "Append")
		})
	}
}

func TestTurnPipeline_DuplicateDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("replays the persisted reply verbatim", func(t *testing.T) {
		h := newPipelineHarness()

		stored := &conversation.Turn{
			BaseEntity:      shared.NewBaseEntity(),
			ConversationID:  uuid.New(),
			UserID:          uuid.New(),
			Channel:         conversation.ChannelWeb,
			ExternalEventID: "evt-1",
			UserMessage:     "hola",
			AssistantReply:  "¡Hola! Puedo ayudarte con tus pedidos.",
			Metadata:        conversation.TurnMetadata{Intent: conversation.IntentGreeting},
		}
		h.events.On("Claim", mock.Anything, mock.Anything).
			Return(&conversation.ClaimResult{Duplicate: true, Event: &conversation.ExternalEvent{}}, nil)
		h.turns.On("LastForEvent", mock.Anything, conversation.ChannelWeb, "evt-1").
			Return(stored, nil)
		h.audits.On("Append", mock.Anything, mock.MatchedBy(func(e *audit.Entry) bool {
			return e.Status == audit.StatusDuplicate
		})).Return(nil)

		result, err := h.pipeline.Process(ctx, webRequest("hola"))
		require.NoError(t, err)

		assert.True(t, result.Duplicate)
		assert.Equal(t, audit.StatusDuplicate, result.Status)
		assert.Equal(t, stored.AssistantReply, result.Reply)
		assert.Equal(t, stored.ConversationID, result.ConversationID)

		h.turns.AssertNotCalled(t, "Save")
		h.events.AssertNotCalled(t, "MarkProcessed")
		h.users.AssertNotCalled(t, "Upsert")
		h.audits.AssertExpectations(t)
	})

	t.Run("duplicate with no persisted turn answers generically", func(t *testing.T) {
		h := newPipelineHarness()

		h.events.On("Claim", mock.Anything, mock.Anything).
			Return(&conversation.ClaimResult{Duplicate: true, Event: &conversation.ExternalEvent{}}, nil)
		h.turns.On("LastForEvent", mock.Anything, conversation.ChannelWeb, "evt-1").
			Return(nil, shared.ErrNotFound)
		h.audits.On("Append", mock.Anything, mock.Anything).Return(nil)

		result, err := h.pipeline.Process(ctx, webRequest("hola"))
		require.NoError(t, err)

		assert.True(t, result.Duplicate)
		assert.Equal(t, NewTemplateReplies().BackendError(), result.Reply)
	})
}

func TestTurnPipeline_SuccessPath(t *testing.T) {
	ctx := context.Background()

	t.Run("greeting goes through the generator", func(t *testing.T) {
		h := newPipelineHarness()
		h.expectFreshClaim()
		_, conv := h.expectResolution(nil, false)

		h.turns.On("Save", mock.Anything, mock.MatchedBy(func(turn *conversation.Turn) bool {
			return turn.ExternalEventID == "evt-1" &&
				turn.Metadata.Intent == conversation.IntentGreeting &&
				!turn.Metadata.Deterministic
		})).Return(nil)
		h.events.On("MarkProcessed", mock.Anything, conversation.ChannelWeb, "evt-1").Return(nil)
		h.audits.On("Append", mock.Anything, mock.MatchedBy(func(e *audit.Entry) bool {
			return e.Status == audit.StatusSuccess && e.Intent == conversation.IntentGreeting
		})).Return(nil)

		result, err := h.pipeline.Process(ctx, webRequest("hola!"))
		require.NoError(t, err)

		assert.Equal(t, audit.StatusSuccess, result.Status)
		assert.False(t, result.Duplicate)
		assert.Equal(t, conv.ID, result.ConversationID)
		assert.Contains(t, result.Reply, "Hola")

		h.turns.AssertExpectations(t)
		h.events.AssertExpectations(t)
		h.audits.AssertExpectations(t)
		h.client.AssertNotCalled(t, "LookupOrder")
	})

	t.Run("order question enters the guest flow", func(t *testing.T) {
		h := newPipelineHarness()
		h.expectFreshClaim()
		h.expectResolution(nil, false)

		h.turns.On("Save", mock.Anything, mock.MatchedBy(func(turn *conversation.Turn) bool {
			return turn.Metadata.GuestState == conversation.GuestAwaitingHasData &&
				turn.Metadata.Deterministic
		})).Return(nil)
		h.events.On("MarkProcessed", mock.Anything, conversation.ChannelWeb, "evt-1").Return(nil)
		h.audits.On("Append", mock.Anything, mock.Anything).Return(nil)

		result, err := h.pipeline.Process(ctx, webRequest("donde esta mi pedido?"))
		require.NoError(t, err)

		assert.Equal(t, audit.StatusSuccess, result.Status)
		assert.Contains(t, result.Reply, "número de pedido")
		h.turns.AssertExpectations(t)
	})

	t.Run("prior state is read from the latest turn", func(t *testing.T) {
		h := newPipelineHarness()
		h.expectFreshClaim()

		prior := &conversation.Turn{
			BaseEntity: shared.NewBaseEntity(),
			Metadata:   conversation.TurnMetadata{GuestState: conversation.GuestAwaitingHasData},
		}
		h.expectResolution([]*conversation.Turn{prior}, false)

		h.turns.On("Save", mock.Anything, mock.MatchedBy(func(turn *conversation.Turn) bool {
			return turn.Metadata.GuestState == conversation.GuestNone
		})).Return(nil)
		h.events.On("MarkProcessed", mock.Anything, conversation.ChannelWeb, "evt-1").Return(nil)
		h.audits.On("Append", mock.Anything, mock.MatchedBy(func(e *audit.Entry) bool {
			return e.Status == audit.StatusRequiresAuth
		})).Return(nil)

		result, err := h.pipeline.Process(ctx, webRequest("no"))
		require.NoError(t, err)

		assert.Equal(t, audit.StatusRequiresAuth, result.Status)
		assert.Contains(t, result.Reply, "cuenta")
		h.audits.AssertExpectations(t)
	})

	t.Run("blocked rate limiter never calls the lookup client", func(t *testing.T) {
		h := newPipelineHarness()
		h.expectFreshClaim()
		h.expectResolution(nil, false)

		h.limiter.On("Consume", mock.Anything, mock.Anything, mock.Anything, int64(12345)).
			Return(orders.Decision{Allowed: false, BlockedBy: orders.ScopeIP})
		h.turns.On("Save", mock.Anything, mock.MatchedBy(func(turn *conversation.Turn) bool {
			return turn.Metadata.RateLimited
		})).Return(nil)
		h.events.On("MarkProcessed", mock.Anything, conversation.ChannelWeb, "evt-1").Return(nil)
		h.audits.On("Append", mock.Anything, mock.Anything).Return(nil)

		result, err := h.pipeline.Process(ctx,
			webRequest("pedido 12345, dni 30111222, tel +54 11 4444 5555"))
		require.NoError(t, err)

		assert.Equal(t, audit.StatusSuccess, result.Status)
		h.client.AssertNotCalled(t, "LookupOrder")
		h.turns.AssertExpectations(t)
	})

	t.Run("audit append failure does not fail the turn", func(t *testing.T) {
		h := newPipelineHarness()
		h.expectFreshClaim()
		h.expectResolution(nil, false)

		h.turns.On("Save", mock.Anything, mock.Anything).Return(nil)
		h.events.On("MarkProcessed", mock.Anything, conversation.ChannelWeb, "evt-1").Return(nil)
		h.audits.On("Append", mock.Anything, mock.Anything).Return(errors.New("audit store down"))

		result, err := h.pipeline.Process(ctx, webRequest("hola"))
		require.NoError(t, err)
		assert.Equal(t, audit.StatusSuccess, result.Status)
	})
}

func TestTurnPipeline_PartialFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("claim failure surfaces as an error", func(t *testing.T) {
		h := newPipelineHarness()
		h.events.On("Claim", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		result, err := h.pipeline.Process(ctx, webRequest("hola"))

		require.Error(t, err)
		assert.Nil(t, result)
		h.events.AssertNotCalled(t, "MarkFailed")
	})

	t.Run("persist failure marks the event failed", func(t *testing.T) {
		h := newPipelineHarness()
		h.expectFreshClaim()
		h.expectResolution(nil, false)

		h.turns.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))
		h.events.On("MarkFailed", mock.Anything, conversation.ChannelWeb, "evt-1",
			mock.MatchedBy(func(cause string) bool { return strings.Contains(cause, "disk full") })).
			Return(nil)
		h.audits.On("Append", mock.Anything, mock.MatchedBy(func(e *audit.Entry) bool {
			return e.Status == audit.StatusFailure && e.ErrorCode == "PIPELINE_FAILURE"
		})).Return(nil)

		result, err := h.pipeline.Process(ctx, webRequest("hola"))
		require.NoError(t, err)

		assert.Equal(t, audit.StatusFailure, result.Status)
		assert.Equal(t, NewTemplateReplies().BackendError(), result.Reply)
		h.events.AssertNotCalled(t, "MarkProcessed")
		h.events.AssertExpectations(t)
		h.audits.AssertExpectations(t)
	})

	t.Run("mark processed failure marks the event failed", func(t *testing.T) {
		h := newPipelineHarness()
		h.expectFreshClaim()
		h.expectResolution(nil, false)

		h.turns.On("Save", mock.Anything, mock.Anything).Return(nil)
		h.events.On("MarkProcessed", mock.Anything, conversation.ChannelWeb, "evt-1").
			Return(errors.New("store unavailable"))
		h.events.On("MarkFailed", mock.Anything, conversation.ChannelWeb, "evt-1", mock.Anything).
			Return(nil)
		h.audits.On("Append", mock.Anything, mock.MatchedBy(func(e *audit.Entry) bool {
			return e.Status == audit.StatusFailure
		})).Return(nil)

		result, err := h.pipeline.Process(ctx, webRequest("hola"))
		require.NoError(t, err)

		assert.Equal(t, audit.StatusFailure, result.Status)
		h.events.AssertExpectations(t)
	})

	t.Run("resolution failure marks the event failed", func(t *testing.T) {
		h := newPipelineHarness()
		h.expectFreshClaim()

		h.users.On("Upsert", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
		h.events.On("MarkFailed", mock.Anything, conversation.ChannelWeb, "evt-1", mock.Anything).
			Return(nil)
		h.audits.On("Append", mock.Anything, mock.Anything).Return(nil)

		result, err := h.pipeline.Process(ctx, webRequest("hola"))
		require.NoError(t, err)

		assert.Equal(t, audit.StatusFailure, result.Status)
		h.turns.AssertNotCalled(t, "Save")
	})
}
