package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/convo/backend/internal/application/chat"
	"github.com/convo/backend/internal/domain/audit"
	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/convo/backend/internal/interfaces/http/dto"
	"github.com/convo/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTurnProcessor is a mock implementation of TurnProcessor
type MockTurnProcessor struct {
	mock.Mock
}

func (m *MockTurnProcessor) Process(ctx context.Context, req chat.TurnRequest) (*chat.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.Result), args.Error(1)
}

func newChatTestRouter(processor TurnProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.RequestID())
	group := engine.Group("/api/v1")
	NewChatHandler(processor, nil).RegisterRoutes(group)
	return engine
}

func postChatMessage(t *testing.T, engine *gin.Engine, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/message", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	return recorder
}

func TestChatHandler_PostMessage(t *testing.T) {
	t.Run("happy path returns the reply", func(t *testing.T) {
		processor := new(MockTurnProcessor)
		conversationID := uuid.New()

		processor.On("Process", mock.Anything, mock.MatchedBy(func(req chat.TurnRequest) bool {
			return req.Channel == conversation.ChannelWeb &&
				req.Text == "hola" &&
				req.UserExternalID == "widget-1" &&
				req.ExternalEventID != ""
		})).Return(&chat.Result{
			Reply:          "¡Hola!",
			ConversationID: conversationID,
			Status:         audit.StatusSuccess,
		}, nil)

		recorder := postChatMessage(t, newChatTestRouter(processor),
			dto.ChatMessageRequest{SessionID: "widget-1", Text: "hola"}, nil)

		require.Equal(t, http.StatusOK, recorder.Code)
		var resp struct {
			Success bool                    `json:"success"`
			Data    dto.ChatMessageResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "¡Hola!", resp.Data.Reply)
		assert.Equal(t, conversationID.String(), resp.Data.ConversationID)
		assert.Equal(t, "success", resp.Data.Status)
		processor.AssertExpectations(t)
	})

	t.Run("explicit event id header wins over the derived one", func(t *testing.T) {
		processor := new(MockTurnProcessor)
		processor.On("Process", mock.Anything, mock.MatchedBy(func(req chat.TurnRequest) bool {
			return req.ExternalEventID == "evt-explicit"
		})).Return(&chat.Result{Status: audit.StatusSuccess}, nil)

		recorder := postChatMessage(t, newChatTestRouter(processor),
			dto.ChatMessageRequest{SessionID: "widget-1", Text: "hola"},
			map[string]string{"X-External-Event-Id": "evt-explicit"})

		require.Equal(t, http.StatusOK, recorder.Code)
		processor.AssertExpectations(t)
	})

	t.Run("identical bodies derive identical event ids", func(t *testing.T) {
		processor := new(MockTurnProcessor)
		var seen []string
		processor.On("Process", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				seen = append(seen, args.Get(1).(chat.TurnRequest).ExternalEventID)
			}).
			Return(&chat.Result{Status: audit.StatusSuccess}, nil).Twice()

		engine := newChatTestRouter(processor)
		body := dto.ChatMessageRequest{SessionID: "widget-1", Text: "hola"}
		postChatMessage(t, engine, body, nil)
		postChatMessage(t, engine, body, nil)

		require.Len(t, seen, 2)
		assert.Equal(t, seen[0], seen[1])
	})

	t.Run("malformed JSON is rejected", func(t *testing.T) {
		processor := new(MockTurnProcessor)
		engine := newChatTestRouter(processor)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/message", bytes.NewReader([]byte("{nope")))
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		processor.AssertNotCalled(t, "Process")
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		processor := new(MockTurnProcessor)

		recorder := postChatMessage(t, newChatTestRouter(processor),
			dto.ChatMessageRequest{SessionID: "", Text: "hola"}, nil)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		processor.AssertNotCalled(t, "Process")
	})

	t.Run("domain errors map to 400 with their code", func(t *testing.T) {
		processor := new(MockTurnProcessor)
		processor.On("Process", mock.Anything, mock.Anything).
			Return(nil, shared.NewDomainError("MESSAGE_TOO_LONG", "Message exceeds 2000 characters"))

		recorder := postChatMessage(t, newChatTestRouter(processor),
			dto.ChatMessageRequest{SessionID: "widget-1", Text: "hola"}, nil)

		require.Equal(t, http.StatusBadRequest, recorder.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, "MESSAGE_TOO_LONG", resp.Error.Code)
	})

	t.Run("unexpected errors map to 500", func(t *testing.T) {
		processor := new(MockTurnProcessor)
		processor.On("Process", mock.Anything, mock.Anything).
			Return(nil, assert.AnError)

		recorder := postChatMessage(t, newChatTestRouter(processor),
			dto.ChatMessageRequest{SessionID: "widget-1", Text: "hola"}, nil)

		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	})
}
