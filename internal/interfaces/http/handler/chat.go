package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/convo/backend/internal/application/chat"
	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/convo/backend/internal/interfaces/http/dto"
	"github.com/convo/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// validate checks the binding tags on DTOs that are decoded from a raw
// body instead of through gin's binder.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

// TurnProcessor processes one inbound chat message end to end
type TurnProcessor interface {
	Process(ctx context.Context, req chat.TurnRequest) (*chat.Result, error)
}

// ChatHandler serves the web widget's message endpoint
type ChatHandler struct {
	BaseHandler
	pipeline TurnProcessor
	logger   *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(pipeline TurnProcessor, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{pipeline: pipeline, logger: logger}
}

// RegisterRoutes registers chat routes
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chat/message", h.PostMessage)
}

// PostMessage handles POST /chat/message
func (h *ChatHandler) PostMessage(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.BadRequest(c, "Cannot read request body")
		return
	}

	var req dto.ChatMessageRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeInvalidJSON), dto.ErrCodeInvalidJSON, "Malformed JSON body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeInvalidInput), dto.ErrCodeInvalidInput, "Invalid message payload: session_id and text are required")
		return
	}

	result, err := h.pipeline.Process(c.Request.Context(), chat.TurnRequest{
		Channel:         conversation.ChannelWeb,
		ExternalEventID: externalEventID(c, raw),
		RequestID:       getRequestID(c),
		ClientIP:        c.ClientIP(),
		Text:            req.Text,
		Payload:         raw,
		UserExternalID:  req.SessionID,
		DisplayName:     middleware.GetAuthName(c),
		AuthSubject:     middleware.GetAuthSubject(c),
		Authenticated:   middleware.IsAuthenticated(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Success(c, dto.ChatMessageResponse{
		Reply:          result.Reply,
		ConversationID: result.ConversationID.String(),
		Status:         string(result.Status),
		Duplicate:      result.Duplicate,
	})
}

// externalEventID resolves the delivery's idempotency key: an explicit
// header wins, otherwise the key is derived from the raw body so identical
// retried payloads dedupe.
func externalEventID(c *gin.Context, raw []byte) string {
	if id := c.GetHeader("X-External-Event-Id"); id != "" {
		return id
	}
	if id := c.GetHeader("X-Idempotency-Key"); id != "" {
		return id
	}
	return conversation.DeriveEventID(raw)
}

// respondError maps pipeline errors onto the response envelope
func (h *ChatHandler) respondError(c *gin.Context, err error) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeInvalidInput), domainErr.Code, domainErr.Message)
		return
	}

	h.logger.Error("chat message processing failed",
		zap.String("request_id", getRequestID(c)),
		zap.Error(err))
	h.Internal(c, "Failed to process message")
}
