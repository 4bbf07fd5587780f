package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/convo/backend/internal/application/chat"
	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/infrastructure/signing"
	"github.com/convo/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WhatsAppHandler serves the Meta webhook endpoints for the WhatsApp channel
type WhatsAppHandler struct {
	BaseHandler
	pipeline    TurnProcessor
	signer      *signing.Signer
	verifyToken string
	logger      *zap.Logger
}

// NewWhatsAppHandler creates a new WhatsAppHandler. The signer carries the
// webhook app secret; a nil signer disables signature verification (dev
// only).
func NewWhatsAppHandler(pipeline TurnProcessor, signer *signing.Signer, verifyToken string, logger *zap.Logger) *WhatsAppHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppHandler{
		pipeline:    pipeline,
		signer:      signer,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// RegisterRoutes registers webhook routes
func (h *WhatsAppHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/channels/whatsapp/webhook", h.VerifyWebhook)
	rg.POST("/channels/whatsapp/webhook", h.ReceiveWebhook)
}

// VerifyWebhook handles Meta's webhook subscription handshake
func (h *WhatsAppHandler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.verifyToken {
		h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, "Webhook verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook handles inbound message deliveries. It always answers 200
// for valid deliveries so Meta does not retry messages we already claimed;
// per-message failures are absorbed by the pipeline's own idempotency.
func (h *WhatsAppHandler) ReceiveWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.BadRequest(c, "Cannot read request body")
		return
	}

	if h.signer != nil && !h.verifySignature(c.GetHeader("X-Hub-Signature-256"), raw) {
		h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, "Invalid webhook signature")
		return
	}

	var req dto.WhatsAppWebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeInvalidJSON), dto.ErrCodeInvalidJSON, "Malformed webhook body")
		return
	}

	replies := make([]dto.WhatsAppReply, 0)
	for _, entry := range req.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if reply := h.processMessage(c, msg, raw); reply != nil {
					replies = append(replies, *reply)
				}
			}
		}
	}

	h.Success(c, gin.H{"processed": len(replies), "replies": replies})
}

func (h *WhatsAppHandler) processMessage(c *gin.Context, msg dto.WhatsAppMessage, raw []byte) *dto.WhatsAppReply {
	if msg.Type != "text" || msg.Text == nil || msg.ID == "" {
		return nil
	}

	result, err := h.pipeline.Process(c.Request.Context(), chat.TurnRequest{
		Channel:         conversation.ChannelWhatsApp,
		ExternalEventID: msg.ID,
		RequestID:       getRequestID(c),
		ClientIP:        c.ClientIP(),
		Text:            msg.Text.Body,
		Payload:         raw,
		UserExternalID:  msg.From,
	})
	if err != nil {
		h.logger.Warn("whatsapp message rejected",
			zap.String("wamid", msg.ID),
			zap.Error(err))
		return nil
	}

	return &dto.WhatsAppReply{
		MessageID: msg.ID,
		Reply:     result.Reply,
		Status:    string(result.Status),
	}
}

// verifySignature checks the X-Hub-Signature-256 header ("sha256=<hex>")
func (h *WhatsAppHandler) verifySignature(header string, body []byte) bool {
	signature, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	return h.signer.VerifyRaw(body, signature)
}
