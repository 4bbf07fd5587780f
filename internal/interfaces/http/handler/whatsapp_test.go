package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/convo/backend/internal/application/chat"
	"github.com/convo/backend/internal/domain/audit"
	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/infrastructure/signing"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const webhookVerifyToken = "verify-me"

func newWhatsAppTestRouter(t *testing.T, processor TurnProcessor, secret string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var signer *signing.Signer
	if secret != "" {
		var err error
		signer, err = signing.NewSigner(secret)
		require.NoError(t, err)
	}

	engine := gin.New()
	group := engine.Group("/api/v1")
	NewWhatsAppHandler(processor, signer, webhookVerifyToken, nil).RegisterRoutes(group)
	return engine
}

func webhookBody(t *testing.T, messages ...whatsAppTestMessage) []byte {
	t.Helper()
	payload := map[string]any{
		"object": "whatsapp_business_account",
		"entry": []map[string]any{{
			"id": "entry-1",
			"changes": []map[string]any{{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"messages":          messages,
				},
			}},
		}},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

// whatsAppTestMessage mirrors the wire shape of an inbound message
type whatsAppTestMessage struct {
	ID   string         `json:"id"`
	From string         `json:"from"`
	Type string         `json:"type"`
	Text map[string]any `json:"text,omitempty"`
}

func textMessage(id, from, body string) whatsAppTestMessage {
	return whatsAppTestMessage{ID: id, From: from, Type: "text", Text: map[string]any{"body": body}}
}

func TestWhatsAppHandler_VerifyWebhook(t *testing.T) {
	engine := newWhatsAppTestRouter(t, new(MockTurnProcessor), "")

	t.Run("echoes the challenge for the right token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/channels/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "12345", recorder.Body.String())
	})

	t.Run("rejects a wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/channels/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})
}

func TestWhatsAppHandler_ReceiveWebhook(t *testing.T) {
	t.Run("processes text messages through the pipeline", func(t *testing.T) {
		processor := new(MockTurnProcessor)
		processor.On("Process", mock.Anything, mock.MatchedBy(func(req chat.TurnRequest) bool {
			return req.Channel == conversation.ChannelWhatsApp &&
				req.ExternalEventID == "wamid.1" &&
				req.UserExternalID == "5491144445555" &&
				req.Text == "hola"
		})).Return(&chat.Result{Reply: "¡Hola!", Status: audit.StatusSuccess}, nil)

		engine := newWhatsAppTestRouter(t, processor, "")
		body := webhookBody(t, textMessage("wamid.1", "5491144445555", "hola"))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/whatsapp/webhook", bytes.NewReader(body))
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, req)

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "wamid.1")
		processor.AssertExpectations(t)
	})

	t.Run("skips non-text messages", func(t *testing.T) {
		processor := new(MockTurnProcessor)
		engine := newWhatsAppTestRouter(t, processor, "")
		body := webhookBody(t, whatsAppTestMessage{ID: "wamid.2", From: "549", Type: "image"})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/whatsapp/webhook", bytes.NewReader(body))
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		processor.AssertNotCalled(t, "Process")
	})

	t.Run("verifies the hub signature when a secret is configured", func(t *testing.T) {
		processor := new(MockTurnProcessor)
		processor.On("Process", mock.Anything, mock.Anything).
			Return(&chat.Result{Reply: "ok", Status: audit.StatusSuccess}, nil)

		secret := "webhook-app-secret"
		engine := newWhatsAppTestRouter(t, processor, secret)
		body := webhookBody(t, textMessage("wamid.3", "549", "hola"))

		signer, err := signing.NewSigner(secret)
		require.NoError(t, err)

		t.Run("valid signature passes", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/whatsapp/webhook", bytes.NewReader(body))
			req.Header.Set("X-Hub-Signature-256", "sha256="+signer.SignRaw(body))
			recorder := httptest.NewRecorder()
			engine.ServeHTTP(recorder, req)
			assert.Equal(t, http.StatusOK, recorder.Code)
		})

		t.Run("missing signature is rejected", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/whatsapp/webhook", bytes.NewReader(body))
			recorder := httptest.NewRecorder()
			engine.ServeHTTP(recorder, req)
			assert.Equal(t, http.StatusForbidden, recorder.Code)
		})

		t.Run("tampered body is rejected", func(t *testing.T) {
			tampered := append([]byte{}, body...)
			tampered[len(tampered)-2] ^= 0xff
			req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/whatsapp/webhook", bytes.NewReader(tampered))
			req.Header.Set("X-Hub-Signature-256", "sha256="+signer.SignRaw(body))
			recorder := httptest.NewRecorder()
			engine.ServeHTTP(recorder, req)
			assert.Equal(t, http.StatusForbidden, recorder.Code)
		})
	})

	t.Run("pipeline errors do not fail the delivery", func(t *testing.T) {
		processor := new(MockTurnProcessor)
		processor.On("Process", mock.Anything, mock.Anything).Return(nil, assert.AnError)

		engine := newWhatsAppTestRouter(t, processor, "")
		body := webhookBody(t, textMessage("wamid.4", "549", "hola"))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/whatsapp/webhook", bytes.NewReader(body))
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
	})
}
