package dto

// ChatMessageRequest is the web widget's inbound message
type ChatMessageRequest struct {
	// SessionID identifies the widget session; it doubles as the guest
	// user's external id
	SessionID string `json:"session_id" binding:"required,max=200"`
	Text      string `json:"text" binding:"required"`
}

// ChatMessageResponse is the assistant's answer to one message
type ChatMessageResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversation_id,omitempty"`
	Status         string `json:"status"`
	Duplicate      bool   `json:"duplicate,omitempty"`
}

// WhatsAppWebhookRequest is the Meta webhook delivery envelope, reduced to
// the fields this service reads
type WhatsAppWebhookRequest struct {
	Object string          `json:"object"`
	Entry  []WhatsAppEntry `json:"entry"`
}

// WhatsAppEntry is one account-level entry in a webhook delivery
type WhatsAppEntry struct {
	ID      string           `json:"id"`
	Changes []WhatsAppChange `json:"changes"`
}

// WhatsAppChange wraps the value payload of one change notification
type WhatsAppChange struct {
	Field string        `json:"field"`
	Value WhatsAppValue `json:"value"`
}

// WhatsAppValue carries the actual inbound messages
type WhatsAppValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Messages         []WhatsAppMessage `json:"messages"`
}

// WhatsAppMessage is one inbound WhatsApp message. ID is the wamid, the
// channel's native idempotency key.
type WhatsAppMessage struct {
	ID        string            `json:"id"`
	From      string            `json:"from"`
	Timestamp string            `json:"timestamp"`
	Type      string            `json:"type"`
	Text      *WhatsAppTextBody `json:"text,omitempty"`
}

// WhatsAppTextBody is the text payload of a message
type WhatsAppTextBody struct {
	Body string `json:"body"`
}

// WhatsAppReply echoes the processed messages back to the webhook caller,
// mainly for test harnesses; real outbound delivery goes through the Meta
// send API.
type WhatsAppReply struct {
	MessageID string `json:"message_id"`
	Reply     string `json:"reply"`
	Status    string `json:"status"`
}
