package conversation

import (
	"github.com/convo/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// User is the chat user as seen by the pipeline. A user is identified per
// channel by an external id (widget session id, WhatsApp number); an
// authenticated web user additionally carries the subject of their access
// token.
type User struct {
	shared.BaseEntity
	Channel       Channel
	ExternalID    string
	AuthSubject   string
	DisplayName   string
	Authenticated bool
}

// Conversation groups turns for one user on one channel
type Conversation struct {
	shared.BaseEntity
	UserID     uuid.UUID
	Channel    Channel
	ExternalID string
}
