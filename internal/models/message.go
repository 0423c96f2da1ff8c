package models

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// MessageStatus tracks whether a locally appended message reached storage.
// It only lives in client state and is never persisted.
type MessageStatus string

const (
	StatusPending     MessageStatus = "pending"
	StatusConfirmed   MessageStatus = "confirmed"
	StatusUnconfirmed MessageStatus = "unconfirmed"
)

// Message is a single turn in a conversation.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id"`
	Role           Role          `json:"role"`
	Content        string        `json:"content"`
	ImageURL       string        `json:"image_url,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Status         MessageStatus `json:"-"`
}
