package models

import "time"

// DefaultConversationTitle is used when a conversation is created without one.
const DefaultConversationTitle = "New Chat"

// Conversation groups an ordered sequence of messages.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
