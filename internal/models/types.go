package models

import (
	"time"
)

// Conversation roles stored in history and sent to the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryEntry is one persisted conversation turn of a user.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AsMessage converts a history entry into a completion message.
func (e HistoryEntry) AsMessage() Message {
	return Message{Role: e.Role, Content: e.Content}
}

// SubscriptionEntry is a memoized channel membership check.
type SubscriptionEntry struct {
	CheckedAt  time.Time
	Subscribed bool
}
