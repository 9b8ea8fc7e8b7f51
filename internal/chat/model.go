package chat

import "time"

// Chat scopes. World messages have no conversation row; group and private
// messages always reference one.
const (
	TypeWorld   = "world"
	TypeGroup   = "group"
	TypePrivate = "private"
)

type Conversation struct {
	ID           int       `json:"id"`
	Type         string    `json:"type"`
	Name         string    `json:"name,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

type Message struct {
	ID             int       `json:"id"`
	ConversationID *int      `json:"conversation_id,omitempty"`
	SenderID       int       `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	ChatType       string    `json:"chat_type"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// StartConversationRequest creates a group or resolves a private chat.
type StartConversationRequest struct {
	Type           string `json:"type"`
	Name           string `json:"name,omitempty"`
	ParticipantID  int    `json:"participant_id,omitempty"`  // private: the other user
	ParticipantIDs []int  `json:"participant_ids,omitempty"` // group: initial members
}

type AddParticipantRequest struct {
	UserID int `json:"user_id"`
}
