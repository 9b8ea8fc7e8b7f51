package hub

import (
	"encoding/json"
	"time"
)

// Inbound event names accepted from connections.
const (
	EvSendWorldMessage   = "send_world_message"
	EvSendGroupMessage   = "send_group_message"
	EvSendPrivateMessage = "send_private_message"
	EvTypingStart        = "typing_start"
	EvTypingStop         = "typing_stop"
	EvJoinGroup          = "join_group"
	EvLeaveGroup         = "leave_group"
	EvMessageRead        = "message_read"
	EvMessageDelivered   = "message_delivered"
	EvSetStatus          = "set_status"
	EvPing               = "ping"
)

// Outbound event names pushed to connections.
const (
	EvWorldMessage      = "world_message"
	EvGroupMessage      = "group_message"
	EvPrivateMessage    = "private_message"
	EvUserJoined        = "user_joined"
	EvUserLeft          = "user_left"
	EvOnlineUsers       = "online_users"
	EvUserTyping        = "user_typing"
	EvUserStoppedTyping = "user_stopped_typing"
	EvError             = "error"
	EvKicked            = "kicked"
	EvPong              = "pong"
)

// Frame is the wire envelope in both directions: a typed command inbound, a
// typed notification outbound.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// SendMessageData covers all three send_* events; unused fields stay zero.
type SendMessageData struct {
	Content     string `json:"content"`
	RoomID      int    `json:"room_id,omitempty"`      // group
	RecipientID int    `json:"recipient_id,omitempty"` // private
}

type TypingData struct {
	ChatType string `json:"chat_type"`
	ChatID   int    `json:"chat_id,omitempty"`
}

type GroupData struct {
	RoomID int `json:"room_id"`
}

type ReceiptData struct {
	MessageID int    `json:"message_id"`
	ChatType  string `json:"chat_type"`
	ChatID    int    `json:"chat_id,omitempty"`
}

type StatusData struct {
	Status string `json:"status"`
}

type PingData struct {
	Timestamp int64 `json:"timestamp"`
}

// MessagePayload is the delivery shape for world/group/private messages.
// IsOwnMessage is relative to the recipient, so each fanout builds two
// variants of the same payload.
type MessagePayload struct {
	ID           int       `json:"id"`
	SenderID     int       `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	ChatType     string    `json:"chat_type"`
	ChatID       int       `json:"chat_id,omitempty"`
	IsOwnMessage bool      `json:"is_own_message"`
}

type PresenceChange struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

type OnlineUser struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

type OnlineUsersPayload struct {
	Users []OnlineUser `json:"users"`
	Count int          `json:"count"`
}

type TypingPayload struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	ChatType string `json:"chat_type"`
	ChatID   int    `json:"chat_id,omitempty"`
}

type ReceiptPayload struct {
	UserID    int    `json:"user_id"`
	MessageID int    `json:"message_id"`
	ChatType  string `json:"chat_type"`
	ChatID    int    `json:"chat_id,omitempty"`
}

type KickedPayload struct {
	Reason string `json:"reason"`
}

type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}
