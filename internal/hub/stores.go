package hub

import (
	"context"
	"time"

	"pulsechat/internal/chat"
)

// The hub talks to persistence through these narrow interfaces so the core
// stays testable without a database. chat.Repository and user.Repository
// satisfy them.

type RoomStore interface {
	FindRoomByID(ctx context.Context, id int) (*chat.Conversation, error)
	FindOrCreatePrivateRoom(ctx context.Context, userA, userB int) (*chat.Conversation, error)
	IsParticipant(ctx context.Context, roomID, userID int) (bool, error)
	ParticipantIDs(ctx context.Context, roomID int) ([]int, error)
	RoomIDsForUser(ctx context.Context, userID int) ([]int, error)
	UpdateLastMessage(ctx context.Context, roomID, messageID int) error
}

type MessageStore interface {
	SaveMessage(ctx context.Context, senderID int, chatType string, roomID *int, content string) (*chat.Message, error)
}

type UserStore interface {
	MarkOnline(ctx context.Context, id int) error
	MarkOffline(ctx context.Context, id int) error
	SetStatus(ctx context.Context, id int, status string) error
	TouchSeen(ctx context.Context, ids []int) error
	MarkOfflineWhereStale(ctx context.Context, threshold time.Duration) (int64, error)
}
