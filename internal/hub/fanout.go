package hub

import (
	"context"
	"fmt"

	"pulsechat/internal/chat"
)

// Fanout routes an already-persisted message to the live connections that
// should see it. It never queues for offline users; they catch up from
// durable history. Authorization happened before the message was persisted.
type Fanout struct {
	presence   *Presence
	membership *Membership
	rooms      RoomStore
}

func NewFanout(presence *Presence, membership *Membership, rooms RoomStore) *Fanout {
	return &Fanout{presence: presence, membership: membership, rooms: rooms}
}

// ResolvePrivateRoom finds or creates the durable room for a private pair and
// warms the live membership index for whichever of the two is connected.
func (f *Fanout) ResolvePrivateRoom(ctx context.Context, senderID, recipientID int) (*chat.Conversation, error) {
	room, err := f.rooms.FindOrCreatePrivateRoom(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}
	for _, uid := range []int{senderID, recipientID} {
		if c, ok := f.presence.Get(uid); ok {
			f.membership.Add(room.ID, uid)
			c.addRoom(room.ID)
		}
	}
	return room, nil
}

// Deliver pushes the message by scope: world to everyone, group to the
// intersection of room members and connected users, private to the two
// participants if present. Returns how many connections the push reached.
func (f *Fanout) Deliver(ctx context.Context, m *chat.Message) (int, error) {
	switch m.ChatType {
	case chat.TypeWorld:
		return f.deliverWorld(m), nil
	case chat.TypeGroup:
		if m.ConversationID == nil {
			return 0, fmt.Errorf("group message %d has no room", m.ID)
		}
		return f.deliverTo(m, f.membership.Members(*m.ConversationID)), nil
	case chat.TypePrivate:
		if m.ConversationID == nil {
			return 0, fmt.Errorf("private message %d has no room", m.ID)
		}
		participants, err := f.rooms.ParticipantIDs(ctx, *m.ConversationID)
		if err != nil {
			return 0, err
		}
		return f.deliverTo(m, participants), nil
	default:
		return 0, fmt.Errorf("unknown chat type %q", m.ChatType)
	}
}

func eventFor(chatType string) string {
	switch chatType {
	case chat.TypeGroup:
		return EvGroupMessage
	case chat.TypePrivate:
		return EvPrivateMessage
	default:
		return EvWorldMessage
	}
}

// frames builds the two per-recipient variants: one for the sender, one for
// everyone else.
func (f *Fanout) frames(m *chat.Message) (own, other []byte, err error) {
	payload := MessagePayload{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		Timestamp:  m.CreatedAt,
		ChatType:   m.ChatType,
	}
	if m.ConversationID != nil {
		payload.ChatID = *m.ConversationID
	}
	event := eventFor(m.ChatType)

	payload.IsOwnMessage = true
	if own, err = encodeFrame(event, payload); err != nil {
		return nil, nil, err
	}
	payload.IsOwnMessage = false
	if other, err = encodeFrame(event, payload); err != nil {
		return nil, nil, err
	}
	return own, other, nil
}

func (f *Fanout) deliverWorld(m *chat.Message) int {
	own, other, err := f.frames(m)
	if err != nil {
		return 0
	}
	delivered := 0
	for _, c := range f.presence.Snapshot() {
		frame := other
		if c.UserID == m.SenderID {
			frame = own
		}
		if c.queue(frame) {
			delivered++
		}
	}
	return delivered
}

func (f *Fanout) deliverTo(m *chat.Message, userIDs []int) int {
	own, other, err := f.frames(m)
	if err != nil {
		return 0
	}
	delivered := 0
	for _, uid := range userIDs {
		frame := other
		if uid == m.SenderID {
			frame = own
		}
		if f.presence.sendFrame(uid, frame) {
			delivered++
		}
	}
	return delivered
}
