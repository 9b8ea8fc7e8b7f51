package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsechat/internal/chat"
)

func newTestFanout() (*Fanout, *Presence, *Membership, *fakeRooms) {
	membership := NewMembership()
	presence := NewPresence(membership, NewRateLimiter(30, 0))
	rooms := newFakeRooms()
	return NewFanout(presence, membership, rooms), presence, membership, rooms
}

func worldMessage(senderID int) *chat.Message {
	return &chat.Message{
		ID:        1,
		SenderID:  senderID,
		ChatType:  chat.TypeWorld,
		Content:   "hi",
		CreatedAt: time.Now(),
	}
}

func TestDeliverWorldReachesEveryConnection(t *testing.T) {
	f, presence, _, _ := newTestFanout()
	sender := newClient(nil, nil, 1, "alice")
	other := newClient(nil, nil, 2, "bob")
	presence.Register(sender)
	presence.Register(other)

	n, err := f.Deliver(context.Background(), worldMessage(1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	frame, ok := lastEvent(t, sender, EvWorldMessage)
	require.True(t, ok)
	var own MessagePayload
	decodeInto(t, frame, &own)
	assert.True(t, own.IsOwnMessage)

	frame, ok = lastEvent(t, other, EvWorldMessage)
	require.True(t, ok)
	var theirs MessagePayload
	decodeInto(t, frame, &theirs)
	assert.False(t, theirs.IsOwnMessage)
	assert.Equal(t, 1, theirs.SenderID)
	assert.Equal(t, "hi", theirs.Content)
}

func TestDeliverGroupReachesMembersIntersectConnected(t *testing.T) {
	f, presence, membership, _ := newTestFanout()

	// Members 1 and 2; user 3 connected but not a member; user 4 a durable
	// participant who is offline (absent from the live index).
	member := newClient(nil, nil, 1, "alice")
	memberToo := newClient(nil, nil, 2, "bob")
	outsider := newClient(nil, nil, 3, "carol")
	presence.Register(member)
	presence.Register(memberToo)
	presence.Register(outsider)
	membership.Add(7, 1)
	membership.Add(7, 2)

	roomID := 7
	msg := &chat.Message{
		ID:             2,
		ConversationID: &roomID,
		SenderID:       1,
		ChatType:       chat.TypeGroup,
		Content:        "hello room",
		CreatedAt:      time.Now(),
	}

	n, err := f.Deliver(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := lastEvent(t, member, EvGroupMessage)
	assert.True(t, ok)
	_, ok = lastEvent(t, memberToo, EvGroupMessage)
	assert.True(t, ok)
	_, ok = lastEvent(t, outsider, EvGroupMessage)
	assert.False(t, ok, "non-members must not receive group fanout")
}

func TestDeliverPrivateReachesBothParticipantsIfPresent(t *testing.T) {
	f, presence, _, rooms := newTestFanout()
	a := newClient(nil, nil, 1, "alice")
	presence.Register(a)
	// User 2 is offline: no push, they catch up from durable history.

	room, err := f.ResolvePrivateRoom(context.Background(), 1, 2)
	require.NoError(t, err)

	msg := &chat.Message{
		ID:             3,
		ConversationID: &room.ID,
		SenderID:       1,
		ChatType:       chat.TypePrivate,
		Content:        "psst",
		CreatedAt:      time.Now(),
	}
	n, err := f.Deliver(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the connected participant receives the push")

	frame, ok := lastEvent(t, a, EvPrivateMessage)
	require.True(t, ok)
	var payload MessagePayload
	decodeInto(t, frame, &payload)
	assert.True(t, payload.IsOwnMessage)
	assert.Equal(t, room.ID, payload.ChatID)

	ids, err := rooms.ParticipantIDs(context.Background(), room.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, ids)
}

func TestResolvePrivateRoomIsIdempotent(t *testing.T) {
	f, _, _, _ := newTestFanout()

	first, err := f.ResolvePrivateRoom(context.Background(), 1, 2)
	require.NoError(t, err)
	// Reversed argument order must resolve to the same room.
	second, err := f.ResolvePrivateRoom(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolvePrivateRoomWarmsLiveIndex(t *testing.T) {
	f, presence, membership, _ := newTestFanout()
	a := newClient(nil, nil, 1, "alice")
	presence.Register(a)

	room, err := f.ResolvePrivateRoom(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.True(t, membership.Contains(room.ID, 1))
	assert.False(t, membership.Contains(room.ID, 2), "offline participant stays out of the live index")
}
