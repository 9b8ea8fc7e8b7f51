package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresence() (*Presence, *Membership, *RateLimiter) {
	membership := NewMembership()
	limiter := NewRateLimiter(30, 0)
	return NewPresence(membership, limiter), membership, limiter
}

func TestPresenceRegisterUnregisterRoundTrip(t *testing.T) {
	p, membership, _ := newTestPresence()
	before := p.Count()

	c := newClient(nil, nil, 1, "alice")
	require.Nil(t, p.Register(c))
	assert.Equal(t, before+1, p.Count())

	membership.Add(5, 1)
	c.addRoom(5)

	require.True(t, p.Unregister(c))
	assert.Equal(t, before, p.Count())
	assert.Empty(t, membership.Members(5), "unregister must clear joined rooms")

	_, ok := p.Get(1)
	assert.False(t, ok)
}

func TestPresenceUnregisterIsIdempotent(t *testing.T) {
	p, _, _ := newTestPresence()
	c := newClient(nil, nil, 1, "alice")
	p.Register(c)

	assert.True(t, p.Unregister(c))
	assert.False(t, p.Unregister(c), "second unregister is a no-op")
}

func TestPresenceRegisterReplacesExistingSession(t *testing.T) {
	p, _, _ := newTestPresence()
	first := newClient(nil, nil, 1, "alice")
	second := newClient(nil, nil, 1, "alice")

	require.Nil(t, p.Register(first))
	replaced := p.Register(second)
	require.Same(t, first, replaced)
	assert.Equal(t, 1, p.Count())

	// The replaced session's trailing disconnect must not evict the new one.
	assert.False(t, p.Unregister(first))
	got, ok := p.Get(1)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestPresenceUnregisterClearsRateWindow(t *testing.T) {
	membership := NewMembership()
	limiter := NewRateLimiter(1, 0)
	p := NewPresence(membership, limiter)

	c := newClient(nil, nil, 1, "alice")
	p.Register(c)

	now := c.JoinedAt
	require.True(t, limiter.Allow(1, now))
	require.False(t, limiter.Allow(1, now))

	p.Unregister(c)
	assert.True(t, limiter.Allow(1, now), "rate window must not leak across reconnects")
}

func TestPresenceSendToDisconnectedUser(t *testing.T) {
	p, _, _ := newTestPresence()
	assert.False(t, p.Send(99, EvPong, PongPayload{Timestamp: 1}))
}

func TestPresenceSendDeliversFrame(t *testing.T) {
	p, _, _ := newTestPresence()
	c := newClient(nil, nil, 1, "alice")
	p.Register(c)

	require.True(t, p.Send(1, EvPong, PongPayload{Timestamp: 42}))

	frame, ok := lastEvent(t, c, EvPong)
	require.True(t, ok)
	var pong PongPayload
	decodeInto(t, frame, &pong)
	assert.Equal(t, int64(42), pong.Timestamp)
}

func TestPresenceBroadcastAllAndExcept(t *testing.T) {
	p, _, _ := newTestPresence()
	a := newClient(nil, nil, 1, "alice")
	b := newClient(nil, nil, 2, "bob")
	p.Register(a)
	p.Register(b)

	p.BroadcastAll(EvOnlineUsers, p.OnlineUsers())
	_, aGot := lastEvent(t, a, EvOnlineUsers)
	_, bGot := lastEvent(t, b, EvOnlineUsers)
	assert.True(t, aGot)
	assert.True(t, bGot)

	p.BroadcastExcept(1, EvUserJoined, PresenceChange{UserID: 1, Username: "alice"})
	_, aGot = lastEvent(t, a, EvUserJoined)
	_, bGot = lastEvent(t, b, EvUserJoined)
	assert.False(t, aGot, "originator must be skipped")
	assert.True(t, bGot)
}

func TestPresenceSendToClosedClientDropsSilently(t *testing.T) {
	p, _, _ := newTestPresence()
	c := newClient(nil, nil, 1, "alice")
	p.Register(c)
	c.markClosed()

	assert.False(t, p.Send(1, EvPong, PongPayload{}))
}
