package hub

import "sync"

// Presence tracks which users currently hold a live connection. All mutation
// of the user map goes through Register/Unregister; cleanup of the membership
// index and the rate window hangs off Unregister so nothing leaks across
// reconnects.
type Presence struct {
	mu         sync.RWMutex
	users      map[int]*Client
	membership *Membership
	limiter    *RateLimiter
}

func NewPresence(membership *Membership, limiter *RateLimiter) *Presence {
	return &Presence{
		users:      make(map[int]*Client),
		membership: membership,
		limiter:    limiter,
	}
}

// Register installs the client as the user's single live session. When the
// user already had a connection it is returned so the caller can kick and
// close it; its entry is gone from the registry as of this call.
func (p *Presence) Register(c *Client) (replaced *Client) {
	p.mu.Lock()
	replaced = p.users[c.UserID]
	p.users[c.UserID] = c
	p.mu.Unlock()
	return replaced
}

// Unregister removes the client and tears down its in-memory traces: room
// subscriptions and the rate window. It is session-checked and idempotent —
// a trailing disconnect from a replaced or already-evicted connection is a
// no-op, so disconnect events racing reconciler evictions are safe.
func (p *Presence) Unregister(c *Client) bool {
	p.mu.Lock()
	current, ok := p.users[c.UserID]
	if !ok || current.SessionID != c.SessionID {
		p.mu.Unlock()
		return false
	}
	delete(p.users, c.UserID)
	p.mu.Unlock()

	for _, roomID := range c.roomList() {
		p.membership.Remove(roomID, c.UserID)
	}
	p.limiter.Forget(c.UserID)
	return true
}

func (p *Presence) Get(userID int) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.users[userID]
	return c, ok
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users)
}

// Send pushes one event to one user. True means handed to the transport, not
// acknowledged; false means the user is not connected or the push was
// dropped. It never fails louder than that.
func (p *Presence) Send(userID int, event string, payload any) bool {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return false
	}
	return p.sendFrame(userID, frame)
}

func (p *Presence) sendFrame(userID int, frame []byte) bool {
	p.mu.RLock()
	c, ok := p.users[userID]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	return c.queue(frame)
}

// BroadcastAll pushes an event to every connected user, skipping failures
// silently; a dead connection resolves itself through its own disconnect.
func (p *Presence) BroadcastAll(event string, payload any) {
	p.broadcast(event, payload, 0)
}

// BroadcastExcept is BroadcastAll minus one user (typically the originator).
func (p *Presence) BroadcastExcept(exceptUserID int, event string, payload any) {
	p.broadcast(event, payload, exceptUserID)
}

func (p *Presence) broadcast(event string, payload any, exceptUserID int) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return
	}
	for _, c := range p.snapshot() {
		if c.UserID == exceptUserID {
			continue
		}
		c.queue(frame)
	}
}

func (p *Presence) snapshot() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Client, 0, len(p.users))
	for _, c := range p.users {
		out = append(out, c)
	}
	return out
}

// Snapshot returns the current connections; the reconciler sweeps over it.
func (p *Presence) Snapshot() []*Client {
	return p.snapshot()
}

func (p *Presence) OnlineUsers() OnlineUsersPayload {
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]OnlineUser, 0, len(p.users))
	for _, c := range p.users {
		users = append(users, OnlineUser{UserID: c.UserID, Username: c.Username})
	}
	return OnlineUsersPayload{Users: users, Count: len(users)}
}
