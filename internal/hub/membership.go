package hub

import "sync"

// Membership is the in-memory room → member-set index used for fanout. It is
// keyed by room so delivery is O(room size), never O(all rooms). It is a
// cache of durable participancy, not an authorization source.
type Membership struct {
	mu    sync.RWMutex
	rooms map[int]map[int]struct{}
}

func NewMembership() *Membership {
	return &Membership{rooms: make(map[int]map[int]struct{})}
}

// Add is idempotent.
func (m *Membership) Add(roomID, userID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[int]struct{})
		m.rooms[roomID] = members
	}
	members[userID] = struct{}{}
}

// Remove is idempotent; removing the last member drops the room entry.
func (m *Membership) Remove(roomID, userID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[roomID]
	if !ok {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(m.rooms, roomID)
	}
}

// Members returns the current member IDs; empty for an unknown room.
func (m *Membership) Members(roomID int) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	out := make([]int, 0, len(members))
	for uid := range members {
		out = append(out, uid)
	}
	return out
}

func (m *Membership) Contains(roomID, userID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[roomID][userID]
	return ok
}

// RoomCount reports how many rooms currently have live subscribers.
func (m *Membership) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
