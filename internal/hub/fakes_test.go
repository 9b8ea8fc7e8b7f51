package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pulsechat/internal/chat"
)

// In-memory stores standing in for the repositories.

type fakeRooms struct {
	mu           sync.Mutex
	nextID       int
	rooms        map[int]*chat.Conversation
	participants map[int]map[int]bool
	privateByKey map[string]int
	lastMessage  map[int]int
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{
		rooms:        make(map[int]*chat.Conversation),
		participants: make(map[int]map[int]bool),
		privateByKey: make(map[string]int),
		lastMessage:  make(map[int]int),
	}
}

func (f *fakeRooms) addRoom(roomType string, members ...int) *chat.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	room := &chat.Conversation{ID: f.nextID, Type: roomType, CreatedAt: time.Now()}
	f.rooms[room.ID] = room
	f.participants[room.ID] = make(map[int]bool)
	for _, uid := range members {
		f.participants[room.ID][uid] = true
	}
	return room
}

func (f *fakeRooms) FindRoomByID(_ context.Context, id int) (*chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return room, nil
}

func (f *fakeRooms) FindOrCreatePrivateRoom(_ context.Context, a, b int) (*chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a > b {
		a, b = b, a
	}
	key := fmt.Sprintf("%d:%d", a, b)
	if id, ok := f.privateByKey[key]; ok {
		return f.rooms[id], nil
	}
	f.nextID++
	room := &chat.Conversation{ID: f.nextID, Type: chat.TypePrivate, CreatedAt: time.Now()}
	f.rooms[room.ID] = room
	f.participants[room.ID] = map[int]bool{a: true, b: true}
	f.privateByKey[key] = room.ID
	return room, nil
}

func (f *fakeRooms) IsParticipant(_ context.Context, roomID, userID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.participants[roomID][userID], nil
}

func (f *fakeRooms) ParticipantIDs(_ context.Context, roomID int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int
	for uid := range f.participants[roomID] {
		ids = append(ids, uid)
	}
	return ids, nil
}

func (f *fakeRooms) RoomIDsForUser(_ context.Context, userID int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int
	for roomID, members := range f.participants {
		if members[userID] {
			ids = append(ids, roomID)
		}
	}
	return ids, nil
}

func (f *fakeRooms) UpdateLastMessage(_ context.Context, roomID, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMessage[roomID] = messageID
	return nil
}

type fakeMessages struct {
	mu      sync.Mutex
	nextID  int
	saved   []*chat.Message
	failAll bool
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{}
}

func (f *fakeMessages) SaveMessage(_ context.Context, senderID int, chatType string, roomID *int, content string) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, fmt.Errorf("save failed")
	}
	f.nextID++
	m := &chat.Message{
		ID:             f.nextID,
		ConversationID: roomID,
		SenderID:       senderID,
		ChatType:       chatType,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	f.saved = append(f.saved, m)
	return m, nil
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeUsers struct {
	mu         sync.Mutex
	online     map[int]bool
	seen       map[int]time.Time
	statuses   map[int]string
	staleRuns  int
	staleHeals int64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		online:   make(map[int]bool),
		seen:     make(map[int]time.Time),
		statuses: make(map[int]string),
	}
}

func (f *fakeUsers) MarkOnline(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[id] = true
	f.seen[id] = time.Now()
	return nil
}

func (f *fakeUsers) MarkOffline(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[id] = false
	f.seen[id] = time.Now()
	return nil
}

func (f *fakeUsers) SetStatus(_ context.Context, id int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeUsers) TouchSeen(_ context.Context, ids []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.seen[id] = time.Now()
	}
	return nil
}

// MarkOfflineWhereStale mirrors the SQL: any online row not seen within the
// threshold gets flipped.
func (f *fakeUsers) MarkOfflineWhereStale(_ context.Context, threshold time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleRuns++
	flipped := f.staleHeals
	cutoff := time.Now().Add(-threshold)
	for id, online := range f.online {
		if online && f.seen[id].Before(cutoff) {
			f.online[id] = false
			flipped++
		}
	}
	return flipped, nil
}

func (f *fakeUsers) backdateSeen(id int, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[id] = at
}

func (f *fakeUsers) isOnline(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[id]
}
