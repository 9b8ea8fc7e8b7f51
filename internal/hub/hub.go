// Package hub is the presence and fanout core: it tracks live connections,
// maps users to room subscriptions, rate-limits sends, and routes persisted
// messages to exactly the connections that should see them.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pulsechat/internal/chat"
	"pulsechat/internal/middleware"
)

const dbTimeout = 5 * time.Second

// Options tunes the core. Zero values fall back to production defaults.
type Options struct {
	MaxContentLength int
	RateMaxMessages  int
	RateWindow       time.Duration
	TypingExpiry     time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = 2000
	}
	if o.RateMaxMessages <= 0 {
		o.RateMaxMessages = 30
	}
	if o.RateWindow <= 0 {
		o.RateWindow = time.Minute
	}
	if o.TypingExpiry <= 0 {
		o.TypingExpiry = 10 * time.Second
	}
	return o
}

type typingKey struct {
	userID   int
	chatType string
	chatID   int
}

// Hub orchestrates the per-connection lifecycle: authenticate, register
// presence, join rooms, handle events, clean up on close.
type Hub struct {
	opts   Options
	logger *slog.Logger

	presence   *Presence
	membership *Membership
	limiter    *RateLimiter
	fanout     *Fanout

	rooms    RoomStore
	messages MessageStore
	users    UserStore

	upgrader websocket.Upgrader

	typingMu sync.Mutex
	typing   map[typingKey]*time.Timer
}

func New(logger *slog.Logger, rooms RoomStore, messages MessageStore, users UserStore, opts Options) *Hub {
	opts = opts.withDefaults()
	membership := NewMembership()
	limiter := NewRateLimiter(opts.RateMaxMessages, opts.RateWindow)
	presence := NewPresence(membership, limiter)

	return &Hub{
		opts:       opts,
		logger:     logger,
		presence:   presence,
		membership: membership,
		limiter:    limiter,
		fanout:     NewFanout(presence, membership, rooms),
		rooms:      rooms,
		messages:   messages,
		users:      users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced by the deployment proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		typing: make(map[typingKey]*time.Timer),
	}
}

// Presence exposes the registry for health reporting and the reconciler.
func (h *Hub) Presence() *Presence { return h.presence }

// Membership exposes the live room index.
func (h *Hub) Membership() *Membership { return h.membership }

// ServeWS upgrades an authenticated request to a websocket session. Identity
// must already be on the context; an unauthenticated request is refused
// before any state is created.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h, conn, userID, username)
	h.register(client)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) register(c *Client) {
	if replaced := h.presence.Register(c); replaced != nil {
		// Single-session-wins: the old connection is told why and closed.
		// Its trailing disconnect is a no-op thanks to the session check.
		h.logger.Info("session replaced", "user_id", c.UserID)
		frame, err := encodeFrame(EvKicked, KickedPayload{Reason: "signed in from another device"})
		if err == nil {
			replaced.queue(frame)
		}
		replaced.markClosed()
		go replaced.closeConn()
	}

	// Staleness in this flag is healed by the reconciler, so a failed write
	// only gets a log line.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		if err := h.users.MarkOnline(ctx, c.UserID); err != nil {
			h.logger.Warn("mark online failed", "user_id", c.UserID, "error", err)
		}
	}()

	// Populate the live index from durable participancy.
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	roomIDs, err := h.rooms.RoomIDsForUser(ctx, c.UserID)
	if err != nil {
		h.logger.Warn("room load failed", "user_id", c.UserID, "error", err)
	}
	for _, roomID := range roomIDs {
		h.membership.Add(roomID, c.UserID)
		c.addRoom(roomID)
	}

	h.presence.BroadcastExcept(c.UserID, EvUserJoined, PresenceChange{UserID: c.UserID, Username: c.Username})
	h.presence.Send(c.UserID, EvOnlineUsers, h.presence.OnlineUsers())
	h.logger.Info("user connected", "user_id", c.UserID, "username", c.Username, "online", h.presence.Count())
}

// disconnect runs the cleanup path for a closing connection. Safe to call
// multiple times and from both the read pump and the reconciler.
func (h *Hub) disconnect(c *Client) {
	c.markClosed()
	if !h.presence.Unregister(c) {
		return
	}
	h.cancelTypingFor(c.UserID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		if err := h.users.MarkOffline(ctx, c.UserID); err != nil {
			h.logger.Warn("mark offline failed", "user_id", c.UserID, "error", err)
		}
	}()

	h.presence.BroadcastAll(EvUserLeft, PresenceChange{UserID: c.UserID, Username: c.Username})
	h.presence.BroadcastAll(EvOnlineUsers, h.presence.OnlineUsers())
	h.logger.Info("user disconnected", "user_id", c.UserID, "online", h.presence.Count())
}

// evict is the forced-disconnect path used by the reconciler.
func (h *Hub) evict(c *Client, reason string) {
	h.logger.Info("evicting connection", "user_id", c.UserID, "reason", reason)
	h.disconnect(c)
	c.closeConn()
}

// JoinRoom refreshes the live index when a connected user gains durable
// membership mid-session (e.g. added to a group over HTTP), so they receive
// fanout without reconnecting.
func (h *Hub) JoinRoom(userID, roomID int) {
	c, ok := h.presence.Get(userID)
	if !ok {
		return
	}
	h.membership.Add(roomID, userID)
	c.addRoom(roomID)
}

// LeaveRoom drops a user's live subscription after they leave durably.
func (h *Hub) LeaveRoom(userID, roomID int) {
	h.membership.Remove(roomID, userID)
	if c, ok := h.presence.Get(userID); ok {
		c.removeRoom(roomID)
	}
}

// handleFrame dispatches one inbound event. Handler failures are converted to
// an `error` event on the originating connection only; they never close it.
func (h *Hub) handleFrame(c *Client, raw []byte) {
	c.touch(time.Now())

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(c, errValidation("malformed frame"))
		return
	}

	var err error
	switch frame.Event {
	case EvSendWorldMessage:
		err = h.handleSendWorld(c, frame.Data)
	case EvSendGroupMessage:
		err = h.handleSendGroup(c, frame.Data)
	case EvSendPrivateMessage:
		err = h.handleSendPrivate(c, frame.Data)
	case EvTypingStart:
		err = h.handleTyping(c, frame.Data, true)
	case EvTypingStop:
		err = h.handleTyping(c, frame.Data, false)
	case EvJoinGroup:
		err = h.handleJoinGroup(c, frame.Data)
	case EvLeaveGroup:
		err = h.handleLeaveGroup(c, frame.Data)
	case EvMessageRead:
		err = h.handleReceipt(c, frame.Data, EvMessageRead)
	case EvMessageDelivered:
		err = h.handleReceipt(c, frame.Data, EvMessageDelivered)
	case EvSetStatus:
		err = h.handleSetStatus(c, frame.Data)
	case EvPing:
		err = h.handlePing(c, frame.Data)
	default:
		err = errValidation("unknown event " + frame.Event)
	}

	if err != nil {
		if evErr, ok := err.(*EventError); ok {
			h.sendError(c, evErr)
			return
		}
		h.logger.Error("event handler failed", "event", frame.Event, "user_id", c.UserID, "error", err)
		h.sendError(c, errInternal())
	}
}

func (h *Hub) sendError(c *Client, e *EventError) {
	h.presence.Send(c.UserID, EvError, e)
}

func (h *Hub) validateContent(content string) (string, *EventError) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errValidation("message content is empty")
	}
	if len(content) > h.opts.MaxContentLength {
		return "", errValidation("message content too long")
	}
	return content, nil
}

func (h *Hub) handleSendWorld(c *Client, data json.RawMessage) error {
	var req SendMessageData
	if err := json.Unmarshal(data, &req); err != nil {
		return errValidation("malformed payload")
	}
	content, evErr := h.validateContent(req.Content)
	if evErr != nil {
		return evErr
	}
	if !h.limiter.Allow(c.UserID, time.Now()) {
		return errRateLimited()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	msg, err := h.messages.SaveMessage(ctx, c.UserID, chat.TypeWorld, nil, content)
	if err != nil {
		h.logger.Error("world message persist failed", "user_id", c.UserID, "error", err)
		return errInternal()
	}
	msg.SenderName = c.Username
	c.countMessage()

	if _, err := h.fanout.Deliver(ctx, msg); err != nil {
		h.logger.Error("world fanout failed", "message_id", msg.ID, "error", err)
	}
	return nil
}

func (h *Hub) handleSendGroup(c *Client, data json.RawMessage) error {
	var req SendMessageData
	if err := json.Unmarshal(data, &req); err != nil {
		return errValidation("malformed payload")
	}
	if req.RoomID <= 0 {
		return errValidation("room_id is required")
	}
	content, evErr := h.validateContent(req.Content)
	if evErr != nil {
		return evErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	room, err := h.rooms.FindRoomByID(ctx, req.RoomID)
	if err != nil {
		if err == chat.ErrNotFound {
			return errNotFound("room not found")
		}
		return errInternal()
	}
	if room.Type != chat.TypeGroup {
		return errValidation("not a group room")
	}

	// Authorization always re-checks durable rows; the live index can be
	// stale relative to a concurrent leave.
	isMember, err := h.rooms.IsParticipant(ctx, room.ID, c.UserID)
	if err != nil {
		return errInternal()
	}
	if !isMember {
		return errAccessDenied()
	}

	if !h.limiter.Allow(c.UserID, time.Now()) {
		return errRateLimited()
	}

	msg, err := h.messages.SaveMessage(ctx, c.UserID, chat.TypeGroup, &room.ID, content)
	if err != nil {
		h.logger.Error("group message persist failed", "user_id", c.UserID, "room_id", room.ID, "error", err)
		return errInternal()
	}
	msg.SenderName = c.Username
	c.countMessage()

	if err := h.rooms.UpdateLastMessage(ctx, room.ID, msg.ID); err != nil {
		h.logger.Warn("last message update failed", "room_id", room.ID, "error", err)
	}
	if _, err := h.fanout.Deliver(ctx, msg); err != nil {
		h.logger.Error("group fanout failed", "message_id", msg.ID, "error", err)
	}
	return nil
}

func (h *Hub) handleSendPrivate(c *Client, data json.RawMessage) error {
	var req SendMessageData
	if err := json.Unmarshal(data, &req); err != nil {
		return errValidation("malformed payload")
	}
	if req.RecipientID <= 0 {
		return errValidation("recipient_id is required")
	}
	if req.RecipientID == c.UserID {
		return errValidation("cannot message yourself")
	}
	content, evErr := h.validateContent(req.Content)
	if evErr != nil {
		return evErr
	}
	if !h.limiter.Allow(c.UserID, time.Now()) {
		return errRateLimited()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	room, err := h.fanout.ResolvePrivateRoom(ctx, c.UserID, req.RecipientID)
	if err != nil {
		h.logger.Error("private room resolve failed", "user_id", c.UserID, "recipient_id", req.RecipientID, "error", err)
		return errInternal()
	}

	msg, err := h.messages.SaveMessage(ctx, c.UserID, chat.TypePrivate, &room.ID, content)
	if err != nil {
		h.logger.Error("private message persist failed", "user_id", c.UserID, "room_id", room.ID, "error", err)
		return errInternal()
	}
	msg.SenderName = c.Username
	c.countMessage()

	if err := h.rooms.UpdateLastMessage(ctx, room.ID, msg.ID); err != nil {
		h.logger.Warn("last message update failed", "room_id", room.ID, "error", err)
	}
	if _, err := h.fanout.Deliver(ctx, msg); err != nil {
		h.logger.Error("private fanout failed", "message_id", msg.ID, "error", err)
	}
	return nil
}

func (h *Hub) handleJoinGroup(c *Client, data json.RawMessage) error {
	var req GroupData
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID <= 0 {
		return errValidation("room_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	isMember, err := h.rooms.IsParticipant(ctx, req.RoomID, c.UserID)
	if err != nil {
		return errInternal()
	}
	if !isMember {
		return errAccessDenied()
	}

	h.membership.Add(req.RoomID, c.UserID)
	c.addRoom(req.RoomID)
	return nil
}

func (h *Hub) handleLeaveGroup(c *Client, data json.RawMessage) error {
	var req GroupData
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID <= 0 {
		return errValidation("room_id is required")
	}
	h.membership.Remove(req.RoomID, c.UserID)
	c.removeRoom(req.RoomID)
	return nil
}

// handleReceipt relays read/delivered acknowledgements to the other live
// members of the room. Ephemeral: nothing is persisted.
func (h *Hub) handleReceipt(c *Client, data json.RawMessage, event string) error {
	var req ReceiptData
	if err := json.Unmarshal(data, &req); err != nil || req.MessageID <= 0 {
		return errValidation("message_id is required")
	}
	payload := ReceiptPayload{
		UserID:    c.UserID,
		MessageID: req.MessageID,
		ChatType:  req.ChatType,
		ChatID:    req.ChatID,
	}

	switch req.ChatType {
	case chat.TypeGroup, chat.TypePrivate:
		if req.ChatID <= 0 {
			return errValidation("chat_id is required")
		}
		if !h.membership.Contains(req.ChatID, c.UserID) {
			return errAccessDenied()
		}
		frame, err := encodeFrame(event, payload)
		if err != nil {
			return errInternal()
		}
		for _, uid := range h.membership.Members(req.ChatID) {
			if uid == c.UserID {
				continue
			}
			h.presence.sendFrame(uid, frame)
		}
		return nil
	default:
		return errValidation("unknown chat_type")
	}
}

func (h *Hub) handleSetStatus(c *Client, data json.RawMessage) error {
	var req StatusData
	if err := json.Unmarshal(data, &req); err != nil {
		return errValidation("malformed payload")
	}
	if len(req.Status) > 100 {
		return errValidation("status too long")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	if err := h.users.SetStatus(ctx, c.UserID, req.Status); err != nil {
		h.logger.Warn("status update failed", "user_id", c.UserID, "error", err)
		return errInternal()
	}
	return nil
}

func (h *Hub) handlePing(c *Client, data json.RawMessage) error {
	var req PingData
	if len(data) > 0 {
		_ = json.Unmarshal(data, &req)
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}
	h.presence.Send(c.UserID, EvPong, PongPayload{Timestamp: req.Timestamp})
	return nil
}
