package hub

import (
	"encoding/json"
	"time"

	"pulsechat/internal/chat"
)

// Typing indicators are ephemeral broadcast-only events. A stop is
// synthesized after TypingExpiry if the client never sends one, bounding how
// long a stale "user is typing" can be shown.

func (h *Hub) handleTyping(c *Client, data json.RawMessage, start bool) error {
	var req TypingData
	if err := json.Unmarshal(data, &req); err != nil {
		return errValidation("malformed payload")
	}

	switch req.ChatType {
	case chat.TypeWorld:
	case chat.TypeGroup, chat.TypePrivate:
		if req.ChatID <= 0 {
			return errValidation("chat_id is required")
		}
		if !h.membership.Contains(req.ChatID, c.UserID) {
			return errAccessDenied()
		}
	default:
		return errValidation("unknown chat_type")
	}

	if start {
		h.broadcastTyping(c, req, EvUserTyping)
		h.scheduleTypingExpiry(c, req)
	} else {
		h.cancelTyping(typingKey{userID: c.UserID, chatType: req.ChatType, chatID: req.ChatID})
		h.broadcastTyping(c, req, EvUserStoppedTyping)
	}
	return nil
}

func (h *Hub) broadcastTyping(c *Client, req TypingData, event string) {
	payload := TypingPayload{
		UserID:   c.UserID,
		Username: c.Username,
		ChatType: req.ChatType,
		ChatID:   req.ChatID,
	}

	if req.ChatType == chat.TypeWorld {
		h.presence.BroadcastExcept(c.UserID, event, payload)
		return
	}

	frame, err := encodeFrame(event, payload)
	if err != nil {
		return
	}
	for _, uid := range h.membership.Members(req.ChatID) {
		if uid == c.UserID {
			continue
		}
		h.presence.sendFrame(uid, frame)
	}
}

func (h *Hub) scheduleTypingExpiry(c *Client, req TypingData) {
	key := typingKey{userID: c.UserID, chatType: req.ChatType, chatID: req.ChatID}

	h.typingMu.Lock()
	defer h.typingMu.Unlock()

	if timer, ok := h.typing[key]; ok {
		timer.Reset(h.opts.TypingExpiry)
		return
	}
	h.typing[key] = time.AfterFunc(h.opts.TypingExpiry, func() {
		h.typingMu.Lock()
		delete(h.typing, key)
		h.typingMu.Unlock()
		h.broadcastTyping(c, req, EvUserStoppedTyping)
	})
}

func (h *Hub) cancelTyping(key typingKey) {
	h.typingMu.Lock()
	defer h.typingMu.Unlock()
	if timer, ok := h.typing[key]; ok {
		timer.Stop()
		delete(h.typing, key)
	}
}

// cancelTypingFor drops every pending expiry for a disconnecting user.
func (h *Hub) cancelTypingFor(userID int) {
	h.typingMu.Lock()
	defer h.typingMu.Unlock()
	for key, timer := range h.typing {
		if key.userID == userID {
			timer.Stop()
			delete(h.typing, key)
		}
	}
}
