package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pulsechat/internal/middleware"
)

const historyLimit = 50

// LiveIndex is what the REST layer needs from the realtime core: keeping the
// in-memory room index in step with durable membership changes made over
// HTTP, so connected users don't have to reconnect to see live fanout.
type LiveIndex interface {
	JoinRoom(userID, roomID int)
	LeaveRoom(userID, roomID int)
}

type Handler struct {
	repo *Repository
	live LiveIndex
}

func NewHandler(repo *Repository, live LiveIndex) *Handler {
	return &Handler{repo: repo, live: live}
}

// StartConversation finds-or-creates a private chat or creates a group.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch req.Type {
	case TypePrivate:
		if req.ParticipantID <= 0 || req.ParticipantID == userID {
			http.Error(w, "participant_id must be another user", http.StatusBadRequest)
			return
		}
		room, err := h.repo.FindOrCreatePrivateRoom(r.Context(), userID, req.ParticipantID)
		if err != nil {
			http.Error(w, "could not start conversation", http.StatusInternalServerError)
			return
		}
		h.live.JoinRoom(userID, room.ID)
		h.live.JoinRoom(req.ParticipantID, room.ID)
		writeJSON(w, http.StatusOK, room)

	case TypeGroup:
		if req.Name == "" {
			http.Error(w, "name is required for groups", http.StatusBadRequest)
			return
		}
		members := dedupe(append(req.ParticipantIDs, userID))
		room, err := h.repo.CreateGroupRoom(r.Context(), req.Name, members)
		if err != nil {
			http.Error(w, "could not create group", http.StatusInternalServerError)
			return
		}
		for _, uid := range members {
			h.live.JoinRoom(uid, room.ID)
		}
		writeJSON(w, http.StatusCreated, room)

	default:
		http.Error(w, "type must be private or group", http.StatusBadRequest)
	}
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rooms, err := h.repo.RoomsForUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "could not load conversations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// AddParticipant adds a member to a group and refreshes their live index
// entry if they are connected.
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	roomID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	var req AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	room, err := h.repo.FindRoomByID(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load conversation", http.StatusInternalServerError)
		return
	}
	if room.Type != TypeGroup {
		http.Error(w, "only groups take new participants", http.StatusBadRequest)
		return
	}

	isMember, err := h.repo.IsParticipant(r.Context(), roomID, userID)
	if err != nil {
		http.Error(w, "could not verify membership", http.StatusInternalServerError)
		return
	}
	if !isMember {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := h.repo.AddParticipant(r.Context(), roomID, req.UserID); err != nil {
		http.Error(w, "could not add participant", http.StatusInternalServerError)
		return
	}
	h.live.JoinRoom(req.UserID, roomID)
	w.WriteHeader(http.StatusNoContent)
}

// LeaveConversation removes the caller from a group, durably and live.
func (h *Handler) LeaveConversation(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	roomID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	if err := h.repo.RemoveParticipant(r.Context(), roomID, userID); err != nil {
		http.Error(w, "could not leave conversation", http.StatusInternalServerError)
		return
	}
	h.live.LeaveRoom(userID, roomID)
	w.WriteHeader(http.StatusNoContent)
}

// GetChatHistory loads recent messages: world history with ?chat_type=world,
// room history with ?conversation_id=N (participants only).
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if r.URL.Query().Get("chat_type") == TypeWorld {
		msgs, err := h.repo.GetWorldMessages(r.Context(), historyLimit)
		if err != nil {
			http.Error(w, "could not load history", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
		return
	}

	roomID, err := strconv.Atoi(r.URL.Query().Get("conversation_id"))
	if err != nil || roomID <= 0 {
		http.Error(w, "conversation_id or chat_type=world is required", http.StatusBadRequest)
		return
	}

	isMember, err := h.repo.IsParticipant(r.Context(), roomID, userID)
	if err != nil {
		http.Error(w, "could not verify membership", http.StatusInternalServerError)
		return
	}
	if !isMember {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	msgs, err := h.repo.GetConversationMessages(r.Context(), roomID, historyLimit)
	if err != nil {
		http.Error(w, "could not load history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
