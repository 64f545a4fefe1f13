package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kwhite/reclaim/internal/middleware"
	"github.com/kwhite/reclaim/internal/models"
	"github.com/kwhite/reclaim/internal/store"
)

// MessagingHandler serves the inbox, conversation bootstrap and the polling
// fallback. The fallback is deliberately independent of the live broadcaster:
// a broken websocket path can never break sending, so nothing here publishes
// to the hub.
type MessagingHandler struct {
	Store store.Store
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// StartChat opens (or lazily creates) the conversation between the caller
// and the item's owner. POST /items/{id}/chat
func (h *MessagingHandler) StartChat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	itemID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.Store.GetItem(itemID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Collaborator-boundary rule: owners do not chat with themselves.
	if item.PostedBy == userID {
		writeError(w, http.StatusBadRequest, "you cannot message yourself about your own item")
		return
	}

	conv, err := h.Store.GetOrCreateConversation(item.ID, userID, item.PostedBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	json.NewEncoder(w).Encode(map[string]int{"conversation_id": conv.ID})
}

// Inbox lists the caller's conversations, most recent activity first.
// GET /inbox
func (h *MessagingHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	summaries, err := h.Store.ListConversations(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}

	totalUnread := 0
	for _, s := range summaries {
		totalUnread += s.UnreadCount
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"conversations": summaries,
		"total_unread":  totalUnread,
	})
}

// GetMessages is the catch-up half of the polling fallback: everything after
// the caller's last-seen message id, acknowledged as read before responding.
// GET /conversations/{id}/messages?after=N
func (h *MessagingHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	conv, ok := h.participantConversation(w, r, userID)
	if !ok {
		return
	}

	after := 0
	if raw := r.URL.Query().Get("after"); raw != "" {
		var err error
		if after, err = strconv.Atoi(raw); err != nil || after < 0 {
			writeError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
	}

	messages, err := h.Store.MessagesAfter(conv.ID, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	events := make([]models.MessageEvent, 0, len(messages))
	for i := range messages {
		events = append(events, messages[i].Event(userID))
	}

	// Fetching implies acknowledging receipt.
	if _, err := h.Store.MarkRead(conv.ID, userID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	json.NewEncoder(w).Encode(map[string][]models.MessageEvent{"messages": events})
}

// SendMessage is the send path of last resort. Unlike the live path, empty
// content is a definite error here, and the sender's confirmation is the
// response itself rather than a broadcast echo.
// POST /conversations/{id}/messages
func (h *MessagingHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	conv, ok := h.participantConversation(w, r, userID)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.Store.AppendMessage(conv.ID, userID, req.Message)
	switch {
	case errors.Is(err, store.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "message content is empty")
		return
	case errors.Is(err, store.ErrInvalidSender):
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]models.MessageEvent{"message": msg.Event(userID)})
}

// participantConversation loads the {id} conversation and enforces the
// participant gate, writing the error response itself on failure.
func (h *MessagingHandler) participantConversation(w http.ResponseWriter, r *http.Request, userID int) (*models.Conversation, bool) {
	convID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return nil, false
	}

	conv, err := h.Store.GetConversation(convID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	if !conv.HasParticipant(userID) {
		writeError(w, http.StatusForbidden, "Forbidden")
		return nil, false
	}
	return conv, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
