package ws

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/kwhite/reclaim/internal/models"
)

// Subscriber is one live connection's mailbox. A subscriber with a non-zero
// ConversationID listens on that conversation's channel; one with
// ConversationID 0 listens on the owner's per-user notification channel.
type Subscriber struct {
	ID             string
	UserID         int
	ConversationID int

	send chan []byte
}

func NewSubscriber(userID, conversationID int) *Subscriber {
	return &Subscriber{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		send:           make(chan []byte, 64),
	}
}

type notification struct {
	userID  int
	payload []byte
}

// Hub fans newly stored messages out to live subscribers. Delivery is
// best-effort: a conversation with no subscribers drops the event (the
// message is already durable, the polling endpoint is the recovery path),
// and a subscriber that cannot keep up is evicted.
type Hub struct {
	// Conversation channels: conversation id -> subscriber id -> subscriber.
	rooms map[int]map[string]*Subscriber

	// Per-user notification channels: user id -> subscriber id -> subscriber.
	users map[int]map[string]*Subscriber

	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan *models.Message
	notify     chan notification
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[int]map[string]*Subscriber),
		users:      make(map[int]map[string]*Subscriber),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		broadcast:  make(chan *models.Message),
		notify:     make(chan notification),
	}
}

// Subscribe registers the subscriber on its channel.
func (h *Hub) Subscribe(sub *Subscriber) {
	h.register <- sub
}

// Unsubscribe removes the subscriber and closes its mailbox. Idempotent.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.unregister <- sub
}

// Broadcast publishes a stored message to its conversation channel.
func (h *Hub) Broadcast(msg *models.Message) {
	h.broadcast <- msg
}

// Notify pushes a signal onto userID's notification channel.
func (h *Hub) Notify(userID int, message string) {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		log.Printf("marshal notification: %v", err)
		return
	}
	h.notify <- notification{userID: userID, payload: payload}
}

func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.channelFor(sub)[sub.ID] = sub
		case sub := <-h.unregister:
			h.remove(sub)
		case msg := <-h.broadcast:
			for _, sub := range h.rooms[msg.ConversationID] {
				// is_own is relative to each receiving connection, so the
				// event is rendered per subscriber.
				payload, err := json.Marshal(msg.Event(sub.UserID))
				if err != nil {
					log.Printf("marshal message event: %v", err)
					continue
				}
				h.deliver(sub, payload)
			}
		case n := <-h.notify:
			for _, sub := range h.users[n.userID] {
				h.deliver(sub, n.payload)
			}
		}
	}
}

func (h *Hub) channelFor(sub *Subscriber) map[string]*Subscriber {
	if sub.ConversationID != 0 {
		room := h.rooms[sub.ConversationID]
		if room == nil {
			room = make(map[string]*Subscriber)
			h.rooms[sub.ConversationID] = room
		}
		return room
	}
	channel := h.users[sub.UserID]
	if channel == nil {
		channel = make(map[string]*Subscriber)
		h.users[sub.UserID] = channel
	}
	return channel
}

func (h *Hub) deliver(sub *Subscriber, payload []byte) {
	select {
	case sub.send <- payload:
	default:
		// Subscriber can't keep up; evict rather than block the hub.
		h.remove(sub)
	}
}

func (h *Hub) remove(sub *Subscriber) {
	channel := h.channelFor(sub)
	if _, ok := channel[sub.ID]; !ok {
		return
	}
	delete(channel, sub.ID)
	close(sub.send)
	if len(channel) == 0 {
		if sub.ConversationID != 0 {
			delete(h.rooms, sub.ConversationID)
		} else {
			delete(h.users, sub.UserID)
		}
	}
}
