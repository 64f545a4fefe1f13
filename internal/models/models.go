package models

import "time"

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}

type Item struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Status      string    `json:"status"` // Lost, Found or Returned
	PostedBy    int       `json:"posted_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Conversation is the singleton thread between two users about one item.
// Participant1 is the user who initiated first contact; slot order is for
// display only, identity is the unordered pair plus the item.
type Conversation struct {
	ID           int       `json:"id"`
	ItemID       int       `json:"item_id"`
	Participant1 int       `json:"participant1_id"`
	Participant2 int       `json:"participant2_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID int) int {
	if c.Participant1 == userID {
		return c.Participant2
	}
	return c.Participant1
}

// HasParticipant reports whether userID occupies one of the two slots.
func (c *Conversation) HasParticipant(userID int) bool {
	return c.Participant1 == userID || c.Participant2 == userID
}

type Message struct {
	ID             int       `json:"id"`
	ConversationID int       `json:"conversation_id"`
	SenderID       int       `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	IsRead         bool      `json:"is_read"`
}

// MessageEvent is the wire shape shared by the live channel and the polling
// fallback. IsOwn is computed per recipient, so the same stored message
// renders as a different event for each side of the conversation.
type MessageEvent struct {
	MessageID      int    `json:"message_id"`
	Message        string `json:"message"`
	SenderID       int    `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Timestamp      string `json:"timestamp"`
	IsOwn          bool   `json:"is_own"`
}

// Event builds the wire event for the given viewer.
func (m *Message) Event(viewerID int) MessageEvent {
	return MessageEvent{
		MessageID:      m.ID,
		Message:        m.Content,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		Timestamp:      m.CreatedAt.Format("15:04"),
		IsOwn:          m.SenderID == viewerID,
	}
}

// ConversationSummary is one inbox row.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	OtherUser    User         `json:"other_user"`
	LastMessage  *Message     `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
}
